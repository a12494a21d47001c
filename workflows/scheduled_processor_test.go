package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/testutil"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	reqs   []services.ProcessRequest
	failOn uuid.UUID
}

func (d *recordingDispatcher) Dispatch(_ context.Context, req services.ProcessRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if req.QuestionnaireID == d.failOn {
		return errors.New("event api unavailable")
	}
	d.reqs = append(d.reqs, req)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.reqs)
}

// stalledJob stores a processing questionnaire last updated age ago.
func stalledJob(t *testing.T, h *testutil.Harness, age time.Duration) *models.Questionnaire {
	t.Helper()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)
	require.NoError(t, h.Status.StartJob(context.Background(), q.ID))
	h.Store.Touch(q.ID, time.Now().Add(-age))
	return q
}

func TestSweepResumesOnlyStalledJobs(t *testing.T) {
	h := testutil.NewHarness(t)
	stalled := stalledJob(t, h, 2*time.Hour)
	stalledJob(t, h, time.Minute)

	paused := testutil.CreateQuestionnaire(t, h.Store, "Paused", nil, nil)
	h.Store.Touch(paused.ID, time.Now().Add(-2*time.Hour))

	d := &recordingDispatcher{}
	p := NewScheduledProcessor(h.Status, d, h.Config.Pipeline, zap.NewNop().Sugar())

	n, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, d.reqs, 1)
	assert.Equal(t, stalled.ID, d.reqs[0].QuestionnaireID)
	assert.Equal(t, services.ModeAll, d.reqs[0].Mode())
}

func TestSweepContinuesPastDispatchFailure(t *testing.T) {
	h := testutil.NewHarness(t)
	first := stalledJob(t, h, 3*time.Hour)
	stalledJob(t, h, 2*time.Hour)

	d := &recordingDispatcher{failOn: first.ID}
	p := NewScheduledProcessor(h.Status, d, h.Config.Pipeline, zap.NewNop().Sugar())

	n, err := p.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweepHonoursLimit(t *testing.T) {
	h := testutil.NewHarness(t)
	for i := 0; i < 5; i++ {
		stalledJob(t, h, time.Duration(i+1)*time.Hour)
	}
	cfg := h.Config.Pipeline
	cfg.ResumeLimit = 2

	d := &recordingDispatcher{}
	n, err := NewScheduledProcessor(h.Status, d, cfg, zap.NewNop().Sugar()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunLocalStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := testutil.NewHarness(t)
	stalledJob(t, h, 2*time.Hour)
	d := &recordingDispatcher{}
	p := NewScheduledProcessor(h.Status, d, h.Config.Pipeline, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.RunLocal(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return d.count() > 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
