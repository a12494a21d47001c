package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

func TestSlackNotifierPostsFailure(t *testing.T) {
	var got SlackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, zap.NewNop().Sugar())
	n.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	q := &models.Questionnaire{ID: uuid.New(), BrandName: "Acme"}

	n.JobFailed(context.Background(), q, "final processing failed at upload: bucket unavailable", errors.New("bucket unavailable"))

	assert.Contains(t, got.Text, "*Brand Visibility Report Failed*")
	assert.Contains(t, got.Text, "*Time:* 2026-03-01T12:00:00Z")
	assert.Contains(t, got.Text, q.ID.String())
	assert.Contains(t, got.Text, "*Brand:* Acme")
	assert.Contains(t, got.Text, "```bucket unavailable```")
}

func TestSlackNotifierPostsCostAlert(t *testing.T) {
	var got SlackPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	n := NewSlackNotifier(server.URL, zap.NewNop().Sugar())
	n.CostAlert(context.Background(), &models.Questionnaire{ID: uuid.New()}, &models.FinalReport{TotalTokens: 2_500_000, CostEUR: 25})

	assert.Contains(t, got.Text, "*Tokens:* 2500000")
	assert.Contains(t, got.Text, "*Cost:* €25.0000")
	assert.Contains(t, got.Text, "*Brand:* unknown")
}

func TestSlackNotifierLogsWebhookErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	n := NewSlackNotifier(server.URL, zap.New(core).Sugar())
	n.JobFailed(context.Background(), &models.Questionnaire{ID: uuid.New()}, "", errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "status 403")
}

func TestSlackNotifierWithoutWebhook(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	n := NewSlackNotifier("", zap.New(core).Sugar())
	n.JobFailed(context.Background(), &models.Questionnaire{ID: uuid.New()}, "x", errors.New("boom"))
	assert.Zero(t, logs.Len())
}
