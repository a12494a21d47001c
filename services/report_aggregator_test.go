package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/lease"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/testutil"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

// processedJob stores a questionnaire whose n questions are all answered.
func processedJob(t *testing.T, h *testutil.Harness, n int) *models.Questionnaire {
	t.Helper()
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", []string{"ACME Corp"}, []string{"Globex", "Initech"})
	plans, err := h.Batches.PrepareBatches(ctx, q.ID, testutil.SampleQuestions(n))
	require.NoError(t, err)
	_, err = h.Batches.ProcessAllBatches(ctx, q, plans)
	require.NoError(t, err)
	return q
}

func TestGenerateFinalReport(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Client.Answer = func(question string) string {
		if strings.HasPrefix(question, "Question 1") {
			return "Acme is <b>great</b>, Globex too."
		}
		return "Initech is the usual pick."
	}
	q := processedJob(t, h, 25)
	ctx := context.Background()

	report, err := h.Aggregator.GenerateFinalReport(ctx, q.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ReportReady, report.Status)
	assert.Equal(t, 2500, report.TotalTokens)
	assert.InDelta(t, 0.025, report.CostEUR, 1e-9)
	assert.False(t, report.CostAlert)
	require.NotNil(t, report.ArtifactURL)
	assert.True(t, strings.HasPrefix(*report.ArtifactURL, "https://reports.test/"+q.UserID.String()+"/"+q.ID.String()+"/report-"))
	assert.True(t, strings.HasSuffix(*report.ArtifactURL, ".html"))

	keys := h.Objects.Keys()
	require.Len(t, keys, 1)
	object, ok := h.Objects.Get(keys[0])
	require.True(t, ok)
	assert.Equal(t, "text/html; charset=utf-8", object.ContentType)
	html := string(object.Content)
	assert.Contains(t, html, "Brand visibility report: Acme")
	assert.Contains(t, html, "✅ brand mentioned")
	assert.Contains(t, html, "❌ brand not mentioned")
	assert.Contains(t, html, `<span class="tag">Initech</span>`)
	assert.Contains(t, html, "Acme is &lt;b&gt;great&lt;/b&gt;")
	assert.Contains(t, html, "Executive conclusion")

	job, err := h.Store.Questionnaires().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobComplete, job.Status)
	assert.Equal(t, 100, job.ProgressPercent)
}

func TestGenerateFinalReportIsIdempotent(t *testing.T) {
	h := testutil.NewHarness(t)
	q := processedJob(t, h, 5)
	ctx := context.Background()

	first, err := h.Aggregator.GenerateFinalReport(ctx, q.ID)
	require.NoError(t, err)
	second, err := h.Aggregator.GenerateFinalReport(ctx, q.ID)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.Store.ReportCount())
	assert.Equal(t, 1, h.Client.CallCount(services.MetaSummarySystemPrompt))
	assert.Len(t, h.Objects.Keys(), 1)
}

func TestGenerateFinalReportRequiresCompleteBatches(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)
	_, err := h.Batches.PrepareBatches(ctx, q.ID, testutil.SampleQuestions(30))
	require.NoError(t, err)

	_, err = h.Aggregator.GenerateFinalReport(ctx, q.ID)
	assert.ErrorIs(t, err, services.ErrBatchesIncomplete)
	assert.Zero(t, h.Store.ReportCount())
}

func TestGenerateFinalReportStageFailures(t *testing.T) {
	uploadDown := errors.New("bucket unavailable")
	dbDown := errors.New("database unavailable")

	tests := []struct {
		stage   string
		breakIt func(h *testutil.Harness)
	}{
		{stage: services.StageMetaSummary, breakIt: func(h *testutil.Harness) { h.Client.FailMeta = testutil.ErrTransient }},
		{stage: services.StageMetaSummary, breakIt: func(h *testutil.Harness) { h.Client.MetaSummaryText = "no json here" }},
		{stage: services.StageUpload, breakIt: func(h *testutil.Harness) { h.Objects.Err = uploadDown }},
		{stage: services.StagePersist, breakIt: func(h *testutil.Harness) {
			h.Store.FailOn = func(op string) error {
				if op == "report.upsert" {
					return dbDown
				}
				return nil
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.stage, func(t *testing.T) {
			h := testutil.NewHarness(t)
			q := processedJob(t, h, 5)
			ctx := context.Background()
			tt.breakIt(h)

			_, err := h.Aggregator.GenerateFinalReport(ctx, q.ID)
			require.Error(t, err)

			var stageErr *services.StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tt.stage, stageErr.Stage)

			h.Store.FailOn = nil
			job, err := h.Store.Questionnaires().GetByID(ctx, q.ID)
			require.NoError(t, err)
			assert.Equal(t, models.JobError, job.Status)
			require.NotNil(t, job.ErrorMessage)
			assert.True(t, strings.HasPrefix(*job.ErrorMessage, "final processing failed at "+tt.stage+": "))
			assert.Equal(t, 1, h.Notifier.FailureCount())

			batches, err := h.Store.Batches().ListByQuestionnaire(ctx, q.ID)
			require.NoError(t, err)
			assert.True(t, services.AllComplete(batches), "batch data is kept")

			if report, err := h.Store.FinalReports().GetByQuestionnaire(ctx, q.ID); err == nil {
				assert.Equal(t, models.ReportError, report.Status)
			}
		})
	}
}

func TestGenerateFinalReportRecoversAfterFailure(t *testing.T) {
	h := testutil.NewHarness(t)
	q := processedJob(t, h, 5)
	ctx := context.Background()

	h.Objects.Err = errors.New("bucket unavailable")
	_, err := h.Aggregator.GenerateFinalReport(ctx, q.ID)
	require.Error(t, err)

	h.Objects.Err = nil
	report, err := h.Aggregator.GenerateFinalReport(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportReady, report.Status)
	assert.Nil(t, report.ErrorMessage)
	assert.Equal(t, 1, h.Store.ReportCount())
}

func TestGenerateFinalReportCostAlert(t *testing.T) {
	h := testutil.NewHarness(t, func(h *testutil.Harness) {
		h.Config.Pipeline.CostLimitEUR = 0.01
	})
	q := processedJob(t, h, 20)

	report, err := h.Aggregator.GenerateFinalReport(context.Background(), q.ID)
	require.NoError(t, err)
	assert.True(t, report.CostAlert)
	require.Len(t, h.Notifier.CostAlerts, 1)
	assert.Equal(t, report.ID, h.Notifier.CostAlerts[0].ID)
}

func TestGenerateFinalReportFillsMissingSummaries(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Client.BatchSummaryText = "not json"
	q := processedJob(t, h, 30)
	ctx := context.Background()

	summaries, err := h.Store.Summaries().ListByQuestionnaire(ctx, q.ID)
	require.NoError(t, err)
	require.Empty(t, summaries)

	h.Client.BatchSummaryText = ""
	_, err = h.Aggregator.GenerateFinalReport(ctx, q.ID)
	require.NoError(t, err)

	summaries, err = h.Store.Summaries().ListByQuestionnaire(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestGenerateFinalReportRendersRawSummary(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Client.MetaSummaryText = `Result: {"visibility_score": 7}`
	q := processedJob(t, h, 3)

	_, err := h.Aggregator.GenerateFinalReport(context.Background(), q.ID)
	require.NoError(t, err)

	object, ok := h.Objects.Get(h.Objects.Keys()[0])
	require.True(t, ok)
	assert.Contains(t, string(object.Content), "visibility_score")
	assert.NotContains(t, string(object.Content), "Executive conclusion")
}

func TestGenerateFinalReportHonoursLease(t *testing.T) {
	h := testutil.NewHarness(t)
	q := processedJob(t, h, 3)

	_, err := h.Locker.Acquire(context.Background(), lease.ReportKey(q.ID), time.Minute)
	require.NoError(t, err)

	_, err = h.Aggregator.GenerateFinalReport(context.Background(), q.ID)
	assert.ErrorIs(t, err, services.ErrReportLeased)
	assert.Zero(t, h.Store.ReportCount())
}
