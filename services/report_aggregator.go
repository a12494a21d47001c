// services/report_aggregator.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/lease"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/storage"
)

// Report stages, in execution order.
const (
	StageMetaSummary = "meta-summary"
	StageMetrics     = "metrics"
	StageRender      = "render"
	StageUpload      = "upload"
	StagePersist     = "persist"
)

// StageError is a final processing failure that has already been recorded
// on the questionnaire and its final report.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("final processing failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type reportAggregator struct {
	repos      *RepositoryManager
	completer  *completer
	summarizer BatchSummarizer
	cost       CostService
	store      storage.ObjectStore
	status     *StatusMachine
	locker     lease.Locker
	leaseTTL   time.Duration
	notifier   Notifier
	metrics    metrics.Recorder
	log        *zap.SugaredLogger
	now        func() time.Time
}

func NewReportAggregator(
	cfg config.PipelineConfig,
	repos *RepositoryManager,
	client CompletionClient,
	summarizer BatchSummarizer,
	cost CostService,
	store storage.ObjectStore,
	status *StatusMachine,
	locker lease.Locker,
	notifier Notifier,
	rec metrics.Recorder,
	log *zap.SugaredLogger,
) ReportAggregator {
	return &reportAggregator{
		repos:      repos,
		completer:  newCompleter(client, cfg.MaxRetries, cfg.RetryBaseDelay, rec, log),
		summarizer: summarizer,
		cost:       cost,
		store:      store,
		status:     status,
		locker:     locker,
		leaseTTL:   cfg.LeaseTTL,
		notifier:   notifier,
		metrics:    rec,
		log:        log,
		now:        time.Now,
	}
}

// ReportKey is the object key of a rendered report.
func ReportKey(q *models.Questionnaire, at time.Time) string {
	return fmt.Sprintf("%s/%s/report-%d.html", q.UserID, q.ID, at.UnixMilli())
}

// GenerateFinalReport fuses the batch summaries of a fully processed
// questionnaire into one final report and completes the questionnaire.
// Calling it again after success returns the stored report.
func (a *reportAggregator) GenerateFinalReport(ctx context.Context, questionnaireID uuid.UUID) (*models.FinalReport, error) {
	held, err := a.locker.Acquire(ctx, lease.ReportKey(questionnaireID), a.leaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return nil, fmt.Errorf("questionnaire %s: %w", questionnaireID, ErrReportLeased)
		}
		return nil, fmt.Errorf("failed to lease final report: %w", err)
	}
	defer func() {
		if err := a.locker.Release(context.WithoutCancel(ctx), held); err != nil {
			a.log.Warnf("[GenerateFinalReport] Failed to release report lease of %s: %v", questionnaireID, err)
		}
	}()

	q, err := a.repos.QuestionnaireRepo.GetByID(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}

	existing, err := a.repos.FinalReportRepo.GetByQuestionnaire(ctx, q.ID)
	switch {
	case err == nil && existing.Status == models.ReportReady:
		a.log.Infof("[GenerateFinalReport] Final report of %s already ready", q.ID)
		if q.Status != models.JobComplete {
			if err := a.status.CompleteJob(ctx, q.ID); err != nil {
				return nil, err
			}
		}
		return existing, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return nil, err
	}

	batches, err := a.repos.BatchRepo.ListByQuestionnaire(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	if !AllComplete(batches) {
		return nil, fmt.Errorf("%d of %d batches complete: %w", CountComplete(batches), len(batches), ErrBatchesIncomplete)
	}

	a.log.Infof("[GenerateFinalReport] Aggregating %d batches of %s (%s)", len(batches), q.ID, q.BrandName)

	report := &models.FinalReport{QuestionnaireID: q.ID, Status: models.ReportProcessing}
	if err := a.repos.FinalReportRepo.Upsert(ctx, report); err != nil {
		return nil, a.fail(ctx, q, StagePersist, err)
	}

	brand := q.Brand()
	responses, err := a.repos.ResponseRepo.ListByQuestionnaire(ctx, q.ID)
	if err != nil {
		return nil, a.fail(ctx, q, StageMetaSummary, err)
	}
	stats := ComputeStats(responses)

	summary, err := a.metaSummary(ctx, brand, batches, stats)
	if err != nil {
		return nil, a.fail(ctx, q, StageMetaSummary, err)
	}
	report.SummaryJSON = models.JSON(summary)

	tokens, err := a.repos.ResponseRepo.SumTokensByQuestionnaire(ctx, q.ID)
	if err != nil {
		return nil, a.fail(ctx, q, StageMetrics, err)
	}
	report.TotalTokens = tokens
	report.CostEUR = a.cost.CalculateCost(tokens)
	report.CostAlert = a.cost.ExceedsLimit(report.CostEUR)

	generatedAt := a.now()
	html, err := RenderReport(ReportDocument{
		Brand:       brand,
		GeneratedAt: generatedAt,
		Summary:     summary,
		Stats:       stats,
		Responses:   responses,
		TotalTokens: report.TotalTokens,
		CostEUR:     report.CostEUR,
		CostAlert:   report.CostAlert,
	})
	if err != nil {
		return nil, a.fail(ctx, q, StageRender, err)
	}

	key := ReportKey(q, generatedAt)
	if err := a.store.Upload(ctx, key, html, "text/html; charset=utf-8"); err != nil {
		return nil, a.fail(ctx, q, StageUpload, err)
	}
	url, err := a.store.URL(ctx, key)
	if err != nil {
		return nil, a.fail(ctx, q, StageUpload, err)
	}
	report.ArtifactURL = &url

	report.Status = models.ReportReady
	report.ErrorMessage = nil
	if err := a.repos.FinalReportRepo.Upsert(ctx, report); err != nil {
		return nil, a.fail(ctx, q, StagePersist, err)
	}
	if err := a.status.CompleteJob(ctx, q.ID); err != nil {
		return nil, a.fail(ctx, q, StagePersist, err)
	}

	a.metrics.ReportFinished(string(models.ReportReady))
	a.log.Infof("[GenerateFinalReport] Report of %s ready: %d tokens, €%.4f, %s", q.ID, report.TotalTokens, report.CostEUR, url)
	if report.CostAlert {
		a.log.Warnf("[GenerateFinalReport] Cost alert for %s: €%.4f", q.ID, report.CostEUR)
		a.notifier.CostAlert(ctx, q, report)
	}
	return report, nil
}

// metaSummary fills in missing batch summaries, then fuses them.
func (a *reportAggregator) metaSummary(ctx context.Context, brand models.BrandInfo, batches []*models.Batch, stats ReportStats) (json.RawMessage, error) {
	summaries, err := a.repos.SummaryRepo.ListByQuestionnaire(ctx, batches[0].QuestionnaireID)
	if err != nil {
		return nil, err
	}
	if len(summaries) < len(batches) {
		have := make(map[uuid.UUID]bool, len(summaries))
		for _, s := range summaries {
			have[s.BatchID] = true
		}
		for _, b := range batches {
			if have[b.ID] {
				continue
			}
			if err := a.summarizer.SummarizeBatch(ctx, b, brand); err != nil {
				return nil, err
			}
		}
		if summaries, err = a.repos.SummaryRepo.ListByQuestionnaire(ctx, batches[0].QuestionnaireID); err != nil {
			return nil, err
		}
	}

	raw := make([]json.RawMessage, len(summaries))
	for i, s := range summaries {
		raw[i] = json.RawMessage(s.SummaryJSON)
	}

	resp, err := a.completer.complete(ctx, purposeMetaSummary, MetaSummarySystemPrompt, buildMetaSummaryPrompt(brand, raw, stats))
	if err != nil {
		return nil, err
	}
	return extractJSON(resp.Text, '{')
}

// fail records err on the final report and the questionnaire.
func (a *reportAggregator) fail(ctx context.Context, q *models.Questionnaire, stage string, err error) error {
	stageErr := &StageError{Stage: stage, Err: err}
	message := stageErr.Error()
	ctx = context.WithoutCancel(ctx)

	if markErr := a.repos.FinalReportRepo.MarkError(ctx, q.ID, message); markErr != nil {
		a.log.Errorf("[GenerateFinalReport] Failed to mark report of %s as error: %v", q.ID, markErr)
	}
	if failErr := a.status.FailJob(ctx, q.ID, message); failErr != nil {
		a.log.Errorf("[GenerateFinalReport] Failed to mark questionnaire %s as error: %v", q.ID, failErr)
	}

	a.metrics.ReportFinished(string(models.ReportError))
	a.log.Errorf("[GenerateFinalReport] %s: %s", q.ID, message)
	a.notifier.JobFailed(ctx, q, message, err)
	return stageErr
}
