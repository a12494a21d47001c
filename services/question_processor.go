// services/question_processor.go
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/lease"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

// BatchRun describes one batch to drive to completion.
type BatchRun struct {
	Questionnaire *models.Questionnaire
	// BatchID selects an existing batch; otherwise BatchNumber is used and
	// the batch is created when missing.
	BatchID        *uuid.UUID
	BatchNumber    int
	Questions      []string
	TotalQuestions int
	// PreviouslyProcessed counts questions of other complete batches.
	PreviouslyProcessed int
}

// BatchResult is the outcome of ProcessBatch.
type BatchResult struct {
	BatchID     uuid.UUID          `json:"batch_id"`
	BatchNumber int                `json:"batch_number"`
	Status      models.BatchStatus `json:"status"`
	Answered    int                `json:"answered"`
	Failed      int                `json:"failed"`
	// Processed is PreviouslyProcessed plus the answered questions of this batch.
	Processed    int    `json:"processed"`
	ErrorMessage string `json:"error_message,omitempty"`
	// Skipped is set when another worker holds the batch.
	Skipped bool `json:"skipped,omitempty"`
}

type questionProcessor struct {
	repos      *RepositoryManager
	completer  *completer
	progress   ProgressTracker
	summarizer BatchSummarizer
	status     *StatusMachine
	locker     lease.Locker
	leaseTTL   time.Duration
	metrics    metrics.Recorder
	log        *zap.SugaredLogger
}

func NewQuestionProcessor(
	cfg config.PipelineConfig,
	repos *RepositoryManager,
	client CompletionClient,
	progress ProgressTracker,
	summarizer BatchSummarizer,
	status *StatusMachine,
	locker lease.Locker,
	rec metrics.Recorder,
	log *zap.SugaredLogger,
) QuestionProcessor {
	return &questionProcessor{
		repos:      repos,
		completer:  newCompleter(client, cfg.MaxRetries, cfg.RetryBaseDelay, rec, log),
		progress:   progress,
		summarizer: summarizer,
		status:     status,
		locker:     locker,
		leaseTTL:   cfg.LeaseTTL,
		metrics:    rec,
		log:        log,
	}
}

// ProcessQuestion answers one question, classifies the answer and stores it.
func (p *questionProcessor) ProcessQuestion(ctx context.Context, question string, brand models.BrandInfo, batchID uuid.UUID) (*models.QuestionResponse, error) {
	resp, err := p.completer.complete(ctx, purposeAnswer, AnswerSystemPrompt, question)
	if err != nil {
		return nil, fmt.Errorf("failed to answer question: %w", err)
	}

	brandMatch, competitorMatches := MatchMentions(resp.Text, brand)
	response := &models.QuestionResponse{
		BatchID:           batchID,
		QuestionText:      question,
		AnswerText:        resp.Text,
		TokensUsed:        resp.TokenCount(),
		BrandMatch:        brandMatch,
		CompetitorMatches: competitorMatches,
	}

	inserted, err := p.repos.ResponseRepo.Create(ctx, response)
	if err != nil {
		return nil, fmt.Errorf("failed to store response: %w", err)
	}
	if !inserted {
		p.log.Infof("[ProcessQuestion] Response for %q in batch %s already stored", question, batchID)
	}
	return response, nil
}

// MatchMentions reports whether the brand or one of its aliases appears in
// text, and which competitors appear, in competitor order. Matching is
// case-insensitive and treats names literally.
func MatchMentions(text string, brand models.BrandInfo) (bool, []string) {
	terms := make([]string, 0, len(brand.Aliases)+1)
	for _, t := range append([]string{brand.Name}, brand.Aliases...) {
		if t = strings.TrimSpace(t); t != "" {
			terms = append(terms, regexp.QuoteMeta(t))
		}
	}

	brandMatch := false
	if len(terms) > 0 {
		brandMatch = regexp.MustCompile(`(?i)(?:` + strings.Join(terms, "|") + `)`).MatchString(text)
	}

	competitors := []string{}
	for _, c := range brand.Competitors {
		name := strings.TrimSpace(c)
		if name == "" {
			continue
		}
		if regexp.MustCompile(`(?i)` + regexp.QuoteMeta(name)).MatchString(text) {
			competitors = append(competitors, c)
		}
	}
	return brandMatch, competitors
}

// ProcessBatch drives the pending questions of one batch and sets its final status.
func (p *questionProcessor) ProcessBatch(ctx context.Context, run BatchRun) (*BatchResult, error) {
	q := run.Questionnaire
	started := time.Now()

	batch, err := p.locateBatch(ctx, run)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{BatchID: batch.ID, BatchNumber: batch.BatchNumber, Status: batch.Status}
	questions := []string(batch.Questions)

	if batch.Status == models.BatchComplete {
		p.log.Infof("[ProcessBatch] Batch %d of %s already complete", batch.BatchNumber, q.ID)
		result.Answered = len(questions)
		result.Processed = run.PreviouslyProcessed + len(questions)
		return result, nil
	}

	held, err := p.locker.Acquire(ctx, lease.BatchKey(batch.ID), p.leaseTTL)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			return nil, fmt.Errorf("batch %d: %w", batch.BatchNumber, ErrBatchLeased)
		}
		return nil, fmt.Errorf("failed to lease batch %d: %w", batch.BatchNumber, err)
	}
	defer func() {
		if err := p.locker.Release(context.WithoutCancel(ctx), held); err != nil {
			p.log.Warnf("[ProcessBatch] Failed to release lease of batch %s: %v", batch.ID, err)
		}
	}()

	if err := p.status.StartBatch(ctx, batch.ID); err != nil {
		return nil, fmt.Errorf("failed to start batch %d: %w", batch.BatchNumber, err)
	}

	existing, err := p.repos.ResponseRepo.ListByBatch(ctx, batch.ID)
	if err != nil {
		return nil, p.abortBatch(ctx, batch, err)
	}
	answered := make(map[string]bool, len(existing))
	for _, r := range existing {
		answered[r.QuestionText] = true
	}

	brand := q.Brand()
	var failures *multierror.Error
	failed := make(map[string]bool)

	for _, question := range questions {
		if answered[question] || failed[question] {
			continue
		}
		if ctx.Err() != nil {
			return nil, p.abortBatch(ctx, batch, ctx.Err())
		}

		if _, err := p.ProcessQuestion(ctx, question, brand, batch.ID); err != nil {
			failed[question] = true
			failures = multierror.Append(failures, fmt.Errorf("%q: %w", question, err))
			p.metrics.QuestionProcessed("failed")
			p.log.Warnf("[ProcessBatch] Question failed in batch %d of %s: %v", batch.BatchNumber, q.ID, err)
			continue
		}
		answered[question] = true
		p.metrics.QuestionProcessed("answered")

		processed := run.PreviouslyProcessed + countAnswered(questions, answered)
		if err := p.progress.UpdateProgress(ctx, q.ID, run.TotalQuestions, processed); err != nil {
			return nil, p.abortBatch(ctx, batch, err)
		}
	}

	result.Answered = countAnswered(questions, answered)
	result.Failed = len(failed)
	result.Processed = run.PreviouslyProcessed + result.Answered

	if result.Answered == len(questions) {
		if err := p.status.CompleteBatch(ctx, batch.ID); err != nil {
			return nil, p.abortBatch(ctx, batch, err)
		}
		result.Status = models.BatchComplete
		p.metrics.BatchFinished(string(models.BatchComplete), time.Since(started))
		p.log.Infof("[ProcessBatch] Batch %d of %s complete (%d questions)", batch.BatchNumber, q.ID, len(questions))

		batch.Status = models.BatchComplete
		if err := p.summarizer.SummarizeBatch(ctx, batch, brand); err != nil {
			p.log.Warnf("[ProcessBatch] Summary of batch %d failed, will retry at report time: %v", batch.BatchNumber, err)
		}
		return result, nil
	}

	message := fmt.Sprintf("Processed %d/%d questions. Failed to process %d questions.", result.Answered, len(questions), result.Failed)
	if err := p.status.FailBatch(ctx, batch.ID, message); err != nil {
		return nil, fmt.Errorf("failed to mark batch %d as error: %w", batch.BatchNumber, err)
	}
	result.Status = models.BatchError
	result.ErrorMessage = message
	p.metrics.BatchFinished(string(models.BatchError), time.Since(started))
	p.log.Errorf("[ProcessBatch] Batch %d of %s incomplete: %s: %v", batch.BatchNumber, q.ID, message, failures.ErrorOrNil())
	return result, nil
}

func (p *questionProcessor) locateBatch(ctx context.Context, run BatchRun) (*models.Batch, error) {
	q := run.Questionnaire
	if run.BatchID != nil {
		batch, err := p.repos.BatchRepo.GetByID(ctx, *run.BatchID)
		if err != nil {
			return nil, err
		}
		if batch.QuestionnaireID != q.ID {
			return nil, fmt.Errorf("batch %s: %w", batch.ID, ErrBatchNotInJob)
		}
		return batch, nil
	}

	batch, err := p.repos.BatchRepo.GetByNumber(ctx, q.ID, run.BatchNumber)
	if err == nil {
		return batch, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := &models.Batch{
		QuestionnaireID: q.ID,
		BatchNumber:     run.BatchNumber,
		Questions:       models.QuestionList(run.Questions),
		Status:          models.BatchProcessing,
	}
	if err := p.repos.BatchRepo.CreateMany(ctx, []*models.Batch{created}); err != nil {
		return nil, fmt.Errorf("failed to create batch %d: %w", run.BatchNumber, err)
	}
	return p.repos.BatchRepo.GetByNumber(ctx, q.ID, run.BatchNumber)
}

// abortBatch records a store or context failure on the batch and returns cause.
func (p *questionProcessor) abortBatch(ctx context.Context, batch *models.Batch, cause error) error {
	if err := p.status.FailBatch(context.WithoutCancel(ctx), batch.ID, cause.Error()); err != nil {
		p.log.Errorf("[ProcessBatch] Failed to mark batch %s as error: %v", batch.ID, err)
	}
	p.metrics.BatchFinished(string(models.BatchError), 0)
	return fmt.Errorf("batch %d aborted: %w", batch.BatchNumber, cause)
}

// countAnswered counts question positions whose text has a response.
func countAnswered(questions []string, answered map[string]bool) int {
	n := 0
	for _, q := range questions {
		if answered[q] {
			n++
		}
	}
	return n
}
