// services/pipeline.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/lease"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

// ProcessRequest triggers work on a questionnaire. Without flags every
// remaining batch is processed and the final report generated.
type ProcessRequest struct {
	QuestionnaireID         uuid.UUID  `json:"questionnaireId"`
	BatchID                 *uuid.UUID `json:"batchId,omitempty"`
	ProcessSingleBatch      bool       `json:"processSingleBatch,omitempty"`
	ProcessAllBatches       bool       `json:"processAllBatches,omitempty"`
	GenerateFinalReportOnly bool       `json:"generateFinalReportOnly,omitempty"`
}

type Mode string

const (
	ModeFinalOnly Mode = "final-only"
	ModeSingle    Mode = "single"
	ModeAll       Mode = "all"
)

func (r ProcessRequest) Mode() Mode {
	switch {
	case r.GenerateFinalReportOnly:
		return ModeFinalOnly
	case r.BatchID != nil || r.ProcessSingleBatch:
		return ModeSingle
	default:
		return ModeAll
	}
}

// PreparedJob is the plan produced by Prepare. It is stored between durable
// steps, so it only carries identifiers.
type PreparedJob struct {
	QuestionnaireID uuid.UUID   `json:"questionnaire_id"`
	Mode            Mode        `json:"mode"`
	BatchIDs        []uuid.UUID `json:"batch_ids"`
	TotalQuestions  int         `json:"total_questions"`
}

// Pipeline runs a ProcessRequest as Prepare, one RunBatch per batch, then Finish.
type Pipeline struct {
	repos      *RepositoryManager
	generator  QuestionGenerator
	batches    BatchManager
	aggregator ReportAggregator
	status     *StatusMachine
	locker     lease.Locker
	notifier   Notifier
	log        *zap.SugaredLogger
}

func NewPipeline(
	repos *RepositoryManager,
	generator QuestionGenerator,
	batches BatchManager,
	aggregator ReportAggregator,
	status *StatusMachine,
	locker lease.Locker,
	notifier Notifier,
	log *zap.SugaredLogger,
) *Pipeline {
	return &Pipeline{
		repos:      repos,
		generator:  generator,
		batches:    batches,
		aggregator: aggregator,
		status:     status,
		locker:     locker,
		notifier:   notifier,
		log:        log,
	}
}

// Process runs the whole request in the calling goroutine.
func (p *Pipeline) Process(ctx context.Context, req ProcessRequest) (*models.FinalReport, error) {
	prepared, err := p.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	switch prepared.Mode {
	case ModeSingle:
		for _, id := range prepared.BatchIDs {
			if _, err := p.RunBatch(ctx, prepared.QuestionnaireID, id); err != nil {
				return nil, err
			}
		}
	case ModeAll:
		if err := p.runAll(ctx, prepared.QuestionnaireID); err != nil {
			return nil, err
		}
	}

	return p.Finish(ctx, prepared)
}

// Prepare validates the request, marks the questionnaire processing and
// makes sure its batches exist.
func (p *Pipeline) Prepare(ctx context.Context, req ProcessRequest) (*PreparedJob, error) {
	q, err := p.repos.QuestionnaireRepo.GetByID(ctx, req.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questionnaire %s: %w", req.QuestionnaireID, err)
	}
	if q.Status == models.JobComplete {
		return nil, fmt.Errorf("questionnaire %s: %w", q.ID, ErrAlreadyComplete)
	}
	if req.BatchID != nil {
		batch, err := p.repos.BatchRepo.GetByID(ctx, *req.BatchID)
		if err != nil {
			return nil, fmt.Errorf("failed to load batch %s: %w", *req.BatchID, err)
		}
		if batch.QuestionnaireID != q.ID {
			return nil, fmt.Errorf("batch %s: %w", batch.ID, ErrBatchNotInJob)
		}
	}

	if err := p.status.StartJob(ctx, q.ID); err != nil {
		return nil, fmt.Errorf("failed to start questionnaire %s: %w", q.ID, err)
	}

	prepared := &PreparedJob{QuestionnaireID: q.ID, Mode: req.Mode()}
	p.log.Infof("[Prepare] Questionnaire %s (%s) started in %s mode", q.ID, q.BrandName, prepared.Mode)
	if prepared.Mode == ModeFinalOnly {
		return prepared, nil
	}

	plans, err := p.repos.BatchRepo.ListByQuestionnaire(ctx, q.ID)
	if err != nil {
		return nil, p.failJob(ctx, q, err.Error(), err)
	}
	if len(plans) == 0 {
		questions, err := p.generator.GenerateQuestions(ctx, q.Brand())
		if err != nil {
			return nil, p.failJob(ctx, q, fmt.Sprintf("Question generation failed: %v", err), err)
		}
		if plans, err = p.batches.PrepareBatches(ctx, q.ID, questions); err != nil {
			return nil, p.failJob(ctx, q, err.Error(), err)
		}
	}
	prepared.TotalQuestions = TotalQuestions(plans)

	switch prepared.Mode {
	case ModeSingle:
		target := NextBatch(plans)
		if req.BatchID != nil {
			target = findBatch(plans, *req.BatchID)
		}
		if target != nil {
			prepared.BatchIDs = []uuid.UUID{target.ID}
		}
	case ModeAll:
		for _, b := range plans {
			if b.Status != models.BatchComplete {
				prepared.BatchIDs = append(prepared.BatchIDs, b.ID)
			}
		}
	}

	p.log.Infof("[Prepare] Questionnaire %s has %d batches, %d to process", q.ID, len(plans), len(prepared.BatchIDs))
	return prepared, nil
}

// RunBatch processes one batch of a questionnaire against freshly loaded
// batch state. A batch held by another worker is reported as skipped.
func (p *Pipeline) RunBatch(ctx context.Context, questionnaireID, batchID uuid.UUID) (*BatchResult, error) {
	q, err := p.repos.QuestionnaireRepo.GetByID(ctx, questionnaireID)
	if err != nil {
		return nil, err
	}
	plans, err := p.repos.BatchRepo.ListByQuestionnaire(ctx, q.ID)
	if err != nil {
		return nil, p.failJob(ctx, q, err.Error(), err)
	}
	target := findBatch(plans, batchID)
	if target == nil {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrBatchNotInJob)
	}

	result, err := p.batches.ProcessSpecificBatch(ctx, q, plans, target)
	if errors.Is(err, ErrBatchLeased) {
		p.log.Warnf("[RunBatch] Skipping batch %d of %s: %v", target.BatchNumber, q.ID, err)
		return &BatchResult{BatchID: target.ID, BatchNumber: target.BatchNumber, Status: target.Status, Skipped: true}, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, p.failJob(ctx, q, err.Error(), err)
	}
	return result, nil
}

func (p *Pipeline) runAll(ctx context.Context, questionnaireID uuid.UUID) error {
	q, err := p.repos.QuestionnaireRepo.GetByID(ctx, questionnaireID)
	if err != nil {
		return err
	}
	plans, err := p.repos.BatchRepo.ListByQuestionnaire(ctx, q.ID)
	if err != nil {
		return p.failJob(ctx, q, err.Error(), err)
	}
	if _, err := p.batches.ProcessAllBatches(ctx, q, plans); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return p.failJob(ctx, q, err.Error(), err)
	}
	return nil
}

// Finish decides the questionnaire outcome from stored batch state and
// generates the final report once every batch is complete.
func (p *Pipeline) Finish(ctx context.Context, prepared *PreparedJob) (*models.FinalReport, error) {
	q, err := p.repos.QuestionnaireRepo.GetByID(ctx, prepared.QuestionnaireID)
	if err != nil {
		return nil, err
	}
	batches, err := p.repos.BatchRepo.ListByQuestionnaire(ctx, q.ID)
	if err != nil {
		return nil, p.failJob(ctx, q, err.Error(), err)
	}
	complete := CountComplete(batches)

	if AllComplete(batches) {
		return p.finalize(ctx, q)
	}

	switch prepared.Mode {
	case ModeFinalOnly:
		message := fmt.Sprintf("Incomplete: %d of %d batches complete.", complete, len(batches))
		return nil, p.failJob(ctx, q, message, ErrBatchesIncomplete)

	case ModeSingle:
		if len(prepared.BatchIDs) > 0 {
			if target := findBatch(batches, prepared.BatchIDs[0]); target != nil && target.Status == models.BatchError {
				message := fmt.Sprintf("Batch %d failed: %s", target.BatchNumber, derefString(target.ErrorMessage))
				return nil, p.failJob(ctx, q, message, errors.New(message))
			}
		}
		if err := p.status.PauseJob(ctx, q.ID); err != nil {
			return nil, err
		}
		p.log.Infof("[Finish] Questionnaire %s paused with %d of %d batches complete", q.ID, complete, len(batches))
		return nil, nil

	default:
		inFlight, err := p.leasedElsewhere(ctx, batches)
		if err != nil {
			p.log.Warnf("[Finish] Could not check batch leases of %s: %v", q.ID, err)
		}
		if inFlight > 0 && inFlight == len(batches)-complete {
			p.log.Infof("[Finish] Questionnaire %s stays processing: %d batches are held by another worker", q.ID, inFlight)
			return nil, nil
		}
		message := fmt.Sprintf("Processed %d of %d batches. %d batches could not be processed.", complete, len(batches), len(batches)-complete)
		return nil, p.failJob(ctx, q, message, ErrBatchesIncomplete)
	}
}

func (p *Pipeline) finalize(ctx context.Context, q *models.Questionnaire) (*models.FinalReport, error) {
	report, err := p.aggregator.GenerateFinalReport(ctx, q.ID)
	if err == nil {
		return report, nil
	}

	var stageErr *StageError
	switch {
	case errors.As(err, &stageErr):
		return nil, err
	case errors.Is(err, ErrReportLeased):
		p.log.Warnf("[Finish] Final report of %s is already being generated", q.ID)
		return nil, nil
	case ctx.Err() != nil:
		return nil, err
	default:
		return nil, p.failJob(ctx, q, fmt.Sprintf("final processing failed: %v", err), err)
	}
}

// failJob moves the questionnaire to error with message and returns cause.
func (p *Pipeline) failJob(ctx context.Context, q *models.Questionnaire, message string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if err := p.status.FailJob(ctx, q.ID, message); err != nil {
		p.log.Errorf("[Pipeline] Failed to mark questionnaire %s as error: %v", q.ID, err)
	}
	p.log.Errorf("[Pipeline] Questionnaire %s failed: %s", q.ID, message)
	p.notifier.JobFailed(ctx, q, message, cause)
	if message == cause.Error() {
		return cause
	}
	return fmt.Errorf("%s: %w", message, cause)
}

// leasedElsewhere counts incomplete batches whose lease is currently held.
func (p *Pipeline) leasedElsewhere(ctx context.Context, batches []*models.Batch) (int, error) {
	n := 0
	for _, b := range batches {
		if b.Status == models.BatchComplete {
			continue
		}
		held, err := p.locker.Held(ctx, lease.BatchKey(b.ID))
		if err != nil {
			return n, err
		}
		if held {
			n++
		}
	}
	return n, nil
}

func findBatch(batches []*models.Batch, id uuid.UUID) *models.Batch {
	for _, b := range batches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
