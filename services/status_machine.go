// services/status_machine.go
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

// JobTransitions lists, for each target status, the statuses it may be entered from.
var JobTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobProcessing: {models.JobPending, models.JobError, models.JobProcessing},
	models.JobPending:    {models.JobProcessing, models.JobError, models.JobPending},
	models.JobComplete:   {models.JobProcessing, models.JobPending, models.JobError},
	models.JobError:      {models.JobPending, models.JobProcessing, models.JobError},
}

// BatchTransitions lists, for each target status, the statuses it may be entered from.
// processing -> processing resumes a batch whose worker died; the batch lease
// keeps it exclusive.
var BatchTransitions = map[models.BatchStatus][]models.BatchStatus{
	models.BatchProcessing: {models.BatchPending, models.BatchError, models.BatchProcessing},
	models.BatchComplete:   {models.BatchProcessing},
	models.BatchError:      {models.BatchPending, models.BatchProcessing, models.BatchError},
	models.BatchPending:    {models.BatchError, models.BatchPending},
}

// CanTransitionJob reports whether a questionnaire may move from one status to another.
func CanTransitionJob(from, to models.JobStatus) bool {
	return slices.Contains(JobTransitions[to], from)
}

// CanTransitionBatch reports whether a batch may move from one status to another.
func CanTransitionBatch(from, to models.BatchStatus) bool {
	return slices.Contains(BatchTransitions[to], from)
}

// StatusMachine applies status changes as filtered updates, so a row that
// has moved on in the meantime is never overwritten.
type StatusMachine struct {
	repos    *RepositoryManager
	progress ProgressTracker
	log      *zap.SugaredLogger
}

func NewStatusMachine(repos *RepositoryManager, progress ProgressTracker, log *zap.SugaredLogger) *StatusMachine {
	return &StatusMachine{repos: repos, progress: progress, log: log}
}

func (m *StatusMachine) moveJob(ctx context.Context, id uuid.UUID, to models.JobStatus, message *string, progress *int) error {
	return m.repos.QuestionnaireRepo.Transition(ctx, id, interfaces.QuestionnaireUpdate{
		From:         JobTransitions[to],
		To:           to,
		ErrorMessage: message,
		Progress:     progress,
	})
}

// StartJob marks a questionnaire processing and clears its error.
func (m *StatusMachine) StartJob(ctx context.Context, id uuid.UUID) error {
	return m.moveJob(ctx, id, models.JobProcessing, nil, nil)
}

// PauseJob returns a questionnaire to pending between manually triggered batches.
func (m *StatusMachine) PauseJob(ctx context.Context, id uuid.UUID) error {
	return m.moveJob(ctx, id, models.JobPending, nil, nil)
}

// CompleteJob is only called once the final report is ready.
func (m *StatusMachine) CompleteJob(ctx context.Context, id uuid.UUID) error {
	full := 100
	return m.moveJob(ctx, id, models.JobComplete, nil, &full)
}

func (m *StatusMachine) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	return m.moveJob(ctx, id, models.JobError, &message, nil)
}

func (m *StatusMachine) StartBatch(ctx context.Context, id uuid.UUID) error {
	return m.repos.BatchRepo.Transition(ctx, id, BatchTransitions[models.BatchProcessing], models.BatchProcessing, nil)
}

func (m *StatusMachine) CompleteBatch(ctx context.Context, id uuid.UUID) error {
	return m.repos.BatchRepo.Transition(ctx, id, BatchTransitions[models.BatchComplete], models.BatchComplete, nil)
}

func (m *StatusMachine) FailBatch(ctx context.Context, id uuid.UUID, message string) error {
	return m.repos.BatchRepo.Transition(ctx, id, BatchTransitions[models.BatchError], models.BatchError, &message)
}

// Retry resets a failed, paused or stuck questionnaire to pending with
// progress 0 so it can be triggered again. When batchID is given that batch
// is also reset to pending. Existing batches and responses are kept.
func (m *StatusMachine) Retry(ctx context.Context, id uuid.UUID, batchID *uuid.UUID) (*models.Questionnaire, error) {
	q, err := m.repos.QuestionnaireRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Status == models.JobComplete {
		return nil, fmt.Errorf("questionnaire %s: %w", id, ErrAlreadyComplete)
	}

	if batchID != nil {
		batch, err := m.repos.BatchRepo.GetByID(ctx, *batchID)
		if err != nil {
			return nil, err
		}
		if batch.QuestionnaireID != id {
			return nil, fmt.Errorf("batch %s: %w", batch.ID, ErrBatchNotInJob)
		}
		if batch.Status == models.BatchProcessing || batch.Status == models.BatchComplete {
			return nil, fmt.Errorf("batch %d is %s: %w", batch.BatchNumber, batch.Status, ErrInvalidTransition)
		}
		if err := m.repos.BatchRepo.Transition(ctx, batch.ID, BatchTransitions[models.BatchPending], models.BatchPending, nil); err != nil {
			return nil, err
		}
	}

	err = m.repos.QuestionnaireRepo.Transition(ctx, id, interfaces.QuestionnaireUpdate{
		From: []models.JobStatus{models.JobError, models.JobPending, models.JobProcessing},
		To:   models.JobPending,
	})
	if errors.Is(err, ErrInvalidTransition) {
		return nil, fmt.Errorf("questionnaire %s changed state during retry: %w", id, err)
	}
	if err != nil {
		return nil, err
	}
	if err := m.progress.Reset(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to reset progress of %s: %w", id, err)
	}

	m.log.Infof("[Retry] Questionnaire %s reset to pending (was %s)", id, q.Status)
	return m.repos.QuestionnaireRepo.GetByID(ctx, id)
}

// StalledJobs lists processing questionnaires whose row has not changed for idle.
func (m *StatusMachine) StalledJobs(ctx context.Context, idle time.Duration, limit int) ([]uuid.UUID, error) {
	return m.repos.QuestionnaireRepo.ListStalled(ctx, []models.JobStatus{models.JobProcessing}, time.Now().Add(-idle), limit)
}
