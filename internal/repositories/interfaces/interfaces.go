// Package interfaces declares the store contracts used by the pipeline.
package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a filtered status update matched no row.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// QuestionnaireUpdate is applied only when the current status is one of From.
type QuestionnaireUpdate struct {
	From         []models.JobStatus
	To           models.JobStatus
	ErrorMessage *string // nil clears the column
	Progress     *int    // nil leaves the column unchanged
}

type QuestionnaireRepository interface {
	Create(ctx context.Context, q *models.Questionnaire) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error)
	Transition(ctx context.Context, id uuid.UUID, update QuestionnaireUpdate) error
	// AdvanceProgress never lowers the stored value.
	AdvanceProgress(ctx context.Context, id uuid.UUID, percent int) error
	// ListStalled returns ids in one of statuses not updated since before, oldest first.
	ListStalled(ctx context.Context, statuses []models.JobStatus, before time.Time, limit int) ([]uuid.UUID, error)
}

type BatchRepository interface {
	// CreateMany inserts batches, ignoring numbers that already exist.
	CreateMany(ctx context.Context, batches []*models.Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	GetByNumber(ctx context.Context, questionnaireID uuid.UUID, number int) (*models.Batch, error)
	// ListByQuestionnaire returns batches ordered by batch_number.
	ListByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]*models.Batch, error)
	Transition(ctx context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus, errorMessage *string) error
}

type ResponseRepository interface {
	// Create reports false when a response for the same question already exists.
	Create(ctx context.Context, r *models.QuestionResponse) (bool, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.QuestionResponse, error)
	ListByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]*models.QuestionResponse, error)
	SumTokensByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) (int, error)
}

type SummaryRepository interface {
	GetByBatch(ctx context.Context, batchID uuid.UUID) (*models.BatchSummary, error)
	// Create reports false when the batch already has a summary.
	Create(ctx context.Context, s *models.BatchSummary) (bool, error)
	ListByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]*models.BatchSummary, error)
}

type FinalReportRepository interface {
	GetByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) (*models.FinalReport, error)
	Upsert(ctx context.Context, r *models.FinalReport) error
	MarkError(ctx context.Context, questionnaireID uuid.UUID, message string) error
}
