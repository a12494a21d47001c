package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

type batchRepo struct {
	db *database.Client
}

func NewBatchRepo(db *database.Client) interfaces.BatchRepository {
	return &batchRepo{db: db}
}

const batchColumns = `id, questionnaire_id, batch_number, questions, status, error_message, created_at, updated_at`

func (r *batchRepo) CreateMany(ctx context.Context, batches []*models.Batch) error {
	if len(batches) == 0 {
		return nil
	}

	tx, err := r.db.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO prompt_batches (id, questionnaire_id, batch_number, questions, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (questionnaire_id, batch_number) DO NOTHING`
	for _, b := range batches {
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.Status == "" {
			b.Status = models.BatchPending
		}
		if _, err := tx.ExecContext(ctx, query, b.ID, b.QuestionnaireID, b.BatchNumber, b.Questions, b.Status); err != nil {
			return fmt.Errorf("failed to insert batch %d: %w", b.BatchNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batches: %w", err)
	}
	return nil
}

func (r *batchRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var b models.Batch
	query := `SELECT ` + batchColumns + ` FROM prompt_batches WHERE id = $1`
	if err := r.db.DB.GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch %s: %w", id, err)
	}
	return &b, nil
}

func (r *batchRepo) GetByNumber(ctx context.Context, questionnaireID uuid.UUID, number int) (*models.Batch, error) {
	var b models.Batch
	query := `SELECT ` + batchColumns + ` FROM prompt_batches WHERE questionnaire_id = $1 AND batch_number = $2`
	if err := r.db.DB.GetContext(ctx, &b, query, questionnaireID, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %d of %s: %w", number, questionnaireID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get batch %d of %s: %w", number, questionnaireID, err)
	}
	return &b, nil
}

func (r *batchRepo) ListByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]*models.Batch, error) {
	var batches []*models.Batch
	query := `SELECT ` + batchColumns + ` FROM prompt_batches WHERE questionnaire_id = $1 ORDER BY batch_number`
	if err := r.db.DB.SelectContext(ctx, &batches, query, questionnaireID); err != nil {
		return nil, fmt.Errorf("failed to list batches of %s: %w", questionnaireID, err)
	}
	return batches, nil
}

func (r *batchRepo) Transition(ctx context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus, errorMessage *string) error {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	query := `
		UPDATE prompt_batches
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1 AND status = ANY($4)`
	res, err := r.db.DB.ExecContext(ctx, query, id, to, errorMessage, pq.Array(statuses))
	if err != nil {
		return fmt.Errorf("failed to update batch %s to %s: %w", id, to, err)
	}
	return checkTransition(res, fmt.Sprintf("batch %s -> %s", id, to))
}
