package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

type questionnaireRepo struct {
	db *database.Client
}

func NewQuestionnaireRepo(db *database.Client) interfaces.QuestionnaireRepository {
	return &questionnaireRepo{db: db}
}

const questionnaireColumns = `id, user_id, brand_name, aliases, competitors, sector, website,
	status, progress_percent, error_message, created_at, updated_at`

func (r *questionnaireRepo) Create(ctx context.Context, q *models.Questionnaire) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = models.JobPending
	}
	query := `
		INSERT INTO brand_questionnaires (id, user_id, brand_name, aliases, competitors, sector, website, status, progress_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`
	err := r.db.DB.QueryRowxContext(ctx, query,
		q.ID, q.UserID, q.BrandName, q.Aliases, q.Competitors, q.Sector, q.Website, q.Status, q.ProgressPercent,
	).Scan(&q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create questionnaire: %w", err)
	}
	return nil
}

func (r *questionnaireRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	var q models.Questionnaire
	query := `SELECT ` + questionnaireColumns + ` FROM brand_questionnaires WHERE id = $1`
	if err := r.db.DB.GetContext(ctx, &q, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("questionnaire %s: %w", id, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get questionnaire %s: %w", id, err)
	}
	return &q, nil
}

func (r *questionnaireRepo) Transition(ctx context.Context, id uuid.UUID, u interfaces.QuestionnaireUpdate) error {
	query := `
		UPDATE brand_questionnaires
		SET status = $2,
		    error_message = $3,
		    progress_percent = COALESCE($4, progress_percent),
		    updated_at = now()
		WHERE id = $1 AND status = ANY($5)`
	res, err := r.db.DB.ExecContext(ctx, query, id, u.To, u.ErrorMessage, u.Progress, pq.Array(jobStatuses(u.From)))
	if err != nil {
		return fmt.Errorf("failed to update questionnaire %s to %s: %w", id, u.To, err)
	}
	return checkTransition(res, fmt.Sprintf("questionnaire %s -> %s", id, u.To))
}

func (r *questionnaireRepo) AdvanceProgress(ctx context.Context, id uuid.UUID, percent int) error {
	query := `
		UPDATE brand_questionnaires
		SET progress_percent = GREATEST(progress_percent, $2), updated_at = now()
		WHERE id = $1`
	if _, err := r.db.DB.ExecContext(ctx, query, id, percent); err != nil {
		return fmt.Errorf("failed to update progress for %s: %w", id, err)
	}
	return nil
}

func (r *questionnaireRepo) ListStalled(ctx context.Context, statuses []models.JobStatus, before time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM brand_questionnaires
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`
	var ids []uuid.UUID
	if err := r.db.DB.SelectContext(ctx, &ids, query, pq.Array(jobStatuses(statuses)), before, limit); err != nil {
		return nil, fmt.Errorf("failed to list stalled questionnaires: %w", err)
	}
	return ids, nil
}

func jobStatuses(in []models.JobStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func checkTransition(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected for %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, interfaces.ErrInvalidTransition)
	}
	return nil
}
