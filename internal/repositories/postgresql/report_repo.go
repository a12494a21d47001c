package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

type summaryRepo struct {
	db *database.Client
}

func NewSummaryRepo(db *database.Client) interfaces.SummaryRepository {
	return &summaryRepo{db: db}
}

func (r *summaryRepo) GetByBatch(ctx context.Context, batchID uuid.UUID) (*models.BatchSummary, error) {
	var s models.BatchSummary
	query := `SELECT id, batch_id, summary_json, created_at FROM batch_summaries WHERE batch_id = $1`
	if err := r.db.DB.GetContext(ctx, &s, query, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("summary of batch %s: %w", batchID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get summary of batch %s: %w", batchID, err)
	}
	return &s, nil
}

func (r *summaryRepo) Create(ctx context.Context, s *models.BatchSummary) (bool, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	query := `
		INSERT INTO batch_summaries (id, batch_id, summary_json)
		VALUES ($1, $2, $3)
		ON CONFLICT (batch_id) DO NOTHING`
	res, err := r.db.DB.ExecContext(ctx, query, s.ID, s.BatchID, s.SummaryJSON)
	if err != nil {
		return false, fmt.Errorf("failed to store summary of batch %s: %w", s.BatchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *summaryRepo) ListByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]*models.BatchSummary, error) {
	var out []*models.BatchSummary
	query := `
		SELECT s.id, s.batch_id, s.summary_json, s.created_at
		FROM batch_summaries s
		JOIN prompt_batches b ON b.id = s.batch_id
		WHERE b.questionnaire_id = $1 AND b.status = 'complete'
		ORDER BY b.batch_number`
	if err := r.db.DB.SelectContext(ctx, &out, query, questionnaireID); err != nil {
		return nil, fmt.Errorf("failed to list summaries of %s: %w", questionnaireID, err)
	}
	return out, nil
}

type finalReportRepo struct {
	db *database.Client
}

func NewFinalReportRepo(db *database.Client) interfaces.FinalReportRepository {
	return &finalReportRepo{db: db}
}

func (r *finalReportRepo) GetByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) (*models.FinalReport, error) {
	var fr models.FinalReport
	query := `
		SELECT id, questionnaire_id, summary_json, total_tokens, cost_eur, cost_alert, pdf_url,
		       status, error_message, created_at, updated_at
		FROM final_reports WHERE questionnaire_id = $1`
	if err := r.db.DB.GetContext(ctx, &fr, query, questionnaireID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("final report of %s: %w", questionnaireID, interfaces.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get final report of %s: %w", questionnaireID, err)
	}
	return &fr, nil
}

func (r *finalReportRepo) Upsert(ctx context.Context, fr *models.FinalReport) error {
	if fr.ID == uuid.Nil {
		fr.ID = uuid.New()
	}
	query := `
		INSERT INTO final_reports (id, questionnaire_id, summary_json, total_tokens, cost_eur, cost_alert, pdf_url, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (questionnaire_id) DO UPDATE SET
			summary_json = EXCLUDED.summary_json,
			total_tokens = EXCLUDED.total_tokens,
			cost_eur = EXCLUDED.cost_eur,
			cost_alert = EXCLUDED.cost_alert,
			pdf_url = EXCLUDED.pdf_url,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = now()
		RETURNING id, created_at, updated_at`
	err := r.db.DB.QueryRowxContext(ctx, query,
		fr.ID, fr.QuestionnaireID, fr.SummaryJSON, fr.TotalTokens, fr.CostEUR, fr.CostAlert, fr.ArtifactURL, fr.Status, fr.ErrorMessage,
	).Scan(&fr.ID, &fr.CreatedAt, &fr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert final report of %s: %w", fr.QuestionnaireID, err)
	}
	return nil
}

func (r *finalReportRepo) MarkError(ctx context.Context, questionnaireID uuid.UUID, message string) error {
	query := `
		UPDATE final_reports SET status = 'error', error_message = $2, updated_at = now()
		WHERE questionnaire_id = $1 AND status <> 'ready'`
	if _, err := r.db.DB.ExecContext(ctx, query, questionnaireID, message); err != nil {
		return fmt.Errorf("failed to mark final report of %s as error: %w", questionnaireID, err)
	}
	return nil
}
