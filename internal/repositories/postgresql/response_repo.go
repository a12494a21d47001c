package postgresql

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

type responseRepo struct {
	db *database.Client
}

func NewResponseRepo(db *database.Client) interfaces.ResponseRepository {
	return &responseRepo{db: db}
}

const responseColumns = `r.id, r.batch_id, r.question_text, r.answer_text, r.tokens_used,
	r.brand_match, r.competitor_matches, r.created_at`

func (r *responseRepo) Create(ctx context.Context, resp *models.QuestionResponse) (bool, error) {
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	if resp.CompetitorMatches == nil {
		resp.CompetitorMatches = []string{}
	}
	query := `
		INSERT INTO prompt_responses (id, batch_id, question_text, answer_text, tokens_used, brand_match, competitor_matches)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (batch_id, question_text) DO NOTHING`
	res, err := r.db.DB.ExecContext(ctx, query,
		resp.ID, resp.BatchID, resp.QuestionText, resp.AnswerText, resp.TokensUsed, resp.BrandMatch, resp.CompetitorMatches,
	)
	if err != nil {
		return false, fmt.Errorf("failed to store response: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *responseRepo) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]*models.QuestionResponse, error) {
	var out []*models.QuestionResponse
	query := `SELECT ` + responseColumns + ` FROM prompt_responses r WHERE r.batch_id = $1 ORDER BY r.created_at, r.id`
	if err := r.db.DB.SelectContext(ctx, &out, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to list responses of batch %s: %w", batchID, err)
	}
	return out, nil
}

func (r *responseRepo) ListByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]*models.QuestionResponse, error) {
	var out []*models.QuestionResponse
	query := `
		SELECT ` + responseColumns + `
		FROM prompt_responses r
		JOIN prompt_batches b ON b.id = r.batch_id
		WHERE b.questionnaire_id = $1
		ORDER BY b.batch_number, r.created_at, r.id`
	if err := r.db.DB.SelectContext(ctx, &out, query, questionnaireID); err != nil {
		return nil, fmt.Errorf("failed to list responses of %s: %w", questionnaireID, err)
	}
	return out, nil
}

func (r *responseRepo) SumTokensByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) (int, error) {
	var total int
	query := `
		SELECT COALESCE(SUM(r.tokens_used), 0)
		FROM prompt_responses r
		JOIN prompt_batches b ON b.id = r.batch_id
		WHERE b.questionnaire_id = $1`
	if err := r.db.DB.GetContext(ctx, &total, query, questionnaireID); err != nil {
		return 0, fmt.Errorf("failed to sum tokens of %s: %w", questionnaireID, err)
	}
	return total, nil
}
