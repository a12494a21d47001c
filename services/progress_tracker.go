// services/progress_tracker.go
package services

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

// MaxInFlightProgress is the highest percentage shown before the final report exists.
const MaxInFlightProgress = 99

type progressTracker struct {
	questionnaires interfaces.QuestionnaireRepository
}

func NewProgressTracker(repos *RepositoryManager) ProgressTracker {
	return &progressTracker{questionnaires: repos.QuestionnaireRepo}
}

// ProgressPercent is round(processed/total*100) clamped to [0, 99].
func ProgressPercent(total, processed int) int {
	if total <= 0 || processed <= 0 {
		return 0
	}
	pct := int(math.Round(float64(processed) / float64(total) * 100))
	if pct > MaxInFlightProgress {
		return MaxInFlightProgress
	}
	return pct
}

// UpdateProgress never lowers the stored value.
func (t *progressTracker) UpdateProgress(ctx context.Context, questionnaireID uuid.UUID, total, processed int) error {
	if total <= 0 {
		return nil
	}
	return t.questionnaires.AdvanceProgress(ctx, questionnaireID, ProgressPercent(total, processed))
}

// Reset sets progress back to 0 and keeps status and error message.
func (t *progressTracker) Reset(ctx context.Context, questionnaireID uuid.UUID) error {
	q, err := t.questionnaires.GetByID(ctx, questionnaireID)
	if err != nil {
		return err
	}
	zero := 0
	return t.questionnaires.Transition(ctx, questionnaireID, interfaces.QuestionnaireUpdate{
		From:         []models.JobStatus{q.Status},
		To:           q.Status,
		ErrorMessage: q.ErrorMessage,
		Progress:     &zero,
	})
}
