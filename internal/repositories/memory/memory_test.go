package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

func TestTransitionFiltersBySourceStatus(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	q := &models.Questionnaire{UserID: uuid.New(), BrandName: "Acme"}
	require.NoError(t, s.Questionnaires().Create(ctx, q))

	err := s.Questionnaires().Transition(ctx, q.ID, interfaces.QuestionnaireUpdate{
		From: []models.JobStatus{models.JobProcessing},
		To:   models.JobComplete,
	})
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	require.NoError(t, s.Questionnaires().Transition(ctx, q.ID, interfaces.QuestionnaireUpdate{
		From: []models.JobStatus{models.JobPending},
		To:   models.JobProcessing,
	}))
	got, err := s.Questionnaires().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, got.Status)
}

func TestAdvanceProgressNeverLowers(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	q := &models.Questionnaire{BrandName: "Acme"}
	require.NoError(t, s.Questionnaires().Create(ctx, q))

	for _, p := range []int{10, 40, 25, 40, 60} {
		require.NoError(t, s.Questionnaires().AdvanceProgress(ctx, q.ID, p))
	}
	got, _ := s.Questionnaires().GetByID(ctx, q.ID)
	assert.Equal(t, 60, got.ProgressPercent)
}

func TestListStalledOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	now := time.Now()

	var ids []uuid.UUID
	for i, status := range []models.JobStatus{models.JobProcessing, models.JobProcessing, models.JobError, models.JobProcessing} {
		q := &models.Questionnaire{BrandName: "Acme", Status: status}
		require.NoError(t, s.Questionnaires().Create(ctx, q))
		s.Touch(q.ID, now.Add(-time.Duration(10-i)*time.Minute))
		ids = append(ids, q.ID)
	}
	s.Touch(ids[3], now)

	got, err := s.Questionnaires().ListStalled(ctx, []models.JobStatus{models.JobProcessing}, now.Add(-time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[0], ids[1]}, got)

	got, err = s.Questionnaires().ListStalled(ctx, []models.JobStatus{models.JobProcessing}, now.Add(-time.Minute), 1)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{ids[0]}, got)
}

func TestBatchAndResponseUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	qid := uuid.New()

	first := []*models.Batch{{QuestionnaireID: qid, BatchNumber: 1, Questions: models.QuestionList{"a"}}}
	again := []*models.Batch{{QuestionnaireID: qid, BatchNumber: 1, Questions: models.QuestionList{"z"}}}
	require.NoError(t, s.Batches().CreateMany(ctx, first))
	require.NoError(t, s.Batches().CreateMany(ctx, again))

	batches, err := s.Batches().ListByQuestionnaire(ctx, qid)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, models.QuestionList{"a"}, batches[0].Questions)

	inserted, err := s.Responses().Create(ctx, &models.QuestionResponse{BatchID: batches[0].ID, QuestionText: "a", TokensUsed: 5})
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = s.Responses().Create(ctx, &models.QuestionResponse{BatchID: batches[0].ID, QuestionText: "a", TokensUsed: 7})
	require.NoError(t, err)
	assert.False(t, inserted)

	total, err := s.Responses().SumTokensByQuestionnaire(ctx, qid)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
}
