package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/testutil"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

func TestTransitionTables(t *testing.T) {
	assert.True(t, services.CanTransitionJob(models.JobPending, models.JobProcessing))
	assert.True(t, services.CanTransitionJob(models.JobProcessing, models.JobComplete))
	assert.True(t, services.CanTransitionJob(models.JobError, models.JobProcessing))
	assert.False(t, services.CanTransitionJob(models.JobComplete, models.JobProcessing))
	assert.False(t, services.CanTransitionJob(models.JobComplete, models.JobError))
	assert.False(t, services.CanTransitionJob(models.JobComplete, models.JobPending))

	assert.True(t, services.CanTransitionBatch(models.BatchError, models.BatchProcessing))
	assert.True(t, services.CanTransitionBatch(models.BatchProcessing, models.BatchComplete))
	assert.False(t, services.CanTransitionBatch(models.BatchPending, models.BatchComplete))
	assert.False(t, services.CanTransitionBatch(models.BatchComplete, models.BatchProcessing))
	assert.False(t, services.CanTransitionBatch(models.BatchComplete, models.BatchError))
}

func TestCompleteIsTerminal(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)

	require.NoError(t, h.Status.StartJob(ctx, q.ID))
	require.NoError(t, h.Status.CompleteJob(ctx, q.ID))

	assert.ErrorIs(t, h.Status.StartJob(ctx, q.ID), services.ErrInvalidTransition)
	assert.ErrorIs(t, h.Status.FailJob(ctx, q.ID, "late failure"), services.ErrInvalidTransition)
	assert.ErrorIs(t, h.Status.PauseJob(ctx, q.ID), services.ErrInvalidTransition)

	_, err := h.Status.Retry(ctx, q.ID, nil)
	assert.ErrorIs(t, err, services.ErrAlreadyComplete)

	job, err := h.Store.Questionnaires().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobComplete, job.Status)
	assert.Equal(t, 100, job.ProgressPercent)
}

func TestStartJobClearsError(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)

	require.NoError(t, h.Status.FailJob(ctx, q.ID, "boom"))
	require.NoError(t, h.Status.StartJob(ctx, q.ID))

	job, err := h.Store.Questionnaires().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobProcessing, job.Status)
	assert.Nil(t, job.ErrorMessage)
}

func TestRetryResetsJobAndBatch(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)
	batches, err := h.Batches.PrepareBatches(ctx, q.ID, testutil.SampleQuestions(30))
	require.NoError(t, err)

	require.NoError(t, h.Status.StartJob(ctx, q.ID))
	require.NoError(t, h.Store.Questionnaires().AdvanceProgress(ctx, q.ID, 40))
	require.NoError(t, h.Status.StartBatch(ctx, batches[1].ID))
	require.NoError(t, h.Status.FailBatch(ctx, batches[1].ID, "Processed 3/10 questions. Failed to process 7 questions."))
	require.NoError(t, h.Status.FailJob(ctx, q.ID, "Processed 1 of 2 batches. 1 batches could not be processed."))

	id := batches[1].ID
	job, err := h.Status.Retry(ctx, q.ID, &id)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Zero(t, job.ProgressPercent)
	assert.Nil(t, job.ErrorMessage)

	batch, err := h.Store.Batches().GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.BatchPending, batch.Status)
	assert.Nil(t, batch.ErrorMessage)
}

func TestRetryRecoversStuckJob(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)
	require.NoError(t, h.Status.StartJob(ctx, q.ID))
	require.NoError(t, h.Store.Questionnaires().AdvanceProgress(ctx, q.ID, 64))

	job, err := h.Status.Retry(ctx, q.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Zero(t, job.ProgressPercent)
}

func TestRetryValidatesBatch(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)
	other := testutil.CreateQuestionnaire(t, h.Store, "Other", nil, nil)
	batches, err := h.Batches.PrepareBatches(ctx, other.ID, testutil.SampleQuestions(5))
	require.NoError(t, err)

	foreign := batches[0].ID
	_, err = h.Status.Retry(ctx, q.ID, &foreign)
	assert.ErrorIs(t, err, services.ErrBatchNotInJob)

	missing := uuid.New()
	_, err = h.Status.Retry(ctx, q.ID, &missing)
	assert.ErrorIs(t, err, services.ErrNotFound)

	_, err = h.Status.Retry(ctx, uuid.New(), nil)
	assert.ErrorIs(t, err, services.ErrNotFound)

	require.NoError(t, h.Status.StartBatch(ctx, foreign))
	require.NoError(t, h.Status.CompleteBatch(ctx, foreign))
	_, err = h.Status.Retry(ctx, other.ID, &foreign)
	assert.ErrorIs(t, err, services.ErrInvalidTransition)
}

func TestCompleteBatchRequiresProcessing(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)
	batches, err := h.Batches.PrepareBatches(ctx, q.ID, testutil.SampleQuestions(5))
	require.NoError(t, err)

	assert.ErrorIs(t, h.Status.CompleteBatch(ctx, batches[0].ID), services.ErrInvalidTransition)
}

func TestProgressIsMonotonicAndCapped(t *testing.T) {
	h := testutil.NewHarness(t)
	ctx := context.Background()
	q := testutil.CreateQuestionnaire(t, h.Store, "Acme", nil, nil)

	steps := []struct {
		total, processed, want int
	}{
		{total: 47, processed: 10, want: 21},
		{total: 47, processed: 5, want: 21},
		{total: 47, processed: 47, want: 99},
		{total: 0, processed: 10, want: 99},
	}
	for _, s := range steps {
		require.NoError(t, h.Progress.UpdateProgress(ctx, q.ID, s.total, s.processed))
		job, err := h.Store.Questionnaires().GetByID(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, s.want, job.ProgressPercent)
	}

	require.NoError(t, h.Progress.Reset(ctx, q.ID))
	job, err := h.Store.Questionnaires().GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Zero(t, job.ProgressPercent)
	assert.Equal(t, models.JobPending, job.Status)
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 0, services.ProgressPercent(0, 0))
	assert.Equal(t, 0, services.ProgressPercent(100, -1))
	assert.Equal(t, 1, services.ProgressPercent(200, 1))
	assert.Equal(t, 50, services.ProgressPercent(2, 1))
	assert.Equal(t, 99, services.ProgressPercent(100, 100))
	assert.Equal(t, 99, services.ProgressPercent(10, 20))
}
