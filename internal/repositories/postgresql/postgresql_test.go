package postgresql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

func newMockClient(t *testing.T) (*database.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &database.Client{DB: sqlx.NewDb(db, "postgres")}, mock
}

func TestQuestionnaireGetByID(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewQuestionnaireRepo(client)
	id := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "brand_name", "aliases", "competitors", "sector", "website",
		"status", "progress_percent", "error_message", "created_at", "updated_at",
	}).AddRow(id.String(), uuid.New().String(), "Acme", []byte("{ACME}"), []byte("{Globex,Initech}"), nil, nil,
		"processing", 40, nil, now, now)
	mock.ExpectQuery(`SELECT .* FROM brand_questionnaires WHERE id = \$1`).WithArgs(id).WillReturnRows(rows)

	q, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Acme", q.BrandName)
	assert.Equal(t, []string{"Globex", "Initech"}, []string(q.Competitors))
	assert.Equal(t, models.JobProcessing, q.Status)
	assert.Equal(t, 40, q.ProgressPercent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionnaireGetByIDNotFound(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewQuestionnaireRepo(client)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .* FROM brand_questionnaires`).WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestQuestionnaireTransition(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		wantErr error
	}{
		{name: "applied", rows: 1},
		{name: "status filtered out", rows: 0, wantErr: interfaces.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mock := newMockClient(t)
			repo := NewQuestionnaireRepo(client)
			id := uuid.New()

			mock.ExpectExec(`UPDATE brand_questionnaires\s+SET status = \$2`).
				WithArgs(id, models.JobProcessing, nil, nil, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			err := repo.Transition(context.Background(), id, interfaces.QuestionnaireUpdate{
				From: []models.JobStatus{models.JobPending},
				To:   models.JobProcessing,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestQuestionnaireAdvanceProgressIsMonotonic(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewQuestionnaireRepo(client)
	id := uuid.New()

	mock.ExpectExec(`SET progress_percent = GREATEST\(progress_percent, \$2\)`).
		WithArgs(id, 55).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AdvanceProgress(context.Background(), id, 55))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionnaireListStalled(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewQuestionnaireRepo(client)
	before := time.Now().Add(-time.Hour)
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT id FROM brand_questionnaires\s+WHERE status = ANY\(\$1\) AND updated_at < \$2`).
		WithArgs(sqlmock.AnyArg(), before, 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(a.String()).AddRow(b.String()))

	ids, err := repo.ListStalled(context.Background(), []models.JobStatus{models.JobProcessing}, before, 10)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchCreateManyIgnoresExisting(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewBatchRepo(client)
	qid := uuid.New()

	batches := []*models.Batch{
		{QuestionnaireID: qid, BatchNumber: 1, Questions: models.QuestionList{"a", "b"}},
		{QuestionnaireID: qid, BatchNumber: 2, Questions: models.QuestionList{"c"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO prompt_batches .* ON CONFLICT \(questionnaire_id, batch_number\) DO NOTHING`).
		WithArgs(sqlmock.AnyArg(), qid, 1, []byte(`["a","b"]`), models.BatchPending).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO prompt_batches`).
		WithArgs(sqlmock.AnyArg(), qid, 2, []byte(`["c"]`), models.BatchPending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateMany(context.Background(), batches))
	assert.NotEqual(t, uuid.Nil, batches[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchCreateManyRollsBackOnError(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewBatchRepo(client)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO prompt_batches`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.CreateMany(context.Background(), []*models.Batch{{QuestionnaireID: uuid.New(), BatchNumber: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBatchListByQuestionnaire(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewBatchRepo(client)
	qid := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "questionnaire_id", "batch_number", "questions", "status", "error_message", "created_at", "updated_at"}).
		AddRow(uuid.New().String(), qid.String(), 1, []byte(`["q1","q2"]`), "complete", nil, now, now).
		AddRow(uuid.New().String(), qid.String(), 2, []byte(`"[\"q3\"]"`), "error", "Processed 0/1 questions.", now, now)
	mock.ExpectQuery(`FROM prompt_batches WHERE questionnaire_id = \$1 ORDER BY batch_number`).WithArgs(qid).WillReturnRows(rows)

	batches, err := repo.ListByQuestionnaire(context.Background(), qid)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, models.QuestionList{"q1", "q2"}, batches[0].Questions)
	assert.Equal(t, models.QuestionList{"q3"}, batches[1].Questions)
	require.NotNil(t, batches[1].ErrorMessage)
	assert.Equal(t, models.BatchError, batches[1].Status)
}

func TestResponseCreateReportsDuplicate(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewResponseRepo(client)

	mock.ExpectExec(`INSERT INTO prompt_responses .* ON CONFLICT \(batch_id, question_text\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.Create(context.Background(), &models.QuestionResponse{BatchID: uuid.New(), QuestionText: "q"})
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResponseSumTokens(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewResponseRepo(client)
	qid := uuid.New()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(r.tokens_used\), 0\)`).WithArgs(qid).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(12345))

	total, err := repo.SumTokensByQuestionnaire(context.Background(), qid)
	require.NoError(t, err)
	assert.Equal(t, 12345, total)
}

func TestFinalReportUpsert(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewFinalReportRepo(client)
	qid := uuid.New()
	id := uuid.New()
	now := time.Now()
	url := "https://cdn.example.com/r.html"

	mock.ExpectQuery(`INSERT INTO final_reports .* ON CONFLICT \(questionnaire_id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), qid, []byte(`{"a":1}`), 900, 0.009, false, &url, models.ReportReady, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(id.String(), now, now))

	fr := &models.FinalReport{
		QuestionnaireID: qid,
		SummaryJSON:     models.JSON(`{"a":1}`),
		TotalTokens:     900,
		CostEUR:         0.009,
		ArtifactURL:     &url,
		Status:          models.ReportReady,
	}
	require.NoError(t, repo.Upsert(context.Background(), fr))
	assert.Equal(t, id, fr.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSummaryGetByBatchNotFound(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewSummaryRepo(client)
	bid := uuid.New()

	mock.ExpectQuery(`FROM batch_summaries WHERE batch_id = \$1`).WithArgs(bid).
		WillReturnRows(sqlmock.NewRows([]string{"id", "batch_id", "summary_json", "created_at"}))

	_, err := repo.GetByBatch(context.Background(), bid)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}
