// Package memory is an in-process store with the same semantics as the
// PostgreSQL repositories: unique keys, filtered transitions and monotonic
// progress. It backs tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
)

// Store holds every table behind one lock.
type Store struct {
	mu             sync.Mutex
	questionnaires map[uuid.UUID]*models.Questionnaire
	batches        map[uuid.UUID]*models.Batch
	responses      map[uuid.UUID][]*models.QuestionResponse // by batch
	summaries      map[uuid.UUID]*models.BatchSummary       // by batch
	reports        map[uuid.UUID]*models.FinalReport        // by questionnaire

	// FailOn, when set, is consulted before every write; a non-nil error is returned as is.
	FailOn func(op string) error
}

func NewStore() *Store {
	return &Store{
		questionnaires: make(map[uuid.UUID]*models.Questionnaire),
		batches:        make(map[uuid.UUID]*models.Batch),
		responses:      make(map[uuid.UUID][]*models.QuestionResponse),
		summaries:      make(map[uuid.UUID]*models.BatchSummary),
		reports:        make(map[uuid.UUID]*models.FinalReport),
	}
}

func (s *Store) fail(op string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op)
}

func (s *Store) Questionnaires() interfaces.QuestionnaireRepository { return questionnaireRepo{s} }
func (s *Store) Batches() interfaces.BatchRepository                 { return batchRepo{s} }
func (s *Store) Responses() interfaces.ResponseRepository            { return responseRepo{s} }
func (s *Store) Summaries() interfaces.SummaryRepository             { return summaryRepo{s} }
func (s *Store) FinalReports() interfaces.FinalReportRepository      { return finalReportRepo{s} }

type questionnaireRepo struct{ s *Store }

func (r questionnaireRepo) Create(_ context.Context, q *models.Questionnaire) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("questionnaire.create"); err != nil {
		return err
	}
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	if q.Status == "" {
		q.Status = models.JobPending
	}
	now := time.Now()
	q.CreatedAt, q.UpdatedAt = now, now
	cp := *q
	r.s.questionnaires[q.ID] = &cp
	return nil
}

func (r questionnaireRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Questionnaire, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	q, ok := r.s.questionnaires[id]
	if !ok {
		return nil, fmt.Errorf("questionnaire %s: %w", id, interfaces.ErrNotFound)
	}
	cp := *q
	return &cp, nil
}

func (r questionnaireRepo) Transition(_ context.Context, id uuid.UUID, u interfaces.QuestionnaireUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("questionnaire.transition"); err != nil {
		return err
	}
	q, ok := r.s.questionnaires[id]
	if !ok || !slices.Contains(u.From, q.Status) {
		return fmt.Errorf("questionnaire %s -> %s: %w", id, u.To, interfaces.ErrInvalidTransition)
	}
	q.Status = u.To
	q.ErrorMessage = copyStr(u.ErrorMessage)
	if u.Progress != nil {
		q.ProgressPercent = *u.Progress
	}
	q.UpdatedAt = time.Now()
	return nil
}

func (r questionnaireRepo) AdvanceProgress(_ context.Context, id uuid.UUID, percent int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("questionnaire.progress"); err != nil {
		return err
	}
	if q, ok := r.s.questionnaires[id]; ok && percent > q.ProgressPercent {
		q.ProgressPercent = percent
		q.UpdatedAt = time.Now()
	}
	return nil
}

func (r questionnaireRepo) ListStalled(_ context.Context, statuses []models.JobStatus, before time.Time, limit int) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var stalled []*models.Questionnaire
	for _, q := range r.s.questionnaires {
		if slices.Contains(statuses, q.Status) && q.UpdatedAt.Before(before) {
			stalled = append(stalled, q)
		}
	}
	sort.Slice(stalled, func(i, j int) bool { return stalled[i].UpdatedAt.Before(stalled[j].UpdatedAt) })
	if limit > 0 && len(stalled) > limit {
		stalled = stalled[:limit]
	}
	ids := make([]uuid.UUID, len(stalled))
	for i, q := range stalled {
		ids[i] = q.ID
	}
	return ids, nil
}

// Touch sets the updated_at of a questionnaire.
func (s *Store) Touch(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q, ok := s.questionnaires[id]; ok {
		q.UpdatedAt = at
	}
}

type batchRepo struct{ s *Store }

func (r batchRepo) CreateMany(_ context.Context, batches []*models.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("batch.create"); err != nil {
		return err
	}
	for _, b := range batches {
		if r.findByNumber(b.QuestionnaireID, b.BatchNumber) != nil {
			continue
		}
		if b.ID == uuid.Nil {
			b.ID = uuid.New()
		}
		if b.Status == "" {
			b.Status = models.BatchPending
		}
		now := time.Now()
		b.CreatedAt, b.UpdatedAt = now, now
		cp := *b
		cp.Questions = slices.Clone(b.Questions)
		r.s.batches[b.ID] = &cp
	}
	return nil
}

func (r batchRepo) findByNumber(qid uuid.UUID, number int) *models.Batch {
	for _, b := range r.s.batches {
		if b.QuestionnaireID == qid && b.BatchNumber == number {
			return b
		}
	}
	return nil
}

func (r batchRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, interfaces.ErrNotFound)
	}
	return copyBatch(b), nil
}

func (r batchRepo) GetByNumber(_ context.Context, qid uuid.UUID, number int) (*models.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b := r.findByNumber(qid, number)
	if b == nil {
		return nil, fmt.Errorf("batch %d of %s: %w", number, qid, interfaces.ErrNotFound)
	}
	return copyBatch(b), nil
}

func (r batchRepo) ListByQuestionnaire(_ context.Context, qid uuid.UUID) ([]*models.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Batch
	for _, b := range r.s.batches {
		if b.QuestionnaireID == qid {
			out = append(out, copyBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out, nil
}

func (r batchRepo) Transition(_ context.Context, id uuid.UUID, from []models.BatchStatus, to models.BatchStatus, errorMessage *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("batch.transition"); err != nil {
		return err
	}
	b, ok := r.s.batches[id]
	if !ok || !slices.Contains(from, b.Status) {
		return fmt.Errorf("batch %s -> %s: %w", id, to, interfaces.ErrInvalidTransition)
	}
	b.Status = to
	b.ErrorMessage = copyStr(errorMessage)
	b.UpdatedAt = time.Now()
	return nil
}

type responseRepo struct{ s *Store }

func (r responseRepo) Create(_ context.Context, resp *models.QuestionResponse) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("response.create"); err != nil {
		return false, err
	}
	for _, existing := range r.s.responses[resp.BatchID] {
		if existing.QuestionText == resp.QuestionText {
			return false, nil
		}
	}
	if resp.ID == uuid.Nil {
		resp.ID = uuid.New()
	}
	resp.CreatedAt = time.Now()
	cp := *resp
	r.s.responses[resp.BatchID] = append(r.s.responses[resp.BatchID], &cp)
	return true, nil
}

func (r responseRepo) ListByBatch(_ context.Context, batchID uuid.UUID) ([]*models.QuestionResponse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return copyResponses(r.s.responses[batchID]), nil
}

func (r responseRepo) ListByQuestionnaire(_ context.Context, qid uuid.UUID) ([]*models.QuestionResponse, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.QuestionResponse
	for _, b := range r.s.sortedBatches(qid) {
		out = append(out, copyResponses(r.s.responses[b.ID])...)
	}
	return out, nil
}

func (r responseRepo) SumTokensByQuestionnaire(_ context.Context, qid uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	total := 0
	for _, b := range r.s.sortedBatches(qid) {
		for _, resp := range r.s.responses[b.ID] {
			total += resp.TokensUsed
		}
	}
	return total, nil
}

type summaryRepo struct{ s *Store }

func (r summaryRepo) GetByBatch(_ context.Context, batchID uuid.UUID) (*models.BatchSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum, ok := r.s.summaries[batchID]
	if !ok {
		return nil, fmt.Errorf("summary of batch %s: %w", batchID, interfaces.ErrNotFound)
	}
	cp := *sum
	return &cp, nil
}

func (r summaryRepo) Create(_ context.Context, sum *models.BatchSummary) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("summary.create"); err != nil {
		return false, err
	}
	if _, ok := r.s.summaries[sum.BatchID]; ok {
		return false, nil
	}
	if sum.ID == uuid.Nil {
		sum.ID = uuid.New()
	}
	sum.CreatedAt = time.Now()
	cp := *sum
	r.s.summaries[sum.BatchID] = &cp
	return true, nil
}

func (r summaryRepo) ListByQuestionnaire(_ context.Context, qid uuid.UUID) ([]*models.BatchSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.BatchSummary
	for _, b := range r.s.sortedBatches(qid) {
		if b.Status != models.BatchComplete {
			continue
		}
		if sum, ok := r.s.summaries[b.ID]; ok {
			cp := *sum
			out = append(out, &cp)
		}
	}
	return out, nil
}

type finalReportRepo struct{ s *Store }

func (r finalReportRepo) GetByQuestionnaire(_ context.Context, qid uuid.UUID) (*models.FinalReport, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	fr, ok := r.s.reports[qid]
	if !ok {
		return nil, fmt.Errorf("final report of %s: %w", qid, interfaces.ErrNotFound)
	}
	cp := *fr
	return &cp, nil
}

func (r finalReportRepo) Upsert(_ context.Context, fr *models.FinalReport) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("report.upsert"); err != nil {
		return err
	}
	now := time.Now()
	if existing, ok := r.s.reports[fr.QuestionnaireID]; ok {
		fr.ID = existing.ID
		fr.CreatedAt = existing.CreatedAt
	} else {
		if fr.ID == uuid.Nil {
			fr.ID = uuid.New()
		}
		fr.CreatedAt = now
	}
	fr.UpdatedAt = now
	cp := *fr
	r.s.reports[fr.QuestionnaireID] = &cp
	return nil
}

func (r finalReportRepo) MarkError(_ context.Context, qid uuid.UUID, message string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if fr, ok := r.s.reports[qid]; ok && fr.Status != models.ReportReady {
		fr.Status = models.ReportError
		fr.ErrorMessage = &message
		fr.UpdatedAt = time.Now()
	}
	return nil
}

// ReportCount returns how many final reports exist.
func (s *Store) ReportCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func (s *Store) sortedBatches(qid uuid.UUID) []*models.Batch {
	var out []*models.Batch
	for _, b := range s.batches {
		if b.QuestionnaireID == qid {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BatchNumber < out[j].BatchNumber })
	return out
}

func copyBatch(b *models.Batch) *models.Batch {
	cp := *b
	cp.Questions = slices.Clone(b.Questions)
	cp.ErrorMessage = copyStr(b.ErrorMessage)
	return &cp
}

func copyResponses(in []*models.QuestionResponse) []*models.QuestionResponse {
	out := make([]*models.QuestionResponse, len(in))
	for i, r := range in {
		cp := *r
		out[i] = &cp
	}
	return out
}

func copyStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
