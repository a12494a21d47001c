// services/batch_manager.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

type batchManager struct {
	repos     *RepositoryManager
	processor QuestionProcessor
	batchSize int
	log       *zap.SugaredLogger
}

func NewBatchManager(cfg config.PipelineConfig, repos *RepositoryManager, processor QuestionProcessor, log *zap.SugaredLogger) BatchManager {
	size := cfg.BatchSize
	if size <= 0 {
		size = config.DefaultPipeline().BatchSize
	}
	return &batchManager{
		repos:     repos,
		processor: processor,
		batchSize: size,
		log:       log,
	}
}

// SplitQuestions chunks questions in order into groups of at most size.
func SplitQuestions(questions []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	chunks := make([][]string, 0, (len(questions)+size-1)/size)
	for start := 0; start < len(questions); start += size {
		end := min(start+size, len(questions))
		chunks = append(chunks, append([]string(nil), questions[start:end]...))
	}
	return chunks
}

// PrepareBatches returns the ordered batches of a questionnaire. Stored
// batches win over questions; otherwise questions are split and persisted as
// pending batches numbered from 1.
func (m *batchManager) PrepareBatches(ctx context.Context, questionnaireID uuid.UUID, questions []string) ([]*models.Batch, error) {
	existing, err := m.repos.BatchRepo.ListByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}
	if len(existing) > 0 {
		m.log.Infof("[PrepareBatches] Reusing %d stored batches of %s", len(existing), questionnaireID)
		return existing, nil
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("questionnaire %s has no questions to batch", questionnaireID)
	}

	chunks := SplitQuestions(questions, m.batchSize)
	batches := make([]*models.Batch, len(chunks))
	for i, chunk := range chunks {
		batches[i] = &models.Batch{
			QuestionnaireID: questionnaireID,
			BatchNumber:     i + 1,
			Questions:       models.QuestionList(chunk),
			Status:          models.BatchPending,
		}
	}
	if err := m.repos.BatchRepo.CreateMany(ctx, batches); err != nil {
		return nil, fmt.Errorf("failed to create batches: %w", err)
	}

	stored, err := m.repos.BatchRepo.ListByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload batches: %w", err)
	}
	m.log.Infof("[PrepareBatches] Created %d batches for %d questions of %s", len(stored), len(questions), questionnaireID)
	return stored, nil
}

// ProcessSpecificBatch runs one batch, crediting the questions of every other
// complete batch towards progress.
func (m *batchManager) ProcessSpecificBatch(ctx context.Context, q *models.Questionnaire, plans []*models.Batch, target *models.Batch) (*BatchResult, error) {
	if target.Status == models.BatchComplete {
		return &BatchResult{
			BatchID:     target.ID,
			BatchNumber: target.BatchNumber,
			Status:      models.BatchComplete,
			Answered:    len(target.Questions),
			Processed:   creditedQuestions(plans, target.ID) + len(target.Questions),
		}, nil
	}

	id := target.ID
	return m.processor.ProcessBatch(ctx, BatchRun{
		Questionnaire:       q,
		BatchID:             &id,
		BatchNumber:         target.BatchNumber,
		Questions:           target.Questions,
		TotalQuestions:      TotalQuestions(plans),
		PreviouslyProcessed: creditedQuestions(plans, target.ID),
	})
}

// ProcessAllBatches runs the non-complete batches one after another in
// ascending batch number. A batch held by another worker is recorded as
// skipped; other batch errors stop the run.
func (m *batchManager) ProcessAllBatches(ctx context.Context, q *models.Questionnaire, plans []*models.Batch) ([]*BatchResult, error) {
	ordered := append([]*models.Batch(nil), plans...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].BatchNumber < ordered[j].BatchNumber })

	results := make([]*BatchResult, 0, len(ordered))
	for _, batch := range ordered {
		if batch.Status == models.BatchComplete {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := m.ProcessSpecificBatch(ctx, q, ordered, batch)
		if errors.Is(err, ErrBatchLeased) {
			m.log.Warnf("[ProcessAllBatches] Skipping batch %d of %s: %v", batch.BatchNumber, q.ID, err)
			results = append(results, &BatchResult{BatchID: batch.ID, BatchNumber: batch.BatchNumber, Status: batch.Status, Skipped: true})
			continue
		}
		if err != nil {
			return results, err
		}

		batch.Status = result.Status
		results = append(results, result)
		m.log.Infof("[ProcessAllBatches] Batch %d/%d of %s finished with status %s", batch.BatchNumber, len(ordered), q.ID, result.Status)
	}
	return results, nil
}

func (m *batchManager) CheckBatchesCompletion(ctx context.Context, questionnaireID uuid.UUID) (bool, error) {
	batches, err := m.repos.BatchRepo.ListByQuestionnaire(ctx, questionnaireID)
	if err != nil {
		return false, err
	}
	return AllComplete(batches), nil
}

// NextBatch is the lowest numbered batch that is not complete, or nil.
func NextBatch(plans []*models.Batch) *models.Batch {
	var next *models.Batch
	for _, b := range plans {
		if b.Status == models.BatchComplete {
			continue
		}
		if next == nil || b.BatchNumber < next.BatchNumber {
			next = b
		}
	}
	return next
}

// AllComplete is true when there is at least one batch and every batch is complete.
func AllComplete(batches []*models.Batch) bool {
	if len(batches) == 0 {
		return false
	}
	return CountComplete(batches) == len(batches)
}

func CountComplete(batches []*models.Batch) int {
	n := 0
	for _, b := range batches {
		if b.Status == models.BatchComplete {
			n++
		}
	}
	return n
}

// TotalQuestions is the number of questions across all batches.
func TotalQuestions(batches []*models.Batch) int {
	n := 0
	for _, b := range batches {
		n += len(b.Questions)
	}
	return n
}

func creditedQuestions(batches []*models.Batch, except uuid.UUID) int {
	n := 0
	for _, b := range batches {
		if b.ID != except && b.Status == models.BatchComplete {
			n += len(b.Questions)
		}
	}
	return n
}

// QuestionsOf flattens stored batches back into the ordered question list.
func QuestionsOf(batches []*models.Batch) []string {
	ordered := append([]*models.Batch(nil), batches...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].BatchNumber < ordered[j].BatchNumber })
	out := make([]string, 0, TotalQuestions(ordered))
	for _, b := range ordered {
		out = append(out, b.Questions...)
	}
	return out
}
