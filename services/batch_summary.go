package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

type batchSummarizer struct {
	repos     *RepositoryManager
	completer *completer
	log       *zap.SugaredLogger
}

func NewBatchSummarizer(cfg config.PipelineConfig, repos *RepositoryManager, client CompletionClient, rec metrics.Recorder, log *zap.SugaredLogger) BatchSummarizer {
	return &batchSummarizer{
		repos:     repos,
		completer: newCompleter(client, cfg.MaxRetries, cfg.RetryBaseDelay, rec, log),
		log:       log,
	}
}

func (s *batchSummarizer) SummarizeBatch(ctx context.Context, batch *models.Batch, brand models.BrandInfo) error {
	if _, err := s.repos.SummaryRepo.GetByBatch(ctx, batch.ID); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	responses, err := s.repos.ResponseRepo.ListByBatch(ctx, batch.ID)
	if err != nil {
		return err
	}
	if len(responses) == 0 {
		return fmt.Errorf("batch %d has no responses to summarize", batch.BatchNumber)
	}

	resp, err := s.completer.complete(ctx, purposeBatchSummary, BatchSummarySystemPrompt, buildBatchSummaryPrompt(brand, responses))
	if err != nil {
		return fmt.Errorf("failed to summarize batch %d: %w", batch.BatchNumber, err)
	}

	raw, err := extractJSON(resp.Text, '{')
	if err != nil {
		return fmt.Errorf("batch %d summary: %w", batch.BatchNumber, err)
	}

	created, err := s.repos.SummaryRepo.Create(ctx, &models.BatchSummary{BatchID: batch.ID, SummaryJSON: models.JSON(raw)})
	if err != nil {
		return err
	}
	if created {
		s.log.Infof("[SummarizeBatch] Stored summary of batch %d", batch.BatchNumber)
	}
	return nil
}
