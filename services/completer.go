package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/retry"
)

// Completion purposes, used as metric labels and in logs.
const (
	purposeGenerate     = "generate"
	purposeAnswer       = "answer"
	purposeBatchSummary = "batch_summary"
	purposeMetaSummary  = "meta_summary"
)

// completer runs every completion call through the retry policy.
type completer struct {
	client  CompletionClient
	policy  retry.Policy
	metrics metrics.Recorder
	log     *zap.SugaredLogger
}

func newCompleter(client CompletionClient, maxRetries int, baseDelay time.Duration, rec metrics.Recorder, log *zap.SugaredLogger) *completer {
	return &completer{
		client:  client,
		policy:  retry.Policy{MaxRetries: maxRetries, BaseDelay: baseDelay},
		metrics: rec,
		log:     log,
	}
}

func (c *completer) complete(ctx context.Context, purpose, systemPrompt, userPrompt string) (*Completion, error) {
	policy := c.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.metrics.CompletionRetry(purpose)
		c.log.Warnf("[Completion] %s call via %s failed, retry %d/%d in %s: %v",
			purpose, c.client.GetProviderName(), attempt, c.policy.MaxRetries, delay, err)
	}

	resp, err := retry.DoValue(ctx, policy, func(ctx context.Context) (*Completion, error) {
		return c.client.Complete(ctx, systemPrompt, userPrompt)
	})
	if err != nil {
		c.metrics.CompletionCall(purpose, "error", 0)
		return nil, err
	}
	c.metrics.CompletionCall(purpose, "ok", resp.TokenCount())
	return resp, nil
}
