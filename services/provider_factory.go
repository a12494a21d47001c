package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
)

// NewCompletionClient picks the provider from the configured model name.
func NewCompletionClient(ctx context.Context, cfg *config.Config) (CompletionClient, error) {
	model := strings.ToLower(cfg.Pipeline.Model)
	switch {
	case strings.HasPrefix(model, "claude"):
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("model %s requires ANTHROPIC_API_KEY", cfg.Pipeline.Model)
		}
		return NewAnthropicProvider(cfg), nil
	case strings.HasPrefix(model, "gemini"):
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("model %s requires GEMINI_API_KEY", cfg.Pipeline.Model)
		}
		return NewGeminiProvider(ctx, cfg)
	case strings.HasPrefix(model, "gpt"), strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"), strings.HasPrefix(model, "o4"):
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("model %s requires OPENAI_API_KEY", cfg.Pipeline.Model)
		}
		return NewOpenAIProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported model: %s", cfg.Pipeline.Model)
	}
}
