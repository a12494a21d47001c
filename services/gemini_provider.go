// services/gemini_provider.go
package services

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/retry"
)

type geminiProvider struct {
	client      *genai.Client
	model       string
	temperature float32
}

// GeminiOption adjusts the genai client configuration.
type GeminiOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client at another endpoint.
func WithGeminiBaseURL(url string) GeminiOption {
	return func(cc *genai.ClientConfig) { cc.HTTPOptions.BaseURL = url }
}

func NewGeminiProvider(ctx context.Context, cfg *config.Config, opts ...GeminiOption) (CompletionClient, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cc)
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiProvider{
		client:      client,
		model:       cfg.Pipeline.Model,
		temperature: float32(cfg.Pipeline.Temperature),
	}, nil
}

func (p *geminiProvider) GetProviderName() string {
	return "gemini"
}

func (p *geminiProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temperature),
	}
	if systemPrompt != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(userPrompt), genConfig)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && isPermanentStatus(apiErr.Code) {
			return nil, retry.Permanent(fmt.Errorf("gemini request rejected: %w", err))
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned no text content")
	}

	completion := &Completion{Text: text}
	if result.UsageMetadata != nil {
		completion.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		completion.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}
