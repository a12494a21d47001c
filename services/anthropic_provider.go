// services/anthropic_provider.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/retry"
)

type anthropicProvider struct {
	client      *anthropic.Client
	model       string
	temperature float64
}

func NewAnthropicProvider(cfg *config.Config, opts ...option.RequestOption) CompletionClient {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.AnthropicAPIKey), option.WithMaxRetries(0)}, opts...)
	client := anthropic.NewClient(opts...)

	return &anthropicProvider{
		client:      &client,
		model:       cfg.Pipeline.Model,
		temperature: cfg.Pipeline.Temperature,
	}
}

func (p *anthropicProvider) GetProviderName() string {
	return "anthropic"
}

func (p *anthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	messages := []anthropic.MessageParam{{
		Content: []anthropic.ContentBlockParamUnion{{
			OfText: &anthropic.TextBlockParam{Text: userPrompt},
		}},
		Role: anthropic.MessageParamRoleUser,
	}}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   2000,
		Messages:    messages,
		Temperature: anthropic.Float(p.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && isPermanentStatus(apiErr.StatusCode) {
			return nil, retry.Permanent(fmt.Errorf("anthropic request rejected: %w", err))
		}
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	text := p.extractResponseText(*response)
	if text == "" {
		return nil, fmt.Errorf("anthropic returned no text content")
	}

	return &Completion{
		Text:         text,
		InputTokens:  int(response.Usage.InputTokens),
		OutputTokens: int(response.Usage.OutputTokens),
	}, nil
}

func (p *anthropicProvider) extractResponseText(response anthropic.Message) string {
	var textParts []string

	for _, block := range response.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			textParts = append(textParts, variant.Text)
		}
	}

	return strings.Join(textParts, "")
}
