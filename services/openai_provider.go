// services/openai_provider.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/retry"
)

type openAIProvider struct {
	client      *openai.Client
	model       string
	temperature float64
}

func NewOpenAIProvider(cfg *config.Config, opts ...option.RequestOption) CompletionClient {
	// retries belong to the completer
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey), option.WithMaxRetries(0)}, opts...)
	client := openai.NewClient(opts...)

	return &openAIProvider{
		client:      &client,
		model:       cfg.Pipeline.Model,
		temperature: cfg.Pipeline.Temperature,
	}
}

func (p *openAIProvider) GetProviderName() string {
	return "openai"
}

func (p *openAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(userPrompt))

	response, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(p.model),
		Temperature: openai.Float(p.temperature),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Completion{
		Text:         response.Choices[0].Message.Content,
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && isPermanentStatus(apiErr.StatusCode) {
		return retry.Permanent(fmt.Errorf("openai request rejected: %w", err))
	}
	return fmt.Errorf("openai request failed: %w", err)
}

// isPermanentStatus reports client errors that will fail the same way on retry.
func isPermanentStatus(code int) bool {
	if code < 400 || code >= 500 {
		return false
	}
	switch code {
	case 408, 409, 429:
		return false
	}
	return true
}
