package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

// ErrTransient is what MockCompletionClient returns for injected failures.
var ErrTransient = errors.New("503 service unavailable")

// Call records one completion request.
type Call struct {
	SystemPrompt string
	UserPrompt   string
}

// MockCompletionClient answers completion calls by prompt kind.
type MockCompletionClient struct {
	mu    sync.Mutex
	calls []Call
	tries map[string]int

	// Questions is returned as a JSON array for generation prompts.
	Questions []string
	// GenerationText overrides the generation reply verbatim.
	GenerationText string
	// Answer builds the reply to a question. Defaults to a neutral sentence.
	Answer func(question string) string
	// FailAnswer injects failures; attempt starts at 1 for each question.
	FailAnswer func(question string, attempt int) error
	// BatchSummaryText and MetaSummaryText override the summary replies.
	BatchSummaryText string
	MetaSummaryText  string
	// FailMeta makes meta-summary calls fail.
	FailMeta error
	// TokensPerCall is reported as output tokens on every successful call.
	TokensPerCall int
}

func NewMockCompletionClient() *MockCompletionClient {
	return &MockCompletionClient{
		tries:         make(map[string]int),
		TokensPerCall: 100,
	}
}

func (m *MockCompletionClient) GetProviderName() string {
	return "mock"
}

func (m *MockCompletionClient) Complete(_ context.Context, systemPrompt, userPrompt string) (*services.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	m.tries[userPrompt]++
	attempt := m.tries[userPrompt]
	m.mu.Unlock()

	var text string
	switch systemPrompt {
	case services.GeneratorSystemPrompt:
		text = m.GenerationText
		if text == "" {
			text = jsonArray(m.Questions)
		}
	case services.AnswerSystemPrompt:
		if m.FailAnswer != nil {
			if err := m.FailAnswer(userPrompt, attempt); err != nil {
				return nil, err
			}
		}
		if m.Answer != nil {
			text = m.Answer(userPrompt)
		} else {
			text = "There are several good options on the market."
		}
	case services.BatchSummarySystemPrompt:
		text = m.BatchSummaryText
		if text == "" {
			text = `{"brand_mentions": 1, "competitor_mentions": {}, "tone": "neutral", "highlights": []}`
		}
	case services.MetaSummarySystemPrompt:
		if m.FailMeta != nil {
			return nil, m.FailMeta
		}
		text = m.MetaSummaryText
		if text == "" {
			text = `{"brand_presence_percent": 50, "top_competitors": [], "improvement_tactics": ["Publish comparisons"], "executive_conclusion": "Solid."}`
		}
	default:
		return nil, fmt.Errorf("unexpected prompt kind: %q", systemPrompt)
	}

	return &services.Completion{Text: text, InputTokens: 0, OutputTokens: m.TokensPerCall}, nil
}

// Calls returns every recorded request.
func (m *MockCompletionClient) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns how many requests used the given system prompt.
func (m *MockCompletionClient) CallCount(systemPrompt string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.SystemPrompt == systemPrompt {
			n++
		}
	}
	return n
}

// MockNotifier records notifications.
type MockNotifier struct {
	mu         sync.Mutex
	Failures   []string
	CostAlerts []*models.FinalReport
}

func (n *MockNotifier) JobFailed(_ context.Context, q *models.Questionnaire, reason string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Failures = append(n.Failures, fmt.Sprintf("%s: %s: %v", q.ID, reason, err))
}

func (n *MockNotifier) CostAlert(_ context.Context, _ *models.Questionnaire, report *models.FinalReport) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.CostAlerts = append(n.CostAlerts, report)
}

func (n *MockNotifier) FailureCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Failures)
}

func jsonArray(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, _ := json.Marshal(items)
	return string(data)
}
