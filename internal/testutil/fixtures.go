package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/memory"
)

// SampleConfig returns a test configuration with instant retries.
func SampleConfig() *config.Config {
	pipeline := config.DefaultPipeline()
	pipeline.RetryBaseDelay = time.Microsecond
	return &config.Config{
		Environment:  "test",
		Dispatcher:   "local",
		OpenAIAPIKey: "test-openai-key",
		Storage:      config.StorageConfig{Backend: "memory", Bucket: "reports"},
		Pipeline:     pipeline,
	}
}

// SampleQuestions returns n distinct questions about Acme.
func SampleQuestions(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Question %d: is Acme a good choice?", i+1)
	}
	return out
}

// CreateQuestionnaire stores a pending questionnaire for the given brand.
func CreateQuestionnaire(t *testing.T, store *memory.Store, brand string, aliases, competitors []string) *models.Questionnaire {
	t.Helper()
	q := &models.Questionnaire{
		UserID:      uuid.New(),
		BrandName:   brand,
		Aliases:     aliases,
		Competitors: competitors,
		Status:      models.JobPending,
	}
	require.NoError(t, store.Questionnaires().Create(context.Background(), q))
	return q
}
