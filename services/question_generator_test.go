package services_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/testutil"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

var acme = models.BrandInfo{
	Name:        "Acme",
	Aliases:     []string{"ACME Corp"},
	Competitors: []string{"Globex", "Initech"},
}

func TestGenerateQuestionsPadsToRequired(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Client.Questions = testutil.SampleQuestions(80)

	questions, err := h.Generator.GenerateQuestions(context.Background(), acme)
	require.NoError(t, err)

	require.Len(t, questions, 100)
	assert.Equal(t, testutil.SampleQuestions(80), questions[:80])

	seen := make(map[string]bool)
	for _, q := range questions {
		assert.False(t, seen[strings.ToLower(q)], "duplicate question %q", q)
		seen[strings.ToLower(q)] = true
	}
	assert.Contains(t, questions[80:], "How does Acme compare to Globex?")
}

func TestGenerateQuestionsTruncates(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Client.Questions = testutil.SampleQuestions(130)

	questions, err := h.Generator.GenerateQuestions(context.Background(), acme)
	require.NoError(t, err)
	assert.Equal(t, testutil.SampleQuestions(100), questions)
}

func TestGenerateQuestionsExtractsArrayFromProse(t *testing.T) {
	h := testutil.NewHarness(t, func(h *testutil.Harness) {
		h.Config.Pipeline.MinQuestions = 2
		h.Config.Pipeline.RequiredQuestions = 2
		h.Client.GenerationText = "Here are your questions:\n```json\n[\"Is Acme good?\", \"Acme or Globex?\"]\n```"
	})

	questions, err := h.Generator.GenerateQuestions(context.Background(), acme)
	require.NoError(t, err)
	assert.Equal(t, []string{"Is Acme good?", "Acme or Globex?"}, questions)
}

func TestGenerateQuestionsErrors(t *testing.T) {
	tests := []struct {
		name      string
		configure func(h *testutil.Harness)
	}{
		{
			name:      "too few questions",
			configure: func(h *testutil.Harness) { h.Client.Questions = testutil.SampleQuestions(10) },
		},
		{
			name:      "duplicates collapse below minimum",
			configure: func(h *testutil.Harness) { h.Client.Questions = repeat("Is Acme good?", 80) },
		},
		{
			name:      "non-string element",
			configure: func(h *testutil.Harness) { h.Client.GenerationText = `["Is Acme good?", 3]` },
		},
		{
			name:      "no array",
			configure: func(h *testutil.Harness) { h.Client.GenerationText = "I cannot help with that." },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness(t, tt.configure)
			_, err := h.Generator.GenerateQuestions(context.Background(), acme)
			require.Error(t, err)
			assert.ErrorIs(t, err, services.ErrQuestionGeneration)
		})
	}
}

func TestGenerateQuestionsWithoutCompetitors(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Client.Questions = testutil.SampleQuestions(50)

	questions, err := h.Generator.GenerateQuestions(context.Background(), models.BrandInfo{Name: "Acme"})
	require.NoError(t, err)
	require.Len(t, questions, 100)
	assertDistinct(t, questions)
	assert.Contains(t, questions, "How does Acme compare to other competitors?")
	assert.Contains(t, questions, "As a first-time buyer, how does Acme compare to other competitors?")
}

func TestGenerateQuestionsFillersSkipGeneratedQuestions(t *testing.T) {
	h := testutil.NewHarness(t, func(h *testutil.Harness) {
		h.Config.Pipeline.MinQuestions = 2
		h.Config.Pipeline.RequiredQuestions = 160
		h.Client.Questions = []string{"what do customers say about acme?", "Is Acme worth the price?"}
	})

	questions, err := h.Generator.GenerateQuestions(context.Background(), models.BrandInfo{Name: "Acme"})
	require.NoError(t, err)
	require.Len(t, questions, 160)
	assertDistinct(t, questions)
	assert.NotContains(t, questions, "What do customers say about Acme?")
	assert.Contains(t, questions, "What do customers say about Acme? (follow-up 1)")
}

func assertDistinct(t *testing.T, questions []string) {
	t.Helper()
	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		assert.False(t, seen[strings.ToLower(q)], "duplicate question %q", q)
		seen[strings.ToLower(q)] = true
	}
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
