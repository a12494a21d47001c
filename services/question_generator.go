// services/question_generator.go
package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

// fillerTemplates pad a short question list. %[1]s is the brand, %[2]s a competitor.
var fillerTemplates = []string{
	"What do customers say about %[1]s?",
	"Is %[1]s a good option in its market?",
	"How does %[1]s compare to %[2]s?",
	"What are the main advantages of %[1]s?",
	"What are the disadvantages of %[1]s?",
	"Is %[1]s worth the price?",
	"What are the best alternatives to %[1]s?",
	"Which is better, %[1]s or %[2]s?",
	"What is %[1]s known for?",
	"Would you recommend %[1]s to a friend?",
	"How reliable is %[1]s?",
	"What do experts think about %[1]s?",
	"Why do people choose %[2]s over %[1]s?",
	"How is the customer service of %[1]s?",
	"What makes %[1]s different from other brands?",
	"Is %[1]s a trustworthy company?",
	"What are the most popular products of %[1]s?",
	"How has %[1]s changed in recent years?",
	"Who are the main competitors of %[1]s?",
	"What should I know before buying from %[1]s?",
}

// fillerPerspectives reword later filler cycles so each cycle stays distinct.
var fillerPerspectives = []string{
	"As a first-time buyer, ",
	"For a small business, ",
	"On a tight budget, ",
	"For long-term use, ",
}

type questionGenerator struct {
	completer *completer
	minimum   int
	required  int
	log       *zap.SugaredLogger
}

func NewQuestionGenerator(client CompletionClient, cfg config.PipelineConfig, rec metrics.Recorder, log *zap.SugaredLogger) QuestionGenerator {
	return &questionGenerator{
		completer: newCompleter(client, cfg.MaxRetries, cfg.RetryBaseDelay, rec, log),
		minimum:   cfg.MinQuestions,
		required:  cfg.RequiredQuestions,
		log:       log,
	}
}

// GenerateQuestions returns exactly the required number of questions or an
// error wrapping ErrQuestionGeneration.
func (g *questionGenerator) GenerateQuestions(ctx context.Context, brand models.BrandInfo) ([]string, error) {
	prompt := buildGenerationPrompt(brand, g.minimum, g.required)

	resp, err := g.completer.complete(ctx, purposeGenerate, GeneratorSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuestionGeneration, err)
	}

	raw, err := extractStringArray(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: unusable generator output: %v", ErrQuestionGeneration, err)
	}

	questions := dedupeQuestions(raw)
	if len(questions) < g.minimum {
		return nil, fmt.Errorf("%w: got %d questions, need at least %d", ErrQuestionGeneration, len(questions), g.minimum)
	}

	if len(questions) < g.required {
		g.log.Infof("[GenerateQuestions] Padding %d generated questions to %d for %s", len(questions), g.required, brand.Name)
		questions = padQuestions(questions, brand, g.required)
	}
	if len(questions) > g.required {
		questions = questions[:g.required]
	}

	return questions, nil
}

func dedupeQuestions(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

// padQuestions appends distinct filler questions until there are n. Each
// cycle walks every template and competitor pairing; after the first cycle the
// fillers are reworded, so no filler repeats a stored question.
func padQuestions(questions []string, brand models.BrandInfo, n int) []string {
	competitors := brand.Competitors
	if len(competitors) == 0 {
		competitors = []string{"other competitors"}
	}

	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		seen[strings.ToLower(q)] = true
	}

	variants := len(fillerTemplates) * len(competitors)
	for i := 0; len(questions) < n; i++ {
		tpl := fillerTemplates[i%len(fillerTemplates)]
		competitor := competitors[(i/len(fillerTemplates))%len(competitors)]
		q := rewordFiller(fmt.Sprintf(tpl, brand.Name, competitor), i/variants)
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		questions = append(questions, q)
	}
	return questions
}

// rewordFiller returns q unchanged for cycle 0, prefixed with a perspective
// for the next cycles and numbered once the perspectives run out.
func rewordFiller(q string, cycle int) string {
	if cycle == 0 {
		return q
	}
	if cycle <= len(fillerPerspectives) {
		return fillerPerspectives[cycle-1] + strings.ToLower(q[:1]) + q[1:]
	}
	return fmt.Sprintf("%s (follow-up %d)", q, cycle-len(fillerPerspectives))
}
