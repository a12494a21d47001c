package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

// System prompts identify the kind of call; test fakes route on them.
const (
	GeneratorSystemPrompt = "You write realistic questions that real people type into an AI assistant when researching products and companies. " +
		"You reply with a JSON array of strings and nothing else."

	AnswerSystemPrompt = "You are ChatGPT. Answer the user's question naturally, objectively and completely, " +
		"as you would for any user. Mention specific companies and products when they are relevant."

	BatchSummarySystemPrompt = "You are a brand visibility analyst. You read AI assistant answers and report " +
		"how a brand and its competitors are represented. You reply with a single JSON object."

	MetaSummarySystemPrompt = "You are a senior brand visibility strategist. You fuse partial analyses into one " +
		"executive report. You reply with a single JSON object."
)

// BatchSummaryContent is the expected shape of a batch summary.
type BatchSummaryContent struct {
	BrandMentions      int            `json:"brand_mentions" jsonschema_description:"Number of answers that mention the brand or an alias"`
	CompetitorMentions map[string]int `json:"competitor_mentions" jsonschema_description:"Answers mentioning each competitor, keyed by competitor name"`
	Tone               string         `json:"tone" jsonschema:"enum=positive,enum=neutral,enum=negative,enum=mixed" jsonschema_description:"Overall tone towards the brand"`
	Highlights         []string       `json:"highlights" jsonschema_description:"Short notable observations"`
}

type CompetitorRank struct {
	Name     string `json:"name"`
	Mentions int    `json:"mentions"`
}

// MetaSummary is the expected shape of the fused report summary.
type MetaSummary struct {
	BrandPresencePercent float64          `json:"brand_presence_percent" jsonschema_description:"Percentage of answers mentioning the brand, 0-100"`
	TopCompetitors       []CompetitorRank `json:"top_competitors" jsonschema_description:"The three most mentioned competitors, most mentioned first"`
	ImprovementTactics   []string         `json:"improvement_tactics" jsonschema_description:"Three to five concrete tactics to improve the brand's visibility"`
	ExecutiveConclusion  string           `json:"executive_conclusion" jsonschema_description:"Executive conclusion of at most 150 words"`
}

func generateSchema[T any]() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	schema := reflector.Reflect(v)
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

var (
	batchSummarySchema = generateSchema[BatchSummaryContent]()
	metaSummarySchema  = generateSchema[MetaSummary]()
)

func buildGenerationPrompt(brand models.BrandInfo, minimum, required int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Brand: %s\n", brand.Name)
	if len(brand.Aliases) > 0 {
		fmt.Fprintf(&b, "Also known as: %s\n", strings.Join(brand.Aliases, ", "))
	}
	if len(brand.Competitors) > 0 {
		fmt.Fprintf(&b, "Competitors: %s\n", strings.Join(brand.Competitors, ", "))
	}
	if brand.Sector != "" {
		fmt.Fprintf(&b, "Sector: %s\n", brand.Sector)
	}
	if brand.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", brand.Website)
	}
	fmt.Fprintf(&b, `
Write %d different questions a potential customer could ask an AI assistant while researching this market.
Mix generic category questions, comparisons between the brand and its competitors, questions about reputation,
pricing, alternatives and recommendations. Some questions must name the brand, others only the competitors,
others neither. Never return fewer than %d questions.

Return ONLY a JSON array of strings.`, required, minimum)
	return b.String()
}

func buildBatchSummaryPrompt(brand models.BrandInfo, responses []*models.QuestionResponse) string {
	type item struct {
		Question    string   `json:"question"`
		Answer      string   `json:"answer"`
		BrandMatch  bool     `json:"brand_match"`
		Competitors []string `json:"competitors_mentioned"`
	}
	items := make([]item, len(responses))
	for i, r := range responses {
		items[i] = item{Question: r.QuestionText, Answer: r.AnswerText, BrandMatch: r.BrandMatch, Competitors: r.CompetitorMatches}
	}
	data, _ := json.Marshal(items)

	return fmt.Sprintf(`Analyze how the brand "%s" (aliases: %s) and its competitors (%s) appear in these AI assistant answers.
Count the answers that mention the brand, count mentions per competitor, and describe the tone towards the brand.

Answers:
%s

Reply with a JSON object matching this schema:
%s`, brand.Name, joinOrNone(brand.Aliases), joinOrNone(brand.Competitors), data, batchSummarySchema)
}

func buildMetaSummaryPrompt(brand models.BrandInfo, summaries []json.RawMessage, stats ReportStats) string {
	data, _ := json.Marshal(summaries)
	return fmt.Sprintf(`You have %d partial analyses of AI assistant answers about the brand "%s" and its competitors (%s).
Measured over all %d answers: the brand appears in %d of them.

Partial analyses:
%s

Produce one report with the brand presence percentage, the top 3 competitors by mentions,
3 to 5 improvement tactics, and an executive conclusion of at most 150 words.

Reply with a JSON object matching this schema:
%s`, len(summaries), brand.Name, joinOrNone(brand.Competitors), stats.Responses, stats.BrandMentions, data, metaSummarySchema)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
