package services

import (
	"bytes"
	"encoding/json"
	"html/template"
	"sort"
	"strconv"
	"time"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
)

// ReportStats are measured from stored responses, independent of the model.
type ReportStats struct {
	Responses          int
	BrandMentions      int
	CompetitorMentions []CompetitorRank
}

// PresencePercent is the share of responses that mention the brand.
func (s ReportStats) PresencePercent() float64 {
	if s.Responses == 0 {
		return 0
	}
	return float64(s.BrandMentions) / float64(s.Responses) * 100
}

// ComputeStats counts brand and competitor mentions, competitors most mentioned first.
func ComputeStats(responses []*models.QuestionResponse) ReportStats {
	stats := ReportStats{Responses: len(responses)}
	counts := make(map[string]int)
	for _, r := range responses {
		if r.BrandMatch {
			stats.BrandMentions++
		}
		for _, c := range r.CompetitorMatches {
			counts[c]++
		}
	}
	for name, n := range counts {
		stats.CompetitorMentions = append(stats.CompetitorMentions, CompetitorRank{Name: name, Mentions: n})
	}
	sort.Slice(stats.CompetitorMentions, func(i, j int) bool {
		a, b := stats.CompetitorMentions[i], stats.CompetitorMentions[j]
		if a.Mentions != b.Mentions {
			return a.Mentions > b.Mentions
		}
		return a.Name < b.Name
	})
	return stats
}

// ReportDocument is everything the HTML artifact shows.
type ReportDocument struct {
	Brand       models.BrandInfo
	GeneratedAt time.Time
	Summary     json.RawMessage
	Stats       ReportStats
	Responses   []*models.QuestionResponse
	TotalTokens int
	CostEUR     float64
	CostAlert   bool
}

type reportView struct {
	ReportDocument
	Meta       *MetaSummary
	RawSummary string
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct": func(v float64) string { return formatFloat(v, 1) },
	"eur": func(v float64) string { return formatFloat(v, 4) },
	"inc": func(i int) int { return i + 1 },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Brand visibility report: {{.Brand.Name}}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; max-width: 960px; margin: 2rem auto; color: #1f2933; }
h1 { border-bottom: 2px solid #3b82f6; padding-bottom: .5rem; }
.kpis { display: flex; gap: 1rem; }
.kpi { flex: 1; background: #f1f5f9; border-radius: 8px; padding: 1rem; }
.kpi b { display: block; font-size: 1.6rem; }
.alert { color: #b91c1c; }
.qa { border-top: 1px solid #e2e8f0; padding: .75rem 0; }
.tag { display: inline-block; background: #e0e7ff; border-radius: 4px; padding: 0 .4rem; margin-right: .25rem; font-size: .85rem; }
pre { white-space: pre-wrap; background: #f8fafc; padding: 1rem; }
</style>
</head>
<body>
<h1>Brand visibility report: {{.Brand.Name}}</h1>
<p>Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}{{if .Brand.Sector}} · Sector: {{.Brand.Sector}}{{end}}</p>

<div class="kpis">
<div class="kpi"><b>{{pct .Stats.PresencePercent}}%</b>brand presence ({{.Stats.BrandMentions}} of {{.Stats.Responses}} answers)</div>
<div class="kpi"><b>{{.TotalTokens}}</b>tokens used</div>
<div class="kpi{{if .CostAlert}} alert{{end}}"><b>€{{eur .CostEUR}}</b>estimated cost{{if .CostAlert}} (over limit){{end}}</div>
</div>

{{with .Meta}}
<h2>Executive conclusion</h2>
<p>{{.ExecutiveConclusion}}</p>
{{if .TopCompetitors}}
<h2>Top competitors</h2>
<ol>{{range .TopCompetitors}}<li>{{.Name}} ({{.Mentions}} mentions)</li>{{end}}</ol>
{{end}}
{{if .ImprovementTactics}}
<h2>Improvement tactics</h2>
<ul>{{range .ImprovementTactics}}<li>{{.}}</li>{{end}}</ul>
{{end}}
{{else}}
<h2>Summary</h2>
<pre>{{.RawSummary}}</pre>
{{end}}

{{if .Stats.CompetitorMentions}}
<h2>Measured competitor mentions</h2>
<ul>{{range .Stats.CompetitorMentions}}<li>{{.Name}}: {{.Mentions}}</li>{{end}}</ul>
{{end}}

<h2>Questions and answers</h2>
{{range $i, $r := .Responses}}
<div class="qa">
<p><strong>{{inc $i}}. {{$r.QuestionText}}</strong> {{if $r.BrandMatch}}✅ brand mentioned{{else}}❌ brand not mentioned{{end}}</p>
{{if $r.CompetitorMatches}}<p>{{range $r.CompetitorMatches}}<span class="tag">{{.}}</span>{{end}}</p>{{end}}
<p>{{$r.AnswerText}}</p>
</div>
{{end}}
</body>
</html>
`))

// RenderReport renders a self-contained HTML document. The structured
// summary sections are used when the summary has an executive conclusion;
// otherwise the raw summary JSON is shown.
func RenderReport(doc ReportDocument) ([]byte, error) {
	view := reportView{ReportDocument: doc}

	var meta MetaSummary
	if err := json.Unmarshal(doc.Summary, &meta); err == nil && meta.ExecutiveConclusion != "" {
		view.Meta = &meta
	} else {
		var pretty bytes.Buffer
		if json.Indent(&pretty, doc.Summary, "", "  ") == nil {
			view.RawSummary = pretty.String()
		} else {
			view.RawSummary = string(doc.Summary)
		}
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
