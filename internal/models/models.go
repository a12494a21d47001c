// internal/models/models.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// JobStatus is the lifecycle state of a questionnaire.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobComplete   JobStatus = "complete"
	JobError      JobStatus = "error"
)

// BatchStatus is the lifecycle state of a batch of questions.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchComplete   BatchStatus = "complete"
	BatchError      BatchStatus = "error"
)

// ReportStatus is the state of the final report row.
type ReportStatus string

const (
	ReportProcessing ReportStatus = "processing"
	ReportReady      ReportStatus = "ready"
	ReportError      ReportStatus = "error"
)

// Questionnaire is one report job for a brand.
type Questionnaire struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	UserID          uuid.UUID      `db:"user_id" json:"user_id"`
	BrandName       string         `db:"brand_name" json:"brand_name"`
	Aliases         pq.StringArray `db:"aliases" json:"aliases"`
	Competitors     pq.StringArray `db:"competitors" json:"competitors"`
	Sector          *string        `db:"sector" json:"sector,omitempty"`
	Website         *string        `db:"website" json:"website,omitempty"`
	Status          JobStatus      `db:"status" json:"status"`
	ProgressPercent int            `db:"progress_percent" json:"progress_percent"`
	ErrorMessage    *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// Brand returns the matching inputs of the questionnaire.
func (q *Questionnaire) Brand() BrandInfo {
	return BrandInfo{
		Name:        q.BrandName,
		Aliases:     []string(q.Aliases),
		Competitors: []string(q.Competitors),
		Sector:      deref(q.Sector),
		Website:     deref(q.Website),
	}
}

// BrandInfo is the brand, its aliases and its competitors.
type BrandInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases"`
	Competitors []string `json:"competitors"`
	Sector      string   `json:"sector,omitempty"`
	Website     string   `json:"website,omitempty"`
}

// Batch is a fixed, ordered slice of the questionnaire's questions.
type Batch struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	QuestionnaireID uuid.UUID    `db:"questionnaire_id" json:"questionnaire_id"`
	BatchNumber     int          `db:"batch_number" json:"batch_number"`
	Questions       QuestionList `db:"questions" json:"questions"`
	Status          BatchStatus  `db:"status" json:"status"`
	ErrorMessage    *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// QuestionResponse is one answered question of a batch.
type QuestionResponse struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	BatchID           uuid.UUID      `db:"batch_id" json:"batch_id"`
	QuestionText      string         `db:"question_text" json:"question_text"`
	AnswerText        string         `db:"answer_text" json:"answer_text"`
	TokensUsed        int            `db:"tokens_used" json:"tokens_used"`
	BrandMatch        bool           `db:"brand_match" json:"brand_match"`
	CompetitorMatches pq.StringArray `db:"competitor_matches" json:"competitor_matches"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// BatchSummary is the condensed analysis of one complete batch.
type BatchSummary struct {
	ID          uuid.UUID `db:"id" json:"id"`
	BatchID     uuid.UUID `db:"batch_id" json:"batch_id"`
	SummaryJSON JSON      `db:"summary_json" json:"summary_json"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FinalReport is the fused report of a questionnaire.
type FinalReport struct {
	ID              uuid.UUID    `db:"id" json:"id"`
	QuestionnaireID uuid.UUID    `db:"questionnaire_id" json:"questionnaire_id"`
	SummaryJSON     JSON         `db:"summary_json" json:"summary_json"`
	TotalTokens     int          `db:"total_tokens" json:"total_tokens"`
	CostEUR         float64      `db:"cost_eur" json:"cost_eur"`
	CostAlert       bool         `db:"cost_alert" json:"cost_alert"`
	ArtifactURL     *string      `db:"pdf_url" json:"pdf_url,omitempty"`
	Status          ReportStatus `db:"status" json:"status"`
	ErrorMessage    *string      `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
