// services/interfaces.go
package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/database"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/models"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/interfaces"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/memory"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/postgresql"
)

// RepositoryManager groups the stores used by the pipeline.
type RepositoryManager struct {
	QuestionnaireRepo interfaces.QuestionnaireRepository
	BatchRepo         interfaces.BatchRepository
	ResponseRepo      interfaces.ResponseRepository
	SummaryRepo       interfaces.SummaryRepository
	FinalReportRepo   interfaces.FinalReportRepository
}

func NewRepositoryManager(db *database.Client) *RepositoryManager {
	return &RepositoryManager{
		QuestionnaireRepo: postgresql.NewQuestionnaireRepo(db),
		BatchRepo:         postgresql.NewBatchRepo(db),
		ResponseRepo:      postgresql.NewResponseRepo(db),
		SummaryRepo:       postgresql.NewSummaryRepo(db),
		FinalReportRepo:   postgresql.NewFinalReportRepo(db),
	}
}

// NewMemoryRepositoryManager backs the pipeline with an in-process store.
func NewMemoryRepositoryManager(store *memory.Store) *RepositoryManager {
	return &RepositoryManager{
		QuestionnaireRepo: store.Questionnaires(),
		BatchRepo:         store.Batches(),
		ResponseRepo:      store.Responses(),
		SummaryRepo:       store.Summaries(),
		FinalReportRepo:   store.FinalReports(),
	}
}

// Completion is the text and token usage of one completion call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// TokenCount is the total billed tokens of the call.
func (c *Completion) TokenCount() int {
	return c.InputTokens + c.OutputTokens
}

// CompletionClient sends a system and a user prompt to a language model.
type CompletionClient interface {
	GetProviderName() string
	Complete(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

type CostService interface {
	// CalculateCost converts tokens to EUR.
	CalculateCost(tokens int) float64
	// ExceedsLimit reports whether a job cost should raise an alert.
	ExceedsLimit(costEUR float64) bool
}

type QuestionGenerator interface {
	GenerateQuestions(ctx context.Context, brand models.BrandInfo) ([]string, error)
}

type QuestionProcessor interface {
	ProcessQuestion(ctx context.Context, question string, brand models.BrandInfo, batchID uuid.UUID) (*models.QuestionResponse, error)
	ProcessBatch(ctx context.Context, run BatchRun) (*BatchResult, error)
}

type BatchSummarizer interface {
	// SummarizeBatch is a no-op when the batch already has a summary.
	SummarizeBatch(ctx context.Context, batch *models.Batch, brand models.BrandInfo) error
}

type ProgressTracker interface {
	UpdateProgress(ctx context.Context, questionnaireID uuid.UUID, total, processed int) error
	Reset(ctx context.Context, questionnaireID uuid.UUID) error
}

type BatchManager interface {
	PrepareBatches(ctx context.Context, questionnaireID uuid.UUID, questions []string) ([]*models.Batch, error)
	ProcessSpecificBatch(ctx context.Context, q *models.Questionnaire, plans []*models.Batch, target *models.Batch) (*BatchResult, error)
	ProcessAllBatches(ctx context.Context, q *models.Questionnaire, plans []*models.Batch) ([]*BatchResult, error)
	CheckBatchesCompletion(ctx context.Context, questionnaireID uuid.UUID) (bool, error)
}

type ReportAggregator interface {
	GenerateFinalReport(ctx context.Context, questionnaireID uuid.UUID) (*models.FinalReport, error)
}

// Notifier is told about failed jobs and cost alerts.
type Notifier interface {
	JobFailed(ctx context.Context, q *models.Questionnaire, reason string, err error)
	CostAlert(ctx context.Context, q *models.Questionnaire, report *models.FinalReport)
}

type nopNotifier struct{}

// NewNopNotifier returns a Notifier that does nothing.
func NewNopNotifier() Notifier { return nopNotifier{} }

func (nopNotifier) JobFailed(context.Context, *models.Questionnaire, string, error) {}
func (nopNotifier) CostAlert(context.Context, *models.Questionnaire, *models.FinalReport) {}
