package services

import (
	"go.uber.org/zap"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/lease"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/storage"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Pipeline config.PipelineConfig
	Repos    *RepositoryManager
	Client   CompletionClient
	Store    storage.ObjectStore
	Locker   lease.Locker
	Notifier Notifier
	Metrics  metrics.Recorder
	Logger   *zap.SugaredLogger
}

// Services is the wired report pipeline.
type Services struct {
	Repos      *RepositoryManager
	Status     *StatusMachine
	Cost       CostService
	Progress   ProgressTracker
	Generator  QuestionGenerator
	Summarizer BatchSummarizer
	Processor  QuestionProcessor
	Batches    BatchManager
	Aggregator ReportAggregator
	Pipeline   *Pipeline
}

func New(d Deps) *Services {
	if d.Notifier == nil {
		d.Notifier = NewNopNotifier()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewNoop()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	if d.Locker == nil {
		d.Locker = lease.NewLocalLocker()
	}

	s := &Services{Repos: d.Repos}
	s.Progress = NewProgressTracker(d.Repos)
	s.Status = NewStatusMachine(d.Repos, s.Progress, d.Logger)
	s.Cost = NewCostService(d.Pipeline)
	s.Generator = NewQuestionGenerator(d.Client, d.Pipeline, d.Metrics, d.Logger)
	s.Summarizer = NewBatchSummarizer(d.Pipeline, d.Repos, d.Client, d.Metrics, d.Logger)
	s.Processor = NewQuestionProcessor(d.Pipeline, d.Repos, d.Client, s.Progress, s.Summarizer, s.Status, d.Locker, d.Metrics, d.Logger)
	s.Batches = NewBatchManager(d.Pipeline, d.Repos, s.Processor, d.Logger)
	s.Aggregator = NewReportAggregator(d.Pipeline, d.Repos, d.Client, s.Summarizer, s.Cost, d.Store, s.Status, d.Locker, d.Notifier, d.Metrics, d.Logger)
	s.Pipeline = NewPipeline(d.Repos, s.Generator, s.Batches, s.Aggregator, s.Status, d.Locker, d.Notifier, d.Logger)
	return s
}
