package testutil

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/config"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/lease"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/metrics"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/repositories/memory"
	"github.com/AI-Template-SDK/brand-visibility-workflows/internal/storage"
	"github.com/AI-Template-SDK/brand-visibility-workflows/services"
)

// Harness wires the services over in-memory backends.
type Harness struct {
	*services.Services

	Config   *config.Config
	Store    *memory.Store
	Client   *MockCompletionClient
	Objects  *storage.MemoryStore
	Locker   *lease.LocalLocker
	Notifier *MockNotifier
	Metrics  *metrics.PrometheusRecorder
}

// NewHarness builds a Harness. configure, when given, may change the
// configuration or the mock client before the services are wired.
func NewHarness(t *testing.T, configure ...func(h *Harness)) *Harness {
	t.Helper()
	h := &Harness{
		Config:   SampleConfig(),
		Store:    memory.NewStore(),
		Client:   NewMockCompletionClient(),
		Objects:  storage.NewMemoryStore("https://reports.test"),
		Locker:   lease.NewLocalLocker(),
		Notifier: &MockNotifier{},
		Metrics:  metrics.NewPrometheusRecorder(),
	}
	for _, fn := range configure {
		fn(h)
	}

	h.Services = services.New(services.Deps{
		Pipeline: h.Config.Pipeline,
		Repos:    services.NewMemoryRepositoryManager(h.Store),
		Client:   h.Client,
		Store:    h.Objects,
		Locker:   h.Locker,
		Notifier: h.Notifier,
		Metrics:  h.Metrics,
		Logger:   zaptest.NewLogger(t).Sugar(),
	})
	return h
}
