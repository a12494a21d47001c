// Package metrics exposes pipeline counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the services report to.
type Recorder interface {
	CompletionCall(purpose, outcome string, tokens int)
	CompletionRetry(purpose string)
	QuestionProcessed(outcome string)
	BatchFinished(status string, duration time.Duration)
	ReportFinished(status string)
}

type PrometheusRecorder struct {
	registry *prometheus.Registry

	completionCalls   *prometheus.CounterVec
	completionRetries *prometheus.CounterVec
	completionTokens  *prometheus.CounterVec
	questions         *prometheus.CounterVec
	batches           *prometheus.CounterVec
	batchDuration     *prometheus.HistogramVec
	reports           *prometheus.CounterVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		completionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visibility_completion_calls_total",
			Help: "Completion service calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		completionRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visibility_completion_retries_total",
			Help: "Completion service retries by purpose.",
		}, []string{"purpose"}),
		completionTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visibility_completion_tokens_total",
			Help: "Tokens consumed by purpose.",
		}, []string{"purpose"}),
		questions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visibility_questions_processed_total",
			Help: "Questions processed by outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visibility_batches_finished_total",
			Help: "Batches finished by final status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "visibility_batch_duration_seconds",
			Help:    "Wall time spent processing one batch.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "visibility_reports_finished_total",
			Help: "Final reports by status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		r.completionCalls,
		r.completionRetries,
		r.completionTokens,
		r.questions,
		r.batches,
		r.batchDuration,
		r.reports,
	)
	return r
}

func (r *PrometheusRecorder) CompletionCall(purpose, outcome string, tokens int) {
	r.completionCalls.WithLabelValues(purpose, outcome).Inc()
	if tokens > 0 {
		r.completionTokens.WithLabelValues(purpose).Add(float64(tokens))
	}
}

func (r *PrometheusRecorder) CompletionRetry(purpose string) {
	r.completionRetries.WithLabelValues(purpose).Inc()
}

func (r *PrometheusRecorder) QuestionProcessed(outcome string) {
	r.questions.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRecorder) BatchFinished(status string, duration time.Duration) {
	r.batches.WithLabelValues(status).Inc()
	r.batchDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) ReportFinished(status string) {
	r.reports.WithLabelValues(status).Inc()
}

// Handler serves the recorder's registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

type noop struct{}

// NewNoop returns a Recorder that drops everything.
func NewNoop() Recorder { return noop{} }

func (noop) CompletionCall(string, string, int) {}
func (noop) CompletionRetry(string) {}
func (noop) QuestionProcessed(string) {}
func (noop) BatchFinished(string, time.Duration) {}
func (noop) ReportFinished(string) {}
