package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()

	r.CompletionCall("answer", "ok", 120)
	r.CompletionCall("answer", "ok", 80)
	r.CompletionCall("answer", "error", 0)
	r.CompletionRetry("answer")
	r.QuestionProcessed("answered")
	r.BatchFinished("complete", 3*time.Second)
	r.ReportFinished("ready")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.completionCalls.WithLabelValues("answer", "ok")))
	assert.Equal(t, 200.0, testutil.ToFloat64(r.completionTokens.WithLabelValues("answer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.completionRetries.WithLabelValues("answer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.batches.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.reports.WithLabelValues("ready")))

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "visibility_questions_processed_total")
}
