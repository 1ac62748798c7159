package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordAndExpose(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveLLMRequest("OPENAI", "gpt-4o-mini", "ok", 2*time.Second, 120)
	m.ObserveLLMRequest("OPENAI", "gpt-4o-mini", "error", time.Second, 0)
	m.IncRatingRejection("LOCKED_BY_OTHER")
	m.IncRatingRejection("LOCKED_BY_OTHER")
	m.ObserveWorkerBatch("progress", 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("OPENAI", "gpt-4o-mini", "ok")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("OPENAI", "gpt-4o-mini")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ratingRejections.WithLabelValues("LOCKED_BY_OTHER")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "ratebench_worker_batches_total"))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAPI("GET", "/x", 200, time.Millisecond)
		m.IncRatingSubmission("A_BETTER")
		m.IncBracketFinalized(true)
	})
}
