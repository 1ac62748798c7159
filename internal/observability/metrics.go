package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/ratebench-backend/internal/platform/envutil"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

const namespace = "ratebench"

// Metrics holds every Prometheus collector the service exports. All methods are
// safe on a nil receiver so callers never need to check Enabled().
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	workerBatches   *prometheus.CounterVec
	workerInstances *prometheus.CounterVec
	workerDuration  prometheus.Histogram

	ratingAcquire     *prometheus.CounterVec
	ratingSubmissions *prometheus.CounterVec
	ratingRejections  *prometheus.CounterVec
	bracketsFinalized *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once and makes them available via Current.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		instance = NewMetrics(reg)
		if log != nil {
			log.Info("metrics initialized")
		}
	})
	return instance
}

// NewMetrics registers a fresh collector set on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_inflight_requests",
			Help:      "HTTP requests currently being served",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Provider calls by provider, model and status",
		}, []string{"provider", "model", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Provider call latency including retries",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Tokens reported by providers",
		}, []string{"provider", "model"}),
		workerBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_batches_total",
			Help:      "Worker batch invocations by result",
		}, []string{"result"}),
		workerInstances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_instances_total",
			Help:      "Prompt instances handled by the worker, by result",
		}, []string{"result"}),
		workerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_batch_duration_seconds",
			Help:      "Wall time of one worker batch",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ratingAcquire: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rating_acquire_total",
			Help:      "Next-match requests by result",
		}, []string{"result"}),
		ratingSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rating_submissions_total",
			Help:      "Accepted ratings by outcome",
		}, []string{"outcome"}),
		ratingRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rating_rejections_total",
			Help:      "Rejected ratings by code",
		}, []string{"code"}),
		bracketsFinalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "brackets_finalized_total",
			Help:      "Prompt instances moved to RATED, by whether a winner was set",
		}, []string{"winner"}),
	}
	reg.MustRegister(
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.workerBatches, m.workerInstances, m.workerDuration,
		m.ratingAcquire, m.ratingSubmissions, m.ratingRejections, m.bracketsFinalized,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(provider, model, status string, dur time.Duration, tokens int) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(provider, model, status).Inc()
	m.llmLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
	if tokens > 0 {
		m.llmTokens.WithLabelValues(provider, model).Add(float64(tokens))
	}
}

func (m *Metrics) ObserveWorkerBatch(result string, dur time.Duration) {
	if m == nil {
		return
	}
	m.workerBatches.WithLabelValues(result).Inc()
	m.workerDuration.Observe(dur.Seconds())
}

func (m *Metrics) IncWorkerInstance(result string) {
	if m == nil {
		return
	}
	m.workerInstances.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRatingAcquire(result string) {
	if m == nil {
		return
	}
	m.ratingAcquire.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRatingSubmission(outcome string) {
	if m == nil {
		return
	}
	m.ratingSubmissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRatingRejection(code string) {
	if m == nil {
		return
	}
	m.ratingRejections.WithLabelValues(code).Inc()
}

func (m *Metrics) IncBracketFinalized(hasWinner bool) {
	if m == nil {
		return
	}
	m.bracketsFinalized.WithLabelValues(strconv.FormatBool(hasWinner)).Inc()
}
