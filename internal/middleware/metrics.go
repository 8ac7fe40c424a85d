package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Chat metrics
	chatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_chat_requests_total",
		Help: "Total number of chat requests",
	}, []string{"intent", "status"})

	chatRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_chat_request_duration_seconds",
		Help:    "Duration of chat request processing",
		Buckets: prometheus.DefBuckets,
	}, []string{"intent"})

	// LLM metrics
	llmCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_llm_calls_total",
		Help: "Total number of LLM calls",
	}, []string{"model", "status"})

	// Data handler metrics
	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_handler_duration_seconds",
		Help:    "Duration of data handler execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"handler"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_cache_hits_total",
		Help: "Total number of cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assistant_cache_misses_total",
		Help: "Total number of cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	}, []string{"user_id"})

	// Circuit breaker state: 1 open, 0 closed
	breakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_circuit_breaker_open",
		Help: "Whether the LLM circuit breaker is open",
	})

	// Retrieval index size gauge
	indexedArticles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_indexed_articles",
		Help: "Number of articles in the retrieval index",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordChatRequest records a processed chat request
func (m *Metrics) RecordChatRequest(intent, status string, seconds float64) {
	chatRequestsTotal.WithLabelValues(intent, status).Inc()
	chatRequestDuration.WithLabelValues(intent).Observe(seconds)
}

// RecordLLMCall records an LLM call outcome
func (m *Metrics) RecordLLMCall(model, status string) {
	llmCallsTotal.WithLabelValues(model, status).Inc()
}

// RecordHandlerDuration records a data handler execution
func (m *Metrics) RecordHandlerDuration(handler string, seconds float64) {
	handlerDuration.WithLabelValues(handler).Observe(seconds)
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded(userID string) {
	rateLimitExceeded.WithLabelValues(userID).Inc()
}

// SetBreakerOpen updates the circuit breaker gauge
func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		breakerOpen.Set(1)
	} else {
		breakerOpen.Set(0)
	}
}

// SetIndexedArticles sets the retrieval index size
func (m *Metrics) SetIndexedArticles(count float64) {
	indexedArticles.Set(count)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
