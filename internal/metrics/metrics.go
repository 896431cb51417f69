package metrics

import (
	"runtime"
	"time"
)

// Metrics holds all application metrics.
type Metrics struct {
	// Query pipeline metrics
	QueryRequests   *CounterVec   // labels: mode, status
	PipelineLatency *Histogram    // end-to-end query latency
	StageLatency    *HistogramVec // labels: stage

	// Cache metrics
	CacheHits        *CounterVec   // labels: backend (exact, semantic)
	CacheMisses      *CounterVec   // labels: backend
	CacheLookupTime  *HistogramVec // labels: backend
	CacheWriteErrors *CounterVec   // labels: backend

	// Rate limiting metrics
	RateLimitRejections *CounterVec // labels: tier, window

	// Moderation metrics
	ModerationRejections *CounterVec // labels: reason

	// Provider metrics
	EmbedRequests *Counter
	EmbedLatency  *Histogram
	ChatRequests  *Counter
	ChatLatency   *Histogram

	// Retrieval metrics
	RetrievalLatency  *Histogram
	RetrievedPassages *Histogram

	// Ingest metrics
	IngestedDocuments *Counter
	IngestedChunks    *Counter

	// Usage metrics
	TokensTotal *CounterVec // labels: tenant, kind (embedding, prompt, completion)

	// Bus metrics
	BusEventsPublished *CounterVec // labels: topic
	BusErrors          *CounterVec // labels: topic

	// HTTP metrics
	HTTPRequests         *CounterVec   // labels: method, path, status
	HTTPDuration         *HistogramVec // labels: method, path
	HTTPRequestsInFlight *Gauge

	// System metrics
	GoroutineCount *Gauge
	MemoryUsage    *Gauge // in bytes
	Uptime         *Counter

	startTime time.Time
}

// New creates a new metrics instance with all metrics initialized.
func New() *Metrics {
	latencyBuckets := []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

	return &Metrics{
		QueryRequests: NewCounterVec(
			"answergrid_query_requests_total",
			"Total number of query requests",
			[]string{"mode", "status"},
		),
		PipelineLatency: NewHistogram(
			"answergrid_pipeline_latency_ms",
			"End-to-end query pipeline latency in milliseconds",
			latencyBuckets,
		),
		StageLatency: NewHistogramVec(
			"answergrid_stage_latency_ms",
			"Per-stage pipeline latency in milliseconds",
			[]string{"stage"},
			latencyBuckets,
		),
		CacheHits: NewCounterVec(
			"answergrid_cache_hits_total",
			"Total cache hits by backend",
			[]string{"backend"},
		),
		CacheMisses: NewCounterVec(
			"answergrid_cache_misses_total",
			"Total cache misses by backend",
			[]string{"backend"},
		),
		CacheLookupTime: NewHistogramVec(
			"answergrid_cache_lookup_ms",
			"Cache lookup latency in milliseconds by backend",
			[]string{"backend"},
			[]float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500},
		),
		CacheWriteErrors: NewCounterVec(
			"answergrid_cache_write_errors_total",
			"Total cache write failures by backend",
			[]string{"backend"},
		),
		RateLimitRejections: NewCounterVec(
			"answergrid_ratelimit_rejections_total",
			"Total rate limit rejections by tier and window",
			[]string{"tier", "window"},
		),
		ModerationRejections: NewCounterVec(
			"answergrid_moderation_rejections_total",
			"Total moderation rejections by reason",
			[]string{"reason"},
		),
		EmbedRequests: NewCounter(
			"answergrid_embed_requests_total",
			"Total embedding requests",
			nil,
		),
		EmbedLatency: NewHistogram(
			"answergrid_embed_latency_ms",
			"Embedding request latency in milliseconds",
			latencyBuckets,
		),
		ChatRequests: NewCounter(
			"answergrid_chat_requests_total",
			"Total language model requests",
			nil,
		),
		ChatLatency: NewHistogram(
			"answergrid_chat_latency_ms",
			"Language model request latency in milliseconds",
			latencyBuckets,
		),
		RetrievalLatency: NewHistogram(
			"answergrid_retrieval_latency_ms",
			"Vector search latency in milliseconds",
			latencyBuckets,
		),
		RetrievedPassages: NewHistogram(
			"answergrid_retrieved_passages",
			"Number of passages returned per retrieval",
			[]float64{0, 1, 2, 5, 10, 20, 50, 100},
		),
		IngestedDocuments: NewCounter(
			"answergrid_ingested_documents_total",
			"Total documents ingested",
			nil,
		),
		IngestedChunks: NewCounter(
			"answergrid_ingested_chunks_total",
			"Total chunks ingested",
			nil,
		),
		TokensTotal: NewCounterVec(
			"answergrid_tokens_total",
			"Estimated token consumption by tenant and kind",
			[]string{"tenant", "kind"},
		),
		BusEventsPublished: NewCounterVec(
			"answergrid_bus_events_published_total",
			"Total events published to the bus by topic",
			[]string{"topic"},
		),
		BusErrors: NewCounterVec(
			"answergrid_bus_errors_total",
			"Total bus publish errors by topic",
			[]string{"topic"},
		),
		HTTPRequests: NewCounterVec(
			"answergrid_http_requests_total",
			"Total HTTP requests",
			[]string{"method", "path", "status"},
		),
		HTTPDuration: NewHistogramVec(
			"answergrid_http_duration_ms",
			"HTTP request duration in milliseconds",
			[]string{"method", "path"},
			latencyBuckets,
		),
		HTTPRequestsInFlight: NewGauge(
			"answergrid_http_requests_in_flight",
			"Number of HTTP requests currently being served",
			nil,
		),
		GoroutineCount: NewGauge(
			"answergrid_goroutines",
			"Number of goroutines",
			nil,
		),
		MemoryUsage: NewGauge(
			"answergrid_memory_bytes",
			"Allocated heap memory in bytes",
			nil,
		),
		Uptime: NewCounter(
			"answergrid_uptime_seconds",
			"Server uptime in seconds",
			nil,
		),
		startTime: time.Now(),
	}
}

// UpdateSystemMetrics refreshes goroutine, memory, and uptime metrics.
// Call this before exporting.
func (m *Metrics) UpdateSystemMetrics() {
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsage.Set(float64(memStats.HeapAlloc))

	uptime := int64(time.Since(m.startTime).Seconds())
	if delta := uptime - m.Uptime.Value(); delta > 0 {
		m.Uptime.Add(delta)
	}
}

// RecordCacheHit implements the cache metrics hook.
func (m *Metrics) RecordCacheHit(backend string) {
	m.CacheHits.WithLabels(backend).Inc()
}

// RecordCacheMiss implements the cache metrics hook.
func (m *Metrics) RecordCacheMiss(backend string) {
	m.CacheMisses.WithLabels(backend).Inc()
}

// ObserveCacheLookup records a cache lookup latency observation.
func (m *Metrics) ObserveCacheLookup(backend string, d time.Duration) {
	m.CacheLookupTime.WithLabels(backend).Observe(float64(d.Milliseconds()))
}

// RecordCacheWriteError counts a failed best-effort cache write.
func (m *Metrics) RecordCacheWriteError(backend string) {
	m.CacheWriteErrors.WithLabels(backend).Inc()
}
