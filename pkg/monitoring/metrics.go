package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Service name for metrics
	ServiceName = "osmbounds"
)

var (
	// MCP request metrics
	MCPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_mcp_requests_total",
			Help: "Total number of MCP requests processed",
		},
		[]string{"tool", "status"},
	)

	MCPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmbounds_mcp_request_duration_seconds",
			Help:    "MCP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
		[]string{"tool"},
	)

	// Element fetch metrics
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_element_fetches_total",
			Help: "Total number of element documents fetched, by element kind",
		},
		[]string{"kind", "status"},
	)

	FetchedElements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_fetched_elements_total",
			Help: "Total number of elements parsed from fetched documents",
		},
		[]string{"kind"},
	)

	// Overpass metrics
	OverpassRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_overpass_requests_total",
			Help: "Total number of Overpass API requests",
		},
		[]string{"kind", "status"},
	)

	OverpassRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmbounds_overpass_request_duration_seconds",
			Help:    "Overpass API request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 180.0},
		},
		[]string{"kind"},
	)

	// Rate limiting metrics
	RateLimitWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "osmbounds_rate_limit_wait_duration_seconds",
			Help:    "Time spent waiting for rate limits",
			Buckets: []float64{0.01, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"service"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"layer"},
	)

	CacheQuarantined = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_cache_quarantined_total",
			Help: "Total number of cache entries quarantined after failing to parse",
		},
		[]string{"layer"},
	)

	CacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmbounds_cache_size",
			Help: "Current number of items in cache",
		},
		[]string{"layer"},
	)

	// Assembly metrics
	AssembliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_assemblies_total",
			Help: "Total number of boundary assemblies, by outcome",
		},
		[]string{"outcome"},
	)

	AssemblyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "osmbounds_assembly_duration_seconds",
			Help:    "Boundary assembly duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 900.0},
		},
	)

	UnclosedEndpoints = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "osmbounds_unclosed_endpoints",
			Help:    "Number of dangling endpoints reported by failed assemblies",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
	)

	RingsAssembled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_rings_assembled_total",
			Help: "Total number of closed rings produced, by role",
		},
		[]string{"role"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osmbounds_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "osmbounds_system_info",
			Help: "System information",
		},
		[]string{"version", "go_version"},
	)

	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmbounds_goroutines",
			Help: "Number of goroutines",
		},
	)

	MemoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "osmbounds_memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)
)

// Assembly outcomes
const (
	OutcomeSuccess  = "success"
	OutcomeNotFound = "not_found"
	OutcomeUnclosed = "unclosed"
	OutcomeError    = "error"
)

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Helper functions for common metric updates
func RecordMCPRequest(tool string, duration time.Duration, success bool) {
	MCPRequestsTotal.WithLabelValues(tool, status(success)).Inc()
	MCPRequestDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordFetch records one element document fetched by the resolver. A
// successful fetch with zero elements counts as not_found.
func RecordFetch(kind string, elements int, err error) {
	st := "success"
	switch {
	case err != nil:
		st = "error"
	case elements == 0:
		st = "not_found"
	}
	FetchesTotal.WithLabelValues(kind, st).Inc()
	if elements > 0 {
		FetchedElements.WithLabelValues(kind).Add(float64(elements))
	}
}

func RecordOverpassRequest(kind string, duration time.Duration, success bool) {
	OverpassRequestsTotal.WithLabelValues(kind, status(success)).Inc()
	OverpassRequestDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func RecordCacheHit(layer string) {
	CacheHits.WithLabelValues(layer).Inc()
}

func RecordCacheMiss(layer string) {
	CacheMisses.WithLabelValues(layer).Inc()
}

func RecordCacheQuarantine(layer string) {
	CacheQuarantined.WithLabelValues(layer).Inc()
}

func UpdateCacheSize(layer string, size int) {
	CacheSize.WithLabelValues(layer).Set(float64(size))
}

func RecordRateLimitWait(service string, duration time.Duration) {
	RateLimitWaitTime.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordAssembly records the outcome of one boundary assembly.
func RecordAssembly(outcome string, duration time.Duration, outerRings, innerRings int) {
	AssembliesTotal.WithLabelValues(outcome).Inc()
	AssemblyDuration.Observe(duration.Seconds())
	if outerRings > 0 {
		RingsAssembled.WithLabelValues("outer").Add(float64(outerRings))
	}
	if innerRings > 0 {
		RingsAssembled.WithLabelValues("inner").Add(float64(innerRings))
	}
}

func RecordUnclosedEndpoints(n int) {
	UnclosedEndpoints.Observe(float64(n))
}

func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
