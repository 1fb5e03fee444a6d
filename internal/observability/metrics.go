package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Visual Crossing call rate by outcome. Watch for: error vs success ratio, quota (rate_limited).
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency per request. Watch for: p95 > 2s (upstream degradation).
	WeatherAPIDuration *prometheus.HistogramVec

	// Gate invocations that passed validation.
	WeatherQueriesTotal prometheus.Counter

	// Store lookups by result (hit, miss, error). Hit rate = hit/(hit+miss+error).
	CacheLookupsTotal *prometheus.CounterVec

	// Store failures swallowed by the gate, by op (lookup, insert) and category.
	CacheErrorsTotal *prometheus.CounterVec

	// Misses that started while another miss for the same key was already fetching.
	// Each one is a duplicate upstream call.
	ConcurrentMissesTotal prometheus.Counter

	// Misses currently waiting on the provider.
	MissesInFlight prometheus.Gauge

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker transitions by target state.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Warming runs by result (success, partial, failure).
	WarmingRunsTotal *prometheus.CounterVec

	// Per-location warming failures.
	WarmingErrorsTotal prometheus.Counter

	// Warming run duration.
	WarmingDuration prometheus.Histogram

	windowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of Visual Crossing API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Visual Crossing API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of validated weather lookups",
		},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Weather store lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Weather store failures swallowed by the gate, by operation and category",
		},
		[]string{"op", "category"},
	)
	ConcurrentMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "concurrentMissesTotal",
			Help: "Misses that overlapped an in-flight miss for the same key (duplicate upstream fetches)",
		},
	)
	MissesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "missesInFlight",
			Help: "Cache misses currently fetching from the provider",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Upstream circuit breaker state transitions by target state",
		},
		[]string{"to"},
	)
	WarmingRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warmingRunsTotal",
			Help: "Cache warming runs by result",
		},
		[]string{"result"},
	)
	WarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warmingErrorsTotal",
			Help: "Locations that failed to warm",
		},
	)
	WarmingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration,
		WeatherQueriesTotal, CacheLookupsTotal, CacheErrorsTotal,
		ConcurrentMissesTotal, MissesInFlight,
		RateLimitDeniedTotal, CircuitBreakerTransitionsTotal,
		WarmingRunsTotal, WarmingErrorsTotal, WarmingDuration,
	)
}

// RegisterWindowGauges registers the sliding-window request and reject gauges that
// back the health evaluation. Only the first call registers.
func RegisterWindowGauges(requests, rejects func() float64) {
	windowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting the rate-limited path in the sliding window",
				},
				requests,
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the sliding window",
				},
				rejects,
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
