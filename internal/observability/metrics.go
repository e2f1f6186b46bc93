package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/station-forecast-service/internal/traffic"
	"github.com/kjstillabower/station-forecast-service/internal/validation"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Refill calls to the upstream daily API by outcome (success, unavailable, error, circuit_open).
	RefillCallsTotal *prometheus.CounterVec

	// Upstream latency per refill call. Watch for: p95 approaching weather_api.timeout.
	RefillDuration *prometheus.HistogramVec

	// Retry attempts for refill calls. Zero unless reliability.retry_max_attempts > 1.
	RefillRetriesTotal prometheus.Counter

	// Station cache lookups by result (hit, miss). Hit rate = hit/(hit+miss).
	CacheLookupsTotal *prometheus.CounterVec

	// Requests that waited on another request's refill of the same station.
	RefillLockWaitsTotal *prometheus.CounterVec

	// Concurrent callers on one station when a wait occurred.
	RefillLockConcurrency *prometheus.HistogramVec

	// Forecast runs by outcome (success, insufficient_data, unavailable, error).
	ForecastsTotal *prometheus.CounterVec

	// Record store failures by operation.
	StoreErrorsTotal *prometheus.CounterVec

	// Records dropped by the cleaning filter before forecasting.
	RecordsDroppedTotal prometheus.Counter

	// Circuit breaker state for the refill source: 0 closed, 1 half-open, 2 open.
	CircuitBreakerState prometheus.Gauge

	// Scheduled or startup warming runs and their cost.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// Total station lookups. Watch for: traffic volume, rate() for QPS.
	StationQueriesTotal prometheus.Counter

	// Per-station query count (allow-list; others go to "other").
	StationQueriesByNameTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	trackedStationsMu sync.RWMutex
	trackedStations   map[string]struct{}

	rateLimitGaugesOnce sync.Once
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
	RefillCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refillCallsTotal",
			Help: "Total number of upstream daily weather calls",
		},
		[]string{"status"},
	)
	RefillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refillDurationSeconds",
			Help:    "Upstream daily weather latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	RefillRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "refillRetriesTotal",
			Help: "Total number of retry attempts for upstream daily weather calls",
		},
	)
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheLookupsTotal",
			Help: "Station cache lookups by result (hit, miss)",
		},
		[]string{"result"},
	)
	RefillLockWaitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refillLockWaitsTotal",
			Help: "Requests that found another request holding the station lock",
		},
		[]string{"station"},
	)
	RefillLockConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refillLockConcurrency",
			Help:    "Concurrent callers on one station when a lock wait occurred",
			Buckets: []float64{2, 3, 5, 10, 20, 50},
		},
		[]string{"station"},
	)
	ForecastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastsTotal",
			Help: "Forecast runs by outcome",
		},
		[]string{"outcome"},
	)
	StoreErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeErrorsTotal",
			Help: "Record store failures by operation",
		},
		[]string{"op"},
	)
	RecordsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recordsDroppedTotal",
			Help: "Records dropped by validation before forecasting",
		},
	)
	CircuitBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "refillCircuitBreakerState",
			Help: "Refill circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of station warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Warming runs in which at least one station failed",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of station warming runs",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	StationQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stationQueriesTotal",
			Help: "Total number of station weather lookups",
		},
	)
	StationQueriesByNameTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stationQueriesByNameTotal",
			Help: "Station queries by name (allow-list; others use station=other)",
		},
		[]string{"station"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		RefillCallsTotal, RefillDuration, RefillRetriesTotal,
		CacheLookupsTotal, RefillLockWaitsTotal, RefillLockConcurrency,
		ForecastsTotal, StoreErrorsTotal, RecordsDroppedTotal,
		CircuitBreakerState,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		StationQueriesTotal, StationQueriesByNameTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterTrafficGauges registers request and reject gauges over the sliding window.
// Call once from main after config load.
func RegisterTrafficGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// SetTrackedStations sets the allow-list for per-station metrics. Other stations increment "other".
func SetTrackedStations(stations []string) {
	trackedStationsMu.Lock()
	defer trackedStationsMu.Unlock()
	trackedStations = make(map[string]struct{}, len(stations))
	for _, st := range stations {
		trackedStations[validation.NormalizeStation(st)] = struct{}{}
	}
}

// StationLabel returns the station itself when tracked, otherwise "other".
// Keeps label cardinality bounded.
func StationLabel(station string) string {
	st := validation.NormalizeStation(station)
	trackedStationsMu.RLock()
	_, ok := trackedStations[st]
	trackedStationsMu.RUnlock()
	if ok {
		return st
	}
	return "other"
}

// RecordStationQuery records a weather lookup for the given station.
func RecordStationQuery(station string) {
	StationQueriesTotal.Inc()
	StationQueriesByNameTotal.WithLabelValues(StationLabel(station)).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
