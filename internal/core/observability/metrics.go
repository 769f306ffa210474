// Package observability holds the Prometheus collectors shared by the bridge.
package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of knowledge graph calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	graphFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_query_frames_total",
			Help: "Result frames decoded from graph query responses.",
		},
		[]string{"outcome"},
	)

	graphRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graph_query_rows_total",
			Help: "Rows decoded from graph query responses.",
		},
	)

	graphErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_errors_total",
			Help: "Failed graph operations by error kind.",
		},
		[]string{"kind"},
	)

	schemaFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "schema_fetch_total",
			Help: "Data model fetches by outcome.",
		},
		[]string{"service", "outcome"},
	)

	filterCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filter_translation_cache_total",
			Help: "Where-clause translation cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kg_bridge_build_info",
			Help: "Version of the running bridge (value is always 1).",
		},
		[]string{"version"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	redisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Duration of Redis operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_invalidations_total",
			Help: "Cached keys removed by invalidation source.",
		},
		[]string{"source"},
	)

	kafkaConsumerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	editEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edit_events_published_total",
			Help: "Edit events handed to the producer by result.",
		},
		[]string{"result"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, upstreamLatencySeconds,
		graphFramesTotal, graphRowsTotal, graphErrorsTotal, schemaFetchTotal,
		filterCacheTotal, buildInfo, cacheResults, redisOpDuration,
		invalidationsTotal, kafkaConsumerErrors, editEventsTotal,
	}
}

// Init additionally registers the collectors on reg so a provider with its own
// registry exposes them. Collectors stay on the default registry either way.
func Init(reg prometheus.Registerer, enabled bool) {
	if !enabled || reg == nil {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

// ObserveGraphFrames records decoded frames and rows for one query response.
func ObserveGraphFrames(frames, rows int, failed bool) {
	graphFramesTotal.WithLabelValues("ok").Add(float64(frames))
	if failed {
		graphFramesTotal.WithLabelValues("error").Inc()
	}
	graphRowsTotal.Add(float64(rows))
}

func IncGraphError(kind string) {
	graphErrorsTotal.WithLabelValues(kind).Inc()
}

func ObserveSchemaFetch(service string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	schemaFetchTotal.WithLabelValues(service, outcome).Inc()
}

func IncFilterCache(hit bool) {
	if hit {
		filterCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	filterCacheTotal.WithLabelValues("miss").Inc()
}

func IncCacheHit()  { cacheResults.WithLabelValues("hit").Inc() }
func IncCacheMiss() { cacheResults.WithLabelValues("miss").Inc() }

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	redisOpDuration.WithLabelValues(op, result).Observe(durationSeconds)
}

func AddInvalidations(source string, n int) {
	if n <= 0 {
		return
	}
	invalidationsTotal.WithLabelValues(source).Add(float64(n))
}

func IncKafkaConsumerError(kind string) {
	kafkaConsumerErrors.WithLabelValues(kind).Inc()
}

func IncEditEvent(result string) {
	editEventsTotal.WithLabelValues(result).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
