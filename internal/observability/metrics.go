// Package observability exposes Prometheus metrics for the renderer.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tileLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_loads_total",
			Help: "Tile load results by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	tileLoadDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_load_duration_seconds",
			Help:    "Duration of tile fetches in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~80s
		},
		[]string{"source", "outcome"},
	)

	tileCacheEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_events_total",
			Help: "Tile pool events by source (hit, miss, evict).",
		},
		[]string{"source", "event"},
	)

	rendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renders_total",
			Help: "Settled renders by outcome.",
		},
		[]string{"outcome"},
	)

	coalescedConsumersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coalesced_consumers_total",
			Help: "Consumers attached to an already-pending render.",
		},
	)

	renderDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "render_duration_seconds",
			Help:    "Time from submission to settlement of a render.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)

	blocksRenderedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blocks_rendered_total",
			Help: "Fixed-size blocks handed to the render backend.",
		},
	)

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

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveTileLoad(source, outcome string, durationSeconds float64) {
	tileLoadsTotal.WithLabelValues(source, outcome).Inc()
	tileLoadDurationSeconds.WithLabelValues(source, outcome).Observe(durationSeconds)
}

func IncTileCacheEvent(source, event string) {
	tileCacheEventsTotal.WithLabelValues(source, event).Inc()
}

func ObserveRender(outcome string, durationSeconds float64) {
	rendersTotal.WithLabelValues(outcome).Inc()
	renderDurationSeconds.Observe(durationSeconds)
}

func IncCoalescedConsumer() {
	coalescedConsumersTotal.Inc()
}

func AddBlocksRendered(n int) {
	if n <= 0 {
		return
	}
	blocksRenderedTotal.Add(float64(n))
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
