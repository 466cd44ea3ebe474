package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelshelf",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reelshelf",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30, 120, 600},
	}, []string{"method", "route"})

	ActiveStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reelshelf",
		Name:      "active_streams",
		Help:      "Number of video responses currently being written.",
	})

	StreamedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reelshelf",
		Name:      "streamed_bytes_total",
		Help:      "Total video bytes written to clients.",
	})

	StreamsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelshelf",
		Name:      "streams_total",
		Help:      "Video responses by outcome (complete, partial, aborted, error, unsatisfiable).",
	}, []string{"outcome"})

	ScanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reelshelf",
		Name:      "catalog_scan_duration_seconds",
		Help:      "Duration of library directory scans.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"scope"})

	ScanFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelshelf",
		Name:      "catalog_scan_failures_total",
		Help:      "Library scans that could not read the root directory.",
	}, []string{"scope"})

	CatalogSeries = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "reelshelf",
		Name:      "catalog_series",
		Help:      "Series in the current catalog snapshot.",
	}, []string{"scope"})

	LoginAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reelshelf",
		Name:      "login_attempts_total",
		Help:      "Login attempts by result.",
	}, []string{"result"})
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveStreams,
		StreamedBytesTotal,
		StreamsTotal,
		ScanDuration,
		ScanFailuresTotal,
		CatalogSeries,
		LoginAttemptsTotal,
	)
}
