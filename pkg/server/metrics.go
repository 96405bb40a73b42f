package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	scores    prometheus.Histogram
	anomalies prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brminer_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brminer_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		scores: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "brminer_scores",
			Help:    "Distribution of anomaly scores.",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		anomalies: f.NewCounter(prometheus.CounterOpts{
			Name: "brminer_anomalies_total",
			Help: "Total number of vectors classified as anomalies.",
		}),
	}
}
