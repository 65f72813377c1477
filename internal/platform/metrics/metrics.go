package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starblog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "starblog_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starblog_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starblog_auth_failures_total",
			Help: "Rejected session or login attempts by reason",
		},
		[]string{"reason"},
	)

	RatingsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starblog_ratings_total",
			Help: "Rating attempts by outcome",
		},
		[]string{"outcome"},
	)

	RatingAuditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starblog_rating_audits_total",
			Help: "Rating audits processed by result status",
		},
		[]string{"status"},
	)
)
