package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chorus_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Session Metrics
	SessionsStartedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_sessions_started_total",
			Help: "Total number of practice sessions started",
		},
		[]string{"mode"}, // practice, review
	)

	SessionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_session_failures_total",
			Help: "Total number of session phase failures",
		},
		[]string{"phase", "kind"},
	)

	CaptureDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chorus_capture_duration_seconds",
			Help:    "Length of captured audio windows in seconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s to 32s
		},
	)

	// Scoring Metrics
	ScoresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_scores_total",
			Help: "Total number of pronunciation scores computed",
		},
		[]string{"band"},
	)

	ScoreDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chorus_score_distribution",
			Help:    "Distribution of pronunciation similarity scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11), // 0 to 100
		},
	)

	// SRS Metrics
	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_reviews_total",
			Help: "Total number of SRS card reviews",
		},
		[]string{"quality"},
	)

	CardsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chorus_cards_created_total",
			Help: "Total number of SRS cards created",
		},
	)

	CardsDue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chorus_cards_due",
			Help: "Number of SRS cards currently due for review",
		},
	)

	// Event Pipeline Metrics
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_events_published_total",
			Help: "Total number of practice events published",
		},
		[]string{"kind"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chorus_events_consumed_total",
			Help: "Total number of practice events consumed by the worker",
		},
		[]string{"kind", "status"},
	)

	HistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chorus_history_entries",
			Help: "Number of practice history entries retained",
		},
	)
)
