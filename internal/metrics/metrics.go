package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed metrics
var (
	ConfessionsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessions_fetched_total",
		Help: "Total number of confessions loaded by full list fetches",
	})

	LiveEventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessions_live_events_total",
		Help: "Total number of NewSin events received from live subscriptions",
	})

	FeedSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "confessions_feed_size",
		Help: "Number of confessions currently held in the board feed",
	})
)

// Subscription metrics
var (
	ActiveListeners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "confessions_active_listeners",
		Help: "Number of registered live listeners",
	})

	SubscriptionReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "confessions_subscription_reconnects_total",
		Help: "Total number of times a live subscription was re-opened after an error",
	})
)

// Submission metrics
var (
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confessions_submissions_total",
			Help: "Total number of submitted confessions by result",
		},
		[]string{"result"},
	)

	ConfirmationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "confessions_confirmation_duration_seconds",
		Help:    "Time from broadcast to confirmation of a confession transaction",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})
)
