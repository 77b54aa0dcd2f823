package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the engine's metrics; exposed by the HTTP layer under /metrics.
var Registry = prometheus.NewRegistry()

var (
	eventsProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_events_processed_total",
			Help: "Trade events processed, partitioned by event type and outcome.",
		},
		[]string{"event", "outcome"},
	)
	eventDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamification_event_duration_seconds",
			Help:    "End-to-end pipeline latency per event type, including lock waits.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)
	badgesAwarded = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamification_badges_awarded_total",
			Help: "Badges unlocked, partitioned by rarity.",
		},
		[]string{"rarity"},
	)
	levelUps = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_level_ups_total",
			Help: "Levels gained across all users.",
		},
	)
	periodsRanked = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "gamification_periods_ranked_total",
			Help: "Batch ranking runs completed.",
		},
	)
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}
