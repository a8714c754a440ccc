package services

import "github.com/prometheus/client_golang/prometheus"

var (
	periodsClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_periods_closed_total",
			Help: "Total number of member periods closed by the sweep",
		},
		[]string{"challenge_type", "satisfied"},
	)
	duplicateClosuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_duplicate_closures_total",
			Help: "Closures skipped because the period was already evaluated",
		},
	)
	eliminationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sweep_eliminations_total",
			Help: "Total number of members eliminated",
		},
	)
	challengesEndedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_challenges_ended_total",
			Help: "Total number of challenges moved to ended",
		},
		[]string{"challenge_type"},
	)
	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sweep_duration_seconds",
			Help:    "Duration of a single challenge sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
	notificationsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Engine events handed to the push provider",
		},
		[]string{"type", "result"},
	)
	dispatchBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifications_overflow_backlog",
			Help: "Notifications waiting for room in the dispatch queue",
		},
	)
)

// RegisterMetrics registers the engine metrics. Call this from main.go.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(periodsClosedTotal)
	reg.MustRegister(duplicateClosuresTotal)
	reg.MustRegister(eliminationsTotal)
	reg.MustRegister(challengesEndedTotal)
	reg.MustRegister(sweepDuration)
	reg.MustRegister(notificationsDispatchedTotal)
	reg.MustRegister(dispatchBacklog)
}
