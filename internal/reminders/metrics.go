package reminders

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentbot"

var (
	jobsScheduled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "jobs",
			Help:      "Number of scheduled reminder jobs",
		},
	)

	jobFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "fires_total",
			Help:      "Reminder job executions by outcome",
		},
		[]string{"outcome"},
	)

	jobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "fire_duration_seconds",
			Help:      "Time spent in a reminder tick",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

func recordFire(outcome string, d time.Duration) {
	jobFires.WithLabelValues(outcome).Inc()
	jobDuration.Observe(d.Seconds())
}
