package tasks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentbot"

var (
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker",
		},
	)

	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "processed_total",
			Help:      "Task attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Time spent in a task handler",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
)

func recordTask(kind, outcome string) {
	tasksProcessed.WithLabelValues(kind, outcome).Inc()
}

func recordDuration(kind string, d time.Duration) {
	taskDuration.WithLabelValues(kind).Observe(d.Seconds())
}
