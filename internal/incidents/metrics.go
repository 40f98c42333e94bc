package incidents

import (
	"github.com/bissquit/incident-bot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentbot"

var (
	incidentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "created_total",
			Help:      "Total incidents created",
		},
		[]string{"severity"},
	)

	transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "transitions_total",
			Help:      "Accepted status and severity transitions",
		},
		[]string{"kind", "value"},
	)

	stepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "step_failures_total",
			Help:      "Best-effort steps that failed after the primary state change",
		},
		[]string{"step"},
	)

	reminderTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "reminder_ticks_total",
			Help:      "Reminder ticks by outcome",
		},
		[]string{"outcome"},
	)

	extrasSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incidents",
			Name:      "extras_steps_total",
			Help:      "Deferred creation steps by outcome",
		},
		[]string{"step", "outcome"},
	)
)

func recordIncidentCreated(severity domain.Severity) {
	incidentsCreated.WithLabelValues(string(severity)).Inc()
}

func recordTransition(kind, value string) {
	transitions.WithLabelValues(kind, value).Inc()
}

func recordStepFailure(step string) {
	stepFailures.WithLabelValues(step).Inc()
}

func recordReminder(outcome string) {
	reminderTicks.WithLabelValues(outcome).Inc()
}

func recordExtrasStep(step, outcome string) {
	extrasSteps.WithLabelValues(step, outcome).Inc()
}
