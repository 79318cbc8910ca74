// Package metrics exposes Prometheus collectors for the recommendation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	suggestions       *prometheus.CounterVec
	feedbackEvents    *prometheus.CounterVec
	stressTransitions *prometheus.CounterVec
	rankedTasks       prometheus.Histogram
}

// MustNewMetrics registers the collectors with reg and panics on duplicate
// registration, like promauto. Tests should pass a fresh registry.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	suggestions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priority_agent",
			Subsystem: "advisor",
			Name:      "suggestions_total",
			Help:      "Next-action requests by result (suggested or none).",
		},
		[]string{"result"},
	)
	feedbackEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priority_agent",
			Subsystem: "advisor",
			Name:      "feedback_events_total",
			Help:      "Feedback events applied to preference weights, by outcome.",
		},
		[]string{"outcome"},
	)
	stressTransitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "priority_agent",
			Subsystem: "stress",
			Name:      "mode_transitions_total",
			Help:      "High-stress mode flips, by direction.",
		},
		[]string{"direction"},
	)
	rankedTasks := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "priority_agent",
			Subsystem: "ranker",
			Name:      "ranked_tasks",
			Help:      "Number of eligible tasks per ranking pass.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
	)

	reg.MustRegister(suggestions, feedbackEvents, stressTransitions, rankedTasks)

	return &Metrics{
		suggestions:       suggestions,
		feedbackEvents:    feedbackEvents,
		stressTransitions: stressTransitions,
		rankedTasks:       rankedTasks,
	}
}

// The methods below are nil-safe so components can run without metrics.

func (m *Metrics) Suggestion(found bool) {
	if m == nil {
		return
	}
	result := "none"
	if found {
		result = "suggested"
	}
	m.suggestions.WithLabelValues(result).Inc()
}

func (m *Metrics) Feedback(outcome string) {
	if m == nil {
		return
	}
	m.feedbackEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StressTransition(entered bool) {
	if m == nil {
		return
	}
	direction := "exit"
	if entered {
		direction = "enter"
	}
	m.stressTransitions.WithLabelValues(direction).Inc()
}

func (m *Metrics) Ranked(n int) {
	if m == nil {
		return
	}
	m.rankedTasks.Observe(float64(n))
}
