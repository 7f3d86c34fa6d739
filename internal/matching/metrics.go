package matching

import (
	"time"

	"github.com/MarcoPoloResearchLab/tablemates/backend/internal/circles"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess          = "success"
	outcomeEventNotFound    = "event_not_found"
	outcomeAlreadyMatched   = "already_matched"
	outcomeInsufficientPool = "insufficient_pool"
	outcomeError            = "error"
)

var (
	// MatchingRunsTotal counts TriggerMatching calls by outcome.
	MatchingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablemates_matching_runs_total",
			Help: "Total number of matching runs by outcome",
		},
		[]string{"outcome"},
	)

	// CirclesCreatedTotal counts stored circles by format.
	CirclesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablemates_circles_created_total",
			Help: "Total number of circles created by format",
		},
		[]string{"format"},
	)

	// UnassignedUsersTotal counts opted-in users left without a circle.
	UnassignedUsersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tablemates_unassigned_users_total",
			Help: "Total number of opted-in users left unassigned by matching",
		},
	)

	// MatchingDuration tracks how long successful and failed runs take.
	MatchingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tablemates_matching_duration_seconds",
			Help:    "Duration of matching runs in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"outcome"},
	)
)

func recordRun(outcome string, elapsed time.Duration) {
	MatchingRunsTotal.WithLabelValues(outcome).Inc()
	MatchingDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func recordPlan(plan Plan) {
	CirclesCreatedTotal.WithLabelValues(string(circles.FormatRotating)).Add(float64(plan.Count(circles.FormatRotating)))
	CirclesCreatedTotal.WithLabelValues(string(circles.FormatHosted)).Add(float64(plan.Count(circles.FormatHosted)))
	UnassignedUsersTotal.Add(float64(len(plan.Unassigned)))
}
