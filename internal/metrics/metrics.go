// Package metrics provides Prometheus instrumentation for the moderation
// daemon: request outcomes, decisions per content kind, risk levels and
// analysis latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts handled requests by type and outcome
	// ("ok", "invalid", "rate_limited", "error").
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_moderation_requests_total",
		Help: "Total number of moderation requests handled",
	}, []string{"type", "outcome"})

	// DecisionsTotal counts moderation actions per content kind.
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_moderation_decisions_total",
		Help: "Moderation decisions by content kind and action",
	}, []string{"kind", "action"})

	// RiskTotal counts analyses by overall risk level.
	RiskTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "forum_moderation_risk_total",
		Help: "Analyzed submissions by overall risk level",
	}, []string{"level"})

	// AnalysisSeconds records how long one moderate request spends in the
	// engine.
	AnalysisSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "forum_moderation_analysis_seconds",
		Help:    "Time spent analyzing one submission",
		Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
	})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		DecisionsTotal,
		RiskTotal,
		AnalysisSeconds,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
