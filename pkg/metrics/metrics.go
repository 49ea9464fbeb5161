// Package metrics exposes prometheus collectors for the routing and
// feedback loop. Collectors register once at construction; the
// coordinator records as sessions move through routing, execution,
// consensus and optimization.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets covers the [0,1] score range in tenths.
var scoreBuckets = prometheus.LinearBuckets(0.1, 0.1, 9)

// Metrics holds the collectors. Fields are exported so callers can
// attach them to custom recording paths.
type Metrics struct {
	// RoutingDecisions counts routing outcomes.
	// Labels: tier (light|standard|premium), thinking (none|low|medium|high|max)
	RoutingDecisions *prometheus.CounterVec

	// Complexity observes the estimated query complexity per decision.
	Complexity prometheus.Histogram

	// DQScore observes the composite decision-quality score per decision.
	DQScore prometheus.Histogram

	// ConsensusScore observes the overall consensus score per analyzed
	// session.
	ConsensusScore prometheus.Histogram

	// OptimizerProposals counts optimizer proposals.
	// Labels: status (proposed|validated|applied|stable|rolled_back)
	OptimizerProposals *prometheus.CounterVec

	// BaselineRollbacks counts automatic and manual baseline rollbacks.
	BaselineRollbacks prometheus.Counter

	// ActiveSessions tracks sessions currently executing.
	ActiveSessions prometheus.Gauge
}

// New creates and registers the collectors with reg. A nil reg falls
// back to the process-default registry, which admits only one Metrics
// per process.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RoutingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helmsman_routing_decisions_total",
				Help: "Routing decisions by selected tier and thinking tier",
			},
			[]string{"tier", "thinking"},
		),
		Complexity: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "helmsman_routing_complexity",
				Help:    "Estimated query complexity per routing decision",
				Buckets: scoreBuckets,
			},
		),
		DQScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "helmsman_routing_dq_score",
				Help:    "Composite decision quality score per routing decision",
				Buckets: scoreBuckets,
			},
		),
		ConsensusScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "helmsman_consensus_score",
				Help:    "Overall consensus score per analyzed session",
				Buckets: scoreBuckets,
			},
		),
		OptimizerProposals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "helmsman_optimizer_proposals_total",
				Help: "Optimizer proposals by final status",
			},
			[]string{"status"},
		),
		BaselineRollbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "helmsman_baseline_rollbacks_total",
				Help: "Baseline rollbacks, automatic and manual",
			},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "helmsman_active_sessions",
				Help: "Sessions currently executing",
			},
		),
	}
}

// RecordRouting records one routing decision.
func (m *Metrics) RecordRouting(tier, thinking string, complexity, dqScore float64) {
	m.RoutingDecisions.WithLabelValues(tier, thinking).Inc()
	m.Complexity.Observe(complexity)
	m.DQScore.Observe(dqScore)
}

// RecordConsensus records the overall score of an analyzed session.
func (m *Metrics) RecordConsensus(overall float64) {
	m.ConsensusScore.Observe(overall)
}

// RecordProposal counts an optimizer proposal reaching status.
func (m *Metrics) RecordProposal(status string) {
	m.OptimizerProposals.WithLabelValues(status).Inc()
}

// RecordRollback counts a baseline rollback.
func (m *Metrics) RecordRollback() {
	m.BaselineRollbacks.Inc()
}

// SessionStarted marks a session as executing.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded marks a session as finished.
func (m *Metrics) SessionEnded() {
	m.ActiveSessions.Dec()
}
