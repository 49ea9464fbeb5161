package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRouting(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordRouting("premium", "high", 0.82, 0.77)
	m.RecordRouting("premium", "high", 0.88, 0.81)
	m.RecordRouting("light", "none", 0.10, 0.95)

	expected := `
		# HELP helmsman_routing_decisions_total Routing decisions by selected tier and thinking tier
		# TYPE helmsman_routing_decisions_total counter
		helmsman_routing_decisions_total{thinking="high",tier="premium"} 2
		helmsman_routing_decisions_total{thinking="none",tier="light"} 1
	`
	if err := testutil.CollectAndCompare(m.RoutingDecisions, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected routing counts: %v", err)
	}
	if got := testutil.CollectAndCount(m.Complexity); got != 1 {
		t.Errorf("complexity histogram series = %d, want 1", got)
	}
}

func TestRecordProposalAndRollback(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordProposal("applied")
	m.RecordProposal("applied")
	m.RecordProposal("rolled_back")
	m.RecordRollback()

	if got := testutil.ToFloat64(m.OptimizerProposals.WithLabelValues("applied")); got != 2 {
		t.Errorf("applied proposals = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OptimizerProposals.WithLabelValues("rolled_back")); got != 1 {
		t.Errorf("rolled_back proposals = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BaselineRollbacks); got != 1 {
		t.Errorf("rollbacks = %v, want 1", got)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
}

func TestConsensusScoreObserved(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordConsensus(0.84)
	m.RecordConsensus(0.31)

	if got := testutil.CollectAndCount(m.ConsensusScore); got != 1 {
		t.Errorf("consensus histogram series = %d, want 1", got)
	}
}
