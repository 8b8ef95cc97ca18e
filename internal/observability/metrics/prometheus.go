//revive:disable:var-naming
//revive:disable:exported
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus exposes application metrics and can be injected into the
// service and engine layers. It implements both internal/service.Metrics and
// internal/consensus/raft.Metrics through method set compatibility, without
// importing those packages.
type Prometheus struct {
	tableProposalTotal           *prometheus.CounterVec
	tableWaitAppliedDuration     *prometheus.HistogramVec
	tableReadRejectedTotal       *prometheus.CounterVec
	raftAppendEntriesRPCDuration *prometheus.HistogramVec
	raftAppendEntriesRejectTotal *prometheus.CounterVec
	raftAppendEntriesRPCError    *prometheus.CounterVec
	raftElectionStartedTotal     *prometheus.CounterVec
	raftElectionWonTotal         *prometheus.CounterVec
	raftElectionLostTotal        *prometheus.CounterVec
	raftStorageErrorTotal        *prometheus.CounterVec
	raftApplyLag                 *prometheus.GaugeVec
	raftIsLeader                 *prometheus.GaugeVec
	raftLeaseGrantedTotal        *prometheus.CounterVec
	raftRoundCompletedTotal      *prometheus.CounterVec
	raftRoundAbortedTotal        *prometheus.CounterVec
	raftSubmitToCommitDuration   *prometheus.HistogramVec
}

func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Prometheus{
		tableProposalTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "table",
				Name:      "proposal_total",
				Help:      "Table write proposal outcomes (committed, NOT_LEADER, commit_timeout, etc.).",
			},
			[]string{"node_id", "result"},
		),
		tableWaitAppliedDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "yugabyte",
				Subsystem: "table",
				Name:      "wait_applied_duration_seconds",
				Help:      "Time spent waiting for a committed round to become visible in the table store.",
				Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1},
			},
			[]string{"node_id", "result"},
		),
		tableReadRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "table",
				Name:      "read_rejected_total",
				Help:      "Consistent reads rejected by the leader-readiness gate, by leader status.",
			},
			[]string{"node_id", "status"},
		),
		raftAppendEntriesRPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "appendentries_rpc_duration_seconds",
				Help:      "Duration of outbound AppendEntries RPC calls from a leader to a peer.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"node_id", "peer_id", "heartbeat"},
		),
		raftAppendEntriesRejectTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "appendentries_reject_total",
				Help:      "Number of AppendEntries rejections received from peers.",
			},
			[]string{"node_id", "peer_id", "heartbeat"},
		),
		raftAppendEntriesRPCError: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "appendentries_rpc_error_total",
				Help:      "Outbound AppendEntries RPC errors by kind.",
			},
			[]string{"node_id", "peer_id", "heartbeat", "kind"},
		),
		raftElectionStartedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "election_started_total",
				Help:      "Number of times a node started an election as candidate.",
			},
			[]string{"node_id"},
		),
		raftElectionWonTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "election_won_total",
				Help:      "Number of elections won by a node.",
			},
			[]string{"node_id"},
		),
		raftElectionLostTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "election_lost_total",
				Help:      "Number of elections lost or abandoned by a node.",
			},
			[]string{"node_id"},
		),
		raftStorageErrorTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "storage_error_total",
				Help:      "Engine storage persistence errors by operation.",
			},
			[]string{"node_id", "op"},
		),
		raftApplyLag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "apply_lag",
				Help:      "Difference between the commit index and lastApplied on a node.",
			},
			[]string{"node_id"},
		),
		raftIsLeader: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "is_leader",
				Help:      "1 if node currently believes it is leader, otherwise 0.",
			},
			[]string{"node_id"},
		),
		raftLeaseGrantedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "lease_granted_total",
				Help:      "Leader leases granted by this node to a leader.",
			},
			[]string{"node_id", "leader_id"},
		),
		raftRoundCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "round_completed_total",
				Help:      "Replication rounds completed successfully.",
			},
			[]string{"node_id"},
		),
		raftRoundAbortedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "round_aborted_total",
				Help:      "Replication rounds aborted by leadership or term change.",
			},
			[]string{"node_id"},
		),
		raftSubmitToCommitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "yugabyte",
				Subsystem: "raft",
				Name:      "submit_to_commit_duration_seconds",
				Help:      "Time from round submission to the commit index covering its entry.",
				Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5},
			},
			[]string{"node_id"},
		),
	}

	if err := m.register(reg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Prometheus) register(reg prometheus.Registerer) error {
	if err := registerOrReuseCounterVec(reg, &m.tableProposalTotal); err != nil {
		return fmt.Errorf("register table proposal counter: %w", err)
	}
	if err := registerOrReuseHistogramVec(reg, &m.tableWaitAppliedDuration); err != nil {
		return fmt.Errorf("register table waitApplied histogram: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.tableReadRejectedTotal); err != nil {
		return fmt.Errorf("register table read rejected counter: %w", err)
	}
	if err := registerOrReuseHistogramVec(reg, &m.raftAppendEntriesRPCDuration); err != nil {
		return fmt.Errorf("register raft appendentries rpc histogram: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftAppendEntriesRejectTotal); err != nil {
		return fmt.Errorf("register raft appendentries reject counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftAppendEntriesRPCError); err != nil {
		return fmt.Errorf("register raft appendentries rpc error counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftElectionStartedTotal); err != nil {
		return fmt.Errorf("register raft election started counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftElectionWonTotal); err != nil {
		return fmt.Errorf("register raft election won counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftElectionLostTotal); err != nil {
		return fmt.Errorf("register raft election lost counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftStorageErrorTotal); err != nil {
		return fmt.Errorf("register raft storage error counter: %w", err)
	}
	if err := registerOrReuseGaugeVec(reg, &m.raftApplyLag); err != nil {
		return fmt.Errorf("register raft apply lag gauge: %w", err)
	}
	if err := registerOrReuseGaugeVec(reg, &m.raftIsLeader); err != nil {
		return fmt.Errorf("register raft is_leader gauge: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftLeaseGrantedTotal); err != nil {
		return fmt.Errorf("register raft lease granted counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftRoundCompletedTotal); err != nil {
		return fmt.Errorf("register raft round completed counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &m.raftRoundAbortedTotal); err != nil {
		return fmt.Errorf("register raft round aborted counter: %w", err)
	}
	if err := registerOrReuseHistogramVec(reg, &m.raftSubmitToCommitDuration); err != nil {
		return fmt.Errorf("register raft submit->commit histogram: %w", err)
	}
	return nil
}

func registerOrReuseHistogramVec(reg prometheus.Registerer, c **prometheus.HistogramVec) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *c)
		}
		*c = existing
	}
	return nil
}

func registerOrReuseCounterVec(reg prometheus.Registerer, c **prometheus.CounterVec) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *c)
		}
		*c = existing
	}
	return nil
}

func registerOrReuseGaugeVec(reg prometheus.Registerer, c **prometheus.GaugeVec) error {
	if err := reg.Register(*c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *c)
		}
		*c = existing
	}
	return nil
}

func (m *Prometheus) IncProposalResult(nodeID, result string) {
	m.tableProposalTotal.WithLabelValues(nodeID, result).Inc()
}

func (m *Prometheus) ObserveWaitAppliedDuration(nodeID string, d time.Duration, ok bool) {
	result := "timeout"
	if ok {
		result = "ok"
	}
	m.tableWaitAppliedDuration.WithLabelValues(nodeID, result).Observe(d.Seconds())
}

func (m *Prometheus) IncReadRejected(nodeID, status string) {
	m.tableReadRejectedTotal.WithLabelValues(nodeID, status).Inc()
}

func (m *Prometheus) ObserveAppendEntriesRPCDuration(nodeID, peerID string, heartbeat bool, d time.Duration) {
	m.raftAppendEntriesRPCDuration.WithLabelValues(nodeID, peerID, boolString(heartbeat)).Observe(d.Seconds())
}

func (m *Prometheus) IncAppendEntriesReject(nodeID, peerID string, heartbeat bool) {
	m.raftAppendEntriesRejectTotal.WithLabelValues(nodeID, peerID, boolString(heartbeat)).Inc()
}

func (m *Prometheus) IncAppendEntriesRPCError(nodeID, peerID string, heartbeat bool, kind string) {
	m.raftAppendEntriesRPCError.WithLabelValues(nodeID, peerID, boolString(heartbeat), kind).Inc()
}

func (m *Prometheus) IncElectionStarted(nodeID string) {
	m.raftElectionStartedTotal.WithLabelValues(nodeID).Inc()
}

func (m *Prometheus) IncElectionWon(nodeID string) {
	m.raftElectionWonTotal.WithLabelValues(nodeID).Inc()
}

func (m *Prometheus) IncElectionLost(nodeID string) {
	m.raftElectionLostTotal.WithLabelValues(nodeID).Inc()
}

func (m *Prometheus) IncStorageError(nodeID, op string) {
	m.raftStorageErrorTotal.WithLabelValues(nodeID, op).Inc()
}

func (m *Prometheus) SetApplyLag(nodeID string, lag int64) {
	if lag < 0 {
		lag = 0
	}
	m.raftApplyLag.WithLabelValues(nodeID).Set(float64(lag))
}

func (m *Prometheus) SetIsLeader(nodeID string, isLeader bool) {
	if isLeader {
		m.raftIsLeader.WithLabelValues(nodeID).Set(1)
		return
	}
	m.raftIsLeader.WithLabelValues(nodeID).Set(0)
}

func (m *Prometheus) IncLeaseGranted(nodeID, leaderID string) {
	m.raftLeaseGrantedTotal.WithLabelValues(nodeID, leaderID).Inc()
}

func (m *Prometheus) IncRoundCompleted(nodeID string) {
	m.raftRoundCompletedTotal.WithLabelValues(nodeID).Inc()
}

func (m *Prometheus) IncRoundAborted(nodeID string) {
	m.raftRoundAbortedTotal.WithLabelValues(nodeID).Inc()
}

func (m *Prometheus) ObserveSubmitToCommitDuration(nodeID string, d time.Duration) {
	m.raftSubmitToCommitDuration.WithLabelValues(nodeID).Observe(d.Seconds())
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
