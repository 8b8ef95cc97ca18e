package consensus

import (
	"fmt"
	"time"
)

// LeaderStatus describes how ready this node is to act as leader, in
// increasing order of readiness.
type LeaderStatus int

const (
	// NotLeader: the node is not currently leader.
	NotLeader LeaderStatus = iota

	// LeaderButNoOpNotCommitted: elected, but the term-start no-op has not
	// been committed by a quorum yet, so the leader cannot be sure its view
	// of committed state is current.
	LeaderButNoOpNotCommitted

	// LeaderButOldLeaderMayHaveLease: a previous leader's time-bound lease
	// might not have expired; serving now risks two active leaders.
	LeaderButOldLeaderMayHaveLease

	// LeaderButNoMajorityReplicatedLease: a majority of peers has not
	// acknowledged this leader's own lease, so it cannot be trusted as
	// exclusive yet.
	LeaderButNoMajorityReplicatedLease

	// LeaderAndReady: fully safe to serve.
	LeaderAndReady
)

func (s LeaderStatus) String() string {
	switch s {
	case NotLeader:
		return "NOT_LEADER"
	case LeaderButNoOpNotCommitted:
		return "LEADER_BUT_NO_OP_NOT_COMMITTED"
	case LeaderButOldLeaderMayHaveLease:
		return "LEADER_BUT_OLD_LEADER_MAY_HAVE_LEASE"
	case LeaderButNoMajorityReplicatedLease:
		return "LEADER_BUT_NO_MAJORITY_REPLICATED_LEASE"
	case LeaderAndReady:
		return "LEADER_AND_READY"
	}
	return fmt.Sprintf("LeaderStatus(%d)", int(s))
}

// LeaderState is a point-in-time readiness snapshot produced fresh by every
// readiness query and never mutated afterwards. Term is only valid for
// ready-enough states; RemainingOldLeaderLease is meaningful only for
// LeaderButOldLeaderMayHaveLease.
type LeaderState struct {
	Status                  LeaderStatus
	Term                    int64
	RemainingOldLeaderLease time.Duration
}

// MakeNotReadyLeader builds a LeaderState for a non-ready status. Term is
// always forced to UnknownTerm so ready and not-ready states can never be
// confused by term inspection alone.
func MakeNotReadyLeader(status LeaderStatus) LeaderState {
	return LeaderState{Status: status, Term: UnknownTerm}
}

// CreateStatus maps the readiness snapshot to the error handed to callers.
// LeaderAndReady is the unique success case. The lease-wait variant embeds
// the remaining duration so callers can decide how long to back off.
func (s LeaderState) CreateStatus() error {
	switch s.Status {
	case NotLeader:
		return ErrNotLeader
	case LeaderButNoOpNotCommitted:
		return fmt.Errorf("%w: has not yet replicated the term-start no-op", ErrLeaderNotReadyToServe)
	case LeaderButOldLeaderMayHaveLease:
		return &OldLeaderLeaseError{RemainingLease: s.RemainingOldLeaderLease}
	case LeaderButNoMajorityReplicatedLease:
		return ErrLeaderHasNoLease
	case LeaderAndReady:
		return nil
	}
	panic(fmt.Sprintf("consensus: invalid LeaderStatus value %d", int(s.Status)))
}
