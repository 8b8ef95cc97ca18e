package consensus

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMakeNotReadyLeader_AlwaysForcesUnknownTerm(t *testing.T) {
	statuses := []LeaderStatus{
		NotLeader,
		LeaderButNoOpNotCommitted,
		LeaderButOldLeaderMayHaveLease,
		LeaderButNoMajorityReplicatedLease,
	}

	for _, status := range statuses {
		st := MakeNotReadyLeader(status)
		if st.Status != status {
			t.Fatalf("expected status %v, got %v", status, st.Status)
		}
		if st.Term != UnknownTerm {
			t.Fatalf("status %v: expected term %d, got %d", status, UnknownTerm, st.Term)
		}
	}
}

func TestLeaderState_CreateStatus_MapsEveryStateDistinctly(t *testing.T) {
	tests := []struct {
		name   string
		state  LeaderState
		target error
	}{
		{"not_leader", MakeNotReadyLeader(NotLeader), ErrNotLeader},
		{"no_op_not_committed", MakeNotReadyLeader(LeaderButNoOpNotCommitted), ErrLeaderNotReadyToServe},
		{
			"old_leader_lease",
			LeaderState{Status: LeaderButOldLeaderMayHaveLease, Term: UnknownTerm, RemainingOldLeaderLease: 3 * time.Second},
			ErrLeaderNotReadyToServe,
		},
		{"no_majority_lease", MakeNotReadyLeader(LeaderButNoMajorityReplicatedLease), ErrLeaderHasNoLease},
	}

	seen := map[string]bool{}
	for _, tt := range tests {
		err := tt.state.CreateStatus()
		if err == nil {
			t.Fatalf("%s: expected an error", tt.name)
		}
		if !errors.Is(err, tt.target) {
			t.Fatalf("%s: expected errors.Is match for %v, got %v", tt.name, tt.target, err)
		}
		if seen[err.Error()] {
			t.Fatalf("%s: error message %q not distinct", tt.name, err.Error())
		}
		seen[err.Error()] = true
	}

	ready := LeaderState{Status: LeaderAndReady, Term: 7}
	if err := ready.CreateStatus(); err != nil {
		t.Fatalf("LEADER_AND_READY must be the unique success case, got %v", err)
	}
}

func TestLeaderState_CreateStatus_EmbedsRemainingLeaseVerbatim(t *testing.T) {
	st := MakeNotReadyLeader(LeaderButOldLeaderMayHaveLease)
	st.RemainingOldLeaderLease = 3 * time.Second

	err := st.CreateStatus()
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !strings.Contains(err.Error(), "3s") {
		t.Fatalf("expected remaining lease %q in message, got %q", "3s", err.Error())
	}

	var leaseErr *OldLeaderLeaseError
	if !errors.As(err, &leaseErr) {
		t.Fatalf("expected *OldLeaderLeaseError, got %T", err)
	}
	if leaseErr.RemainingLease != 3*time.Second {
		t.Fatalf("expected 3s remaining, got %v", leaseErr.RemainingLease)
	}
}

func TestLeaderState_CreateStatus_PanicsOutsideEnumeration(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for status outside the closed set")
		}
	}()
	st := LeaderState{Status: LeaderStatus(99)}
	_ = st.CreateStatus()
}

func TestLeaderStatus_String(t *testing.T) {
	if got := LeaderButOldLeaderMayHaveLease.String(); got != "LEADER_BUT_OLD_LEADER_MAY_HAVE_LEASE" {
		t.Fatalf("unexpected string: %q", got)
	}
	if got := LeaderAndReady.String(); got != "LEADER_AND_READY" {
		t.Fatalf("unexpected string: %q", got)
	}
}
