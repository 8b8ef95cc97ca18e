package consensus

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// stubEngine serves canned leader state and op id tracking.
type stubEngine struct {
	state        LeaderState
	staleState   LeaderState
	received     OpId
	committed    OpId
	receivedErr  error
	committedErr error
}

func (e stubEngine) GetLeaderState(allowStale bool) LeaderState {
	if allowStale {
		return e.staleState
	}
	return e.state
}

func (e stubEngine) LastReceivedOpId() (OpId, error)  { return e.received, e.receivedErr }
func (e stubEngine) LastCommittedOpId() (OpId, error) { return e.committed, e.committedErr }

func TestConsensus_GetLastOpId_DispatchesByKind(t *testing.T) {
	c := New(stubEngine{
		received:  OpId{Term: 4, Index: 17},
		committed: OpId{Term: 4, Index: 15},
	})

	got, err := c.GetLastOpId(ReceivedOpId)
	if err != nil {
		t.Fatalf("received: unexpected error %v", err)
	}
	if got != (OpId{Term: 4, Index: 17}) {
		t.Fatalf("received: expected 4.17, got %v", got)
	}

	got, err = c.GetLastOpId(CommittedOpId)
	if err != nil {
		t.Fatalf("committed: unexpected error %v", err)
	}
	if got != (OpId{Term: 4, Index: 15}) {
		t.Fatalf("committed: expected 4.15, got %v", got)
	}
}

func TestConsensus_GetLastOpId_UnknownKindIsInvalidArgument(t *testing.T) {
	c := New(stubEngine{})

	for _, kind := range []OpIdType{UnknownOpIdType, OpIdType(17)} {
		_, err := c.GetLastOpId(kind)
		if !errors.Is(err, ErrInvalidOpIdType) {
			t.Fatalf("kind %v: expected ErrInvalidOpIdType, got %v", kind, err)
		}
	}
}

func TestConsensus_GetLastOpId_PropagatesTrackerError(t *testing.T) {
	trackerErr := errors.New("log layer unavailable")
	c := New(stubEngine{receivedErr: trackerErr})

	if _, err := c.GetLastOpId(ReceivedOpId); !errors.Is(err, trackerErr) {
		t.Fatalf("expected tracker error, got %v", err)
	}
}

func TestConsensus_GetLeaderStatus_AllowStaleUsesCachedState(t *testing.T) {
	c := New(stubEngine{
		state:      LeaderState{Status: LeaderAndReady, Term: 6},
		staleState: MakeNotReadyLeader(LeaderButNoMajorityReplicatedLease),
	})

	if got := c.GetLeaderStatus(false); got != LeaderAndReady {
		t.Fatalf("fresh: expected LEADER_AND_READY, got %v", got)
	}
	if got := c.GetLeaderStatus(true); got != LeaderButNoMajorityReplicatedLease {
		t.Fatalf("stale: expected LEADER_BUT_NO_MAJORITY_REPLICATED_LEASE, got %v", got)
	}
}

func TestConsensus_LeaderTerm_FreshQueryOnly(t *testing.T) {
	c := New(stubEngine{
		state:      LeaderState{Status: LeaderAndReady, Term: 6},
		staleState: LeaderState{Status: LeaderAndReady, Term: 5},
	})

	if got := c.LeaderTerm(); got != 6 {
		t.Fatalf("expected fresh term 6, got %d", got)
	}
}

func TestConsensus_NoOpNotCommittedScenario(t *testing.T) {
	// A freshly elected leader before its no-op commits: status reports the
	// prerequisite, CreateStatus yields a not-ready error, and the term must
	// not be treated as valid.
	c := New(stubEngine{state: MakeNotReadyLeader(LeaderButNoOpNotCommitted)})

	if got := c.GetLeaderStatus(false); got != LeaderButNoOpNotCommitted {
		t.Fatalf("expected LEADER_BUT_NO_OP_NOT_COMMITTED, got %v", got)
	}

	err := c.GetLeaderState(false).CreateStatus()
	if !errors.Is(err, ErrLeaderNotReadyToServe) {
		t.Fatalf("expected leader-not-ready error, got %v", err)
	}
	if got := c.LeaderTerm(); got != UnknownTerm {
		t.Fatalf("expected UnknownTerm, got %d", got)
	}
}

func TestConsensus_OldLeaderLeaseScenario(t *testing.T) {
	st := MakeNotReadyLeader(LeaderButOldLeaderMayHaveLease)
	st.RemainingOldLeaderLease = 3 * time.Second
	c := New(stubEngine{state: st})

	err := c.GetLeaderState(false).CreateStatus()
	if err == nil || !strings.Contains(err.Error(), "3s") {
		t.Fatalf("expected remaining lease embedded in error, got %v", err)
	}
}

func TestOpId_Ordering(t *testing.T) {
	tests := []struct {
		a, b OpId
		less bool
	}{
		{OpId{1, 1}, OpId{1, 2}, true},
		{OpId{1, 2}, OpId{2, 1}, true},
		{OpId{2, 1}, OpId{1, 9}, false},
		{OpId{3, 3}, OpId{3, 3}, false},
		{MinimumOpId(), OpId{0, 1}, true},
	}
	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.less {
			t.Fatalf("%v < %v: expected %v, got %v", tt.a, tt.b, tt.less, got)
		}
	}
}

func TestOpId_String(t *testing.T) {
	if got := (OpId{Term: 4, Index: 17}).String(); got != "4.17" {
		t.Fatalf("expected 4.17, got %q", got)
	}
}

func TestNewBootstrapInfo_StartsAtMinimum(t *testing.T) {
	bi := NewBootstrapInfo()
	if bi.LastId != MinimumOpId() || bi.LastCommittedId != MinimumOpId() {
		t.Fatalf("expected minimum op ids, got %v / %v", bi.LastId, bi.LastCommittedId)
	}
}
