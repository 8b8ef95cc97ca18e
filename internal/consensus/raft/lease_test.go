package raft

import (
	"errors"
	"testing"
	"time"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

func newLeaseTestNode(t *testing.T) *Node {
	t.Helper()
	return newTestNode("node-1", map[string]PeerClient{
		"node-2": nil,
		"node-3": nil,
	}, nil)
}

func TestLeaderStateLadder(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name          string
		setup         func(n *Node)
		wantStatus    consensus.LeaderStatus
		wantTerm      int64
		wantRemaining time.Duration
	}{
		{
			name:       "follower is not leader",
			setup:      func(n *Node) { n.role = Follower },
			wantStatus: consensus.NotLeader,
			wantTerm:   consensus.UnknownTerm,
		},
		{
			name: "degraded leader reports not leader",
			setup: func(n *Node) {
				n.role = Leader
				n.degraded = true
			},
			wantStatus: consensus.NotLeader,
			wantTerm:   consensus.UnknownTerm,
		},
		{
			name: "no-op not yet submitted",
			setup: func(n *Node) {
				n.role = Leader
				n.currentTerm = 2
			},
			wantStatus: consensus.LeaderButNoOpNotCommitted,
			wantTerm:   consensus.UnknownTerm,
		},
		{
			name: "no-op submitted but not committed",
			setup: func(n *Node) {
				n.role = Leader
				n.currentTerm = 2
				n.log = []LogEntry{{Term: 2, Type: EntryNoOp}}
				n.noOpIndex = 1
				n.commitIndex = 0
			},
			wantStatus: consensus.LeaderButNoOpNotCommitted,
			wantTerm:   consensus.UnknownTerm,
		},
		{
			name: "old leader lease still pending",
			setup: func(n *Node) {
				n.role = Leader
				n.currentTerm = 2
				n.log = []LogEntry{{Term: 2, Type: EntryNoOp}}
				n.noOpIndex = 1
				n.commitIndex = 1
				n.oldLeaderLeaseExpiresAt = now.Add(700 * time.Millisecond)
			},
			wantStatus:    consensus.LeaderButOldLeaderMayHaveLease,
			wantTerm:      consensus.UnknownTerm,
			wantRemaining: 700 * time.Millisecond,
		},
		{
			name: "no majority acknowledged lease",
			setup: func(n *Node) {
				n.role = Leader
				n.currentTerm = 2
				n.log = []LogEntry{{Term: 2, Type: EntryNoOp}}
				n.noOpIndex = 1
				n.commitIndex = 1
			},
			wantStatus: consensus.LeaderButNoMajorityReplicatedLease,
			wantTerm:   consensus.UnknownTerm,
		},
		{
			name: "ready with one fresh peer grant",
			setup: func(n *Node) {
				n.role = Leader
				n.currentTerm = 2
				n.log = []LogEntry{{Term: 2, Type: EntryNoOp}}
				n.noOpIndex = 1
				n.commitIndex = 1
				n.leaseGrants["node-2"] = now.Add(-500 * time.Millisecond)
			},
			wantStatus: consensus.LeaderAndReady,
			wantTerm:   2,
		},
		{
			name: "stale peer grants lose readiness",
			setup: func(n *Node) {
				n.role = Leader
				n.currentTerm = 2
				n.log = []LogEntry{{Term: 2, Type: EntryNoOp}}
				n.noOpIndex = 1
				n.commitIndex = 1
				n.leaseGrants["node-2"] = now.Add(-3 * time.Second)
				n.leaseGrants["node-3"] = now.Add(-4 * time.Second)
			},
			wantStatus: consensus.LeaderButNoMajorityReplicatedLease,
			wantTerm:   consensus.UnknownTerm,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := newLeaseTestNode(t)
			fixedClock(n, now)
			tc.setup(n)

			n.mu.Lock()
			state := n.leaderStateLocked(now)
			n.mu.Unlock()

			if state.Status != tc.wantStatus {
				t.Fatalf("status = %v, want %v", state.Status, tc.wantStatus)
			}
			if state.Term != tc.wantTerm {
				t.Fatalf("term = %d, want %d", state.Term, tc.wantTerm)
			}
			if state.RemainingOldLeaderLease != tc.wantRemaining {
				t.Fatalf("remaining old leader lease = %v, want %v",
					state.RemainingOldLeaderLease, tc.wantRemaining)
			}
		})
	}
}

func TestGetLeaderStateStaleCache(t *testing.T) {
	n := newLeaseTestNode(t)
	start := time.Unix(1700000000, 0)
	advance := fixedClock(n, start)

	n.role = Leader
	n.currentTerm = 3
	n.log = []LogEntry{{Term: 3, Type: EntryNoOp}}
	n.noOpIndex = 1
	n.commitIndex = 1
	n.leaseGrants["node-2"] = start

	fresh := n.GetLeaderState(false)
	if fresh.Status != consensus.LeaderAndReady {
		t.Fatalf("fresh status = %v, want %v", fresh.Status, consensus.LeaderAndReady)
	}

	// The cached snapshot survives a role change while within the
	// staleness budget.
	n.mu.Lock()
	n.role = Follower
	n.mu.Unlock()

	advance(10 * time.Millisecond)
	if got := n.GetLeaderState(true); got.Status != consensus.LeaderAndReady {
		t.Fatalf("stale status = %v, want cached %v", got.Status, consensus.LeaderAndReady)
	}

	// A fresh query always recomputes and refreshes the cache.
	if got := n.GetLeaderState(false); got.Status != consensus.NotLeader {
		t.Fatalf("fresh status after step down = %v, want %v", got.Status, consensus.NotLeader)
	}

	// Past the staleness budget the stale query recomputes too.
	n.mu.Lock()
	n.role = Leader
	n.mu.Unlock()
	advance(n.tuning.LeaderStateStaleness + time.Millisecond)
	if got := n.GetLeaderState(true); got.Status != consensus.LeaderAndReady {
		t.Fatalf("recomputed status = %v, want %v", got.Status, consensus.LeaderAndReady)
	}
}

func TestMajorityLeaseExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		name   string
		grants map[string]time.Duration // age of each peer's grant
		want   time.Time
	}{
		{
			name:   "no peer grants pins expiry at epoch plus lease",
			grants: nil,
			want:   time.Time{}.Add(2 * time.Second),
		},
		{
			name:   "quorum expiry follows the second newest grant",
			grants: map[string]time.Duration{"node-2": 500 * time.Millisecond},
			want:   now.Add(-500 * time.Millisecond).Add(2 * time.Second),
		},
		{
			name: "extra grants beyond quorum do not extend expiry",
			grants: map[string]time.Duration{
				"node-2": 300 * time.Millisecond,
				"node-3": 1200 * time.Millisecond,
			},
			want: now.Add(-300 * time.Millisecond).Add(2 * time.Second),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := newLeaseTestNode(t)
			for peer, age := range tc.grants {
				n.leaseGrants[peer] = now.Add(-age)
			}

			n.mu.Lock()
			got := n.majorityLeaseExpiryLocked(now)
			n.mu.Unlock()

			if !got.Equal(tc.want) {
				t.Fatalf("majority lease expiry = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRecordLeaseGrantKeepsNewest(t *testing.T) {
	n := newLeaseTestNode(t)
	now := time.Unix(1700000000, 0)

	n.mu.Lock()
	n.recordLeaseGrantLocked("node-2", now)
	n.recordLeaseGrantLocked("node-2", now.Add(-time.Second)) // late response, ignored
	n.recordLeaseGrantLocked("node-2", now.Add(time.Second))
	got := n.leaseGrants["node-2"]
	n.mu.Unlock()

	if want := now.Add(time.Second); !got.Equal(want) {
		t.Fatalf("lease grant time = %v, want %v", got, want)
	}
}

func TestGrantLease(t *testing.T) {
	n := newLeaseTestNode(t)
	now := time.Unix(1700000000, 0)

	n.mu.Lock()
	defer n.mu.Unlock()

	n.grantLeaseLocked("node-2", 0, now)
	if n.leaseHolder != "" {
		t.Fatalf("zero duration granted a lease to %q", n.leaseHolder)
	}

	n.grantLeaseLocked("node-2", 2*time.Second, now)
	if n.leaseHolder != "node-2" || !n.leaseExpiresAt.Equal(now.Add(2*time.Second)) {
		t.Fatalf("lease = %q until %v, want node-2 until %v",
			n.leaseHolder, n.leaseExpiresAt, now.Add(2*time.Second))
	}

	// A shorter lease from the same holder never shrinks the promise.
	n.grantLeaseLocked("node-2", time.Second, now)
	if !n.leaseExpiresAt.Equal(now.Add(2 * time.Second)) {
		t.Fatalf("lease expiry shrank to %v", n.leaseExpiresAt)
	}

	// A new holder replaces the lease outright.
	n.grantLeaseLocked("node-3", time.Second, now)
	if n.leaseHolder != "node-3" || !n.leaseExpiresAt.Equal(now.Add(time.Second)) {
		t.Fatalf("lease = %q until %v, want node-3 until %v",
			n.leaseHolder, n.leaseExpiresAt, now.Add(time.Second))
	}
}

func TestRemainingGrantedLease(t *testing.T) {
	n := newLeaseTestNode(t)
	now := time.Unix(1700000000, 0)

	n.mu.Lock()
	defer n.mu.Unlock()

	if got := n.remainingGrantedLeaseLocked("node-2", now); got != 0 {
		t.Fatalf("remaining lease with no holder = %v, want 0", got)
	}

	n.leaseHolder = "node-2"
	n.leaseExpiresAt = now.Add(1500 * time.Millisecond)

	// The lease holder itself sees no obstacle.
	if got := n.remainingGrantedLeaseLocked("node-2", now); got != 0 {
		t.Fatalf("remaining lease for the holder = %v, want 0", got)
	}
	if got, want := n.remainingGrantedLeaseLocked("node-3", now), 1500*time.Millisecond; got != want {
		t.Fatalf("remaining lease = %v, want %v", got, want)
	}
	if got := n.remainingGrantedLeaseLocked("node-3", now.Add(2*time.Second)); got != 0 {
		t.Fatalf("remaining lease after expiry = %v, want 0", got)
	}
}

func TestStepDownAbortsPendingRounds(t *testing.T) {
	n := newLeaseTestNode(t)

	n.role = Leader
	n.currentTerm = 3
	n.votedFor = "node-1"
	n.log = []LogEntry{{Term: 3, Type: EntryNoOp}, {Term: 3, Type: EntryWrite}}
	n.noOpIndex = 1
	n.leaseGrants["node-2"] = time.Unix(1700000000, 0)

	var gotStatus error
	var gotApplied []consensus.OpId
	round := n.facade.NewRound(&consensus.ReplicateMsg{OpType: consensus.WriteOp}, func(status error, _ int64, applied []consensus.OpId) {
		gotStatus = status
		gotApplied = applied
	})
	round.BindToTerm(3)
	n.pendingRounds[2] = round
	n.submittedAt[2] = time.Unix(1700000000, 0)

	n.mu.Lock()
	if err := n.stepDownLocked(5, ""); err != nil {
		n.mu.Unlock()
		t.Fatalf("stepDownLocked: %v", err)
	}
	completions := n.drainCompletionsLocked()
	n.mu.Unlock()
	for _, fn := range completions {
		fn()
	}

	if !errors.Is(gotStatus, consensus.ErrRoundAborted) {
		t.Fatalf("round status = %v, want ErrRoundAborted", gotStatus)
	}
	var aborted *consensus.AbortedError
	if !errors.As(gotStatus, &aborted) {
		t.Fatalf("round status = %T, want *consensus.AbortedError", gotStatus)
	}
	if aborted.BoundTerm != 3 || aborted.CurrentTerm != 5 {
		t.Fatalf("aborted terms = %d/%d, want 3/5", aborted.BoundTerm, aborted.CurrentTerm)
	}
	if gotApplied != nil {
		t.Fatalf("aborted round reported applied ids %v", gotApplied)
	}

	if n.role != Follower || n.currentTerm != 5 || n.votedFor != "" {
		t.Fatalf("after step down: role=%v term=%d votedFor=%q", n.role, n.currentTerm, n.votedFor)
	}
	if len(n.pendingRounds) != 0 || len(n.submittedAt) != 0 {
		t.Fatalf("pending rounds not cleared: %d rounds, %d timestamps",
			len(n.pendingRounds), len(n.submittedAt))
	}
	if n.noOpIndex != 0 || len(n.leaseGrants) != 0 || !n.oldLeaderLeaseExpiresAt.IsZero() {
		t.Fatalf("leader lease state not reset: noOpIndex=%d grants=%d oldLease=%v",
			n.noOpIndex, len(n.leaseGrants), n.oldLeaderLeaseExpiresAt)
	}
}

func TestStepDownSameTermAborts(t *testing.T) {
	// Losing leadership without a term change still aborts rounds: the
	// outcome is indeterminate even though CheckBoundTerm would pass.
	n := newLeaseTestNode(t)
	n.role = Leader
	n.currentTerm = 3

	var gotStatus error
	round := n.facade.NewRound(&consensus.ReplicateMsg{OpType: consensus.WriteOp}, func(status error, _ int64, _ []consensus.OpId) {
		gotStatus = status
	})
	round.BindToTerm(3)
	n.log = []LogEntry{{Term: 3, Type: EntryWrite}}
	n.pendingRounds[1] = round

	n.mu.Lock()
	if err := n.stepDownLocked(3, n.votedFor); err != nil {
		n.mu.Unlock()
		t.Fatalf("stepDownLocked: %v", err)
	}
	completions := n.drainCompletionsLocked()
	n.mu.Unlock()
	for _, fn := range completions {
		fn()
	}

	if !errors.Is(gotStatus, consensus.ErrRoundAborted) {
		t.Fatalf("round status = %v, want ErrRoundAborted", gotStatus)
	}
}
