package raft

import (
	"sort"
	"time"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// GetLeaderState computes the readiness snapshot the facade exposes.
// allowStale serves a cached snapshot no older than the configured staleness
// budget, skipping the fresh lease and quorum evaluation.
// Implements consensus.Engine.
func (n *Node) GetLeaderState(allowStale bool) consensus.LeaderState {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock()
	if allowStale && !n.cachedLeaderStateAt.IsZero() &&
		now.Sub(n.cachedLeaderStateAt) <= n.tuning.LeaderStateStaleness {
		return n.cachedLeaderState
	}

	state := n.leaderStateLocked(now)
	n.cachedLeaderState = state
	n.cachedLeaderStateAt = now
	return state
}

// leaderStateLocked evaluates the readiness protocol under n.mu, reporting
// the least-ready applicable status:
//
//  1. not leader at all;
//  2. the term-start no-op is not committed, so the leader's view of
//     committed state may be stale;
//  3. a predecessor's lease might still be active;
//  4. this leader's own lease lacks majority acknowledgement;
//  5. ready, with a valid term.
func (n *Node) leaderStateLocked(now time.Time) consensus.LeaderState {
	if n.degraded || n.role != Leader {
		return consensus.MakeNotReadyLeader(consensus.NotLeader)
	}
	if n.noOpIndex == 0 || n.commitIndex < n.noOpIndex {
		return consensus.MakeNotReadyLeader(consensus.LeaderButNoOpNotCommitted)
	}
	if remaining := n.oldLeaderLeaseExpiresAt.Sub(now); remaining > 0 {
		state := consensus.MakeNotReadyLeader(consensus.LeaderButOldLeaderMayHaveLease)
		state.RemainingOldLeaderLease = remaining
		return state
	}
	if n.majorityLeaseExpiryLocked(now).Before(now) {
		return consensus.MakeNotReadyLeader(consensus.LeaderButNoMajorityReplicatedLease)
	}
	return consensus.LeaderState{Status: consensus.LeaderAndReady, Term: n.currentTerm}
}

// majorityLeaseExpiryLocked returns the instant until which this leader's
// lease is acknowledged by a majority: the k-th newest lease grant time plus
// the lease duration, where k is the quorum size. The leader itself counts
// as a grant at now. Caller must hold n.mu.
func (n *Node) majorityLeaseExpiryLocked(now time.Time) time.Time {
	grants := make([]time.Time, 0, len(n.config.Members))
	for _, member := range n.config.Members {
		if member == n.id {
			grants = append(grants, now)
			continue
		}
		grants = append(grants, n.leaseGrants[member]) // zero when never acknowledged
	}

	sort.Slice(grants, func(i, j int) bool { return grants[i].After(grants[j]) })

	k := n.quorumSize()
	if k > len(grants) {
		k = len(grants)
	}
	return grants[k-1].Add(n.tuning.LeaseDuration)
}

// recordLeaseGrantLocked notes a peer's lease acknowledgement. sentAt is the
// time the request was sent, which bounds the grant conservatively.
// Caller must hold n.mu.
func (n *Node) recordLeaseGrantLocked(peerID string, sentAt time.Time) {
	if prev, ok := n.leaseGrants[peerID]; ok && prev.After(sentAt) {
		return
	}
	n.leaseGrants[peerID] = sentAt
}

// grantLeaseLocked records, on the follower side, the lease promised to the
// current leader. While it is unexpired this node reports it to candidates
// of other leaders. Caller must hold n.mu.
func (n *Node) grantLeaseLocked(leaderID string, d time.Duration, now time.Time) {
	if d <= 0 {
		return
	}
	expiry := now.Add(d)
	if n.leaseHolder == leaderID && expiry.Before(n.leaseExpiresAt) {
		return
	}
	n.leaseHolder = leaderID
	n.leaseExpiresAt = expiry
	n.metrics.IncLeaseGranted(n.id, leaderID)
}

// remainingGrantedLeaseLocked returns how much of the lease granted to a
// leader other than candidateID is still unexpired. Caller must hold n.mu.
func (n *Node) remainingGrantedLeaseLocked(candidateID string, now time.Time) time.Duration {
	if n.leaseHolder == "" || n.leaseHolder == candidateID {
		return 0
	}
	if remaining := n.leaseExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

func (n *Node) invalidateLeaderStateCacheLocked() {
	n.cachedLeaderStateAt = time.Time{}
}

// stepDownLocked moves the node to follower at newTerm, persisting the term
// change and aborting all pending rounds. Callers must drain and run the
// queued completions after releasing n.mu.
func (n *Node) stepDownLocked(newTerm int64, votedFor string) error {
	prevTerm := n.currentTerm
	prevVoted := n.votedFor
	prevRole := n.role

	n.currentTerm = newTerm
	n.votedFor = votedFor
	n.role = Follower
	if err := n.persistHardStateLocked(); err != nil {
		n.currentTerm = prevTerm
		n.votedFor = prevVoted
		n.role = prevRole
		return err
	}

	n.abortPendingRoundsLocked()
	n.noOpIndex = 0
	n.leaseGrants = make(map[string]time.Time)
	n.oldLeaderLeaseExpiresAt = time.Time{}
	n.invalidateLeaderStateCacheLocked()
	if prevRole == Leader {
		n.metrics.SetIsLeader(n.id, false)
	}
	return nil
}

// abortPendingRoundsLocked fails every pending round against the current
// term. Completions are queued; callers drain them after unlocking.
// Caller must hold n.mu.
func (n *Node) abortPendingRoundsLocked() {
	term := n.currentTerm
	for index, round := range n.pendingRounds {
		delete(n.pendingRounds, index)
		delete(n.submittedAt, index)

		status := round.CheckBoundTerm(term)
		if status == nil {
			// Leadership was lost without a term change; the round's outcome
			// is still indeterminate.
			status = &consensus.AbortedError{BoundTerm: round.BoundTerm(), CurrentTerm: term}
		}

		r, s := round, status
		n.completions = append(n.completions, func() {
			r.NotifyReplicationFinished(s, term, nil)
		})
		n.metrics.IncRoundAborted(n.id)
	}
}

// drainCompletionsLocked returns the queued round completions. The caller
// must run them after releasing n.mu.
func (n *Node) drainCompletionsLocked() []func() {
	out := n.completions
	n.completions = nil
	return out
}
