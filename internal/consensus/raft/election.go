package raft

import (
	"context"
	"math/rand"
	"time"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

func (n *Node) runFollower(ctx context.Context) {
	timer := n.newTimer(n.electionTimeoutFn())
	defer timer.Stop()

	resetCh := n.electionTimeoutResetSignal()

	for {
		select {
		case <-ctx.Done():
			return
		case <-resetCh:
			if !timer.Stop() {
				select {
				case <-timer.C():
				default:
				}
			}
			timer.Reset(n.electionTimeoutFn())
		case <-timer.C():
			n.mu.Lock()
			n.logger.Debug("election timeout fired, converting to candidate",
				"node_id", n.id,
				"term", n.currentTerm,
			)
			n.role = Candidate
			n.invalidateLeaderStateCacheLocked()
			n.mu.Unlock()
			return
		}
	}
}

func (n *Node) runCandidate(ctx context.Context) {
	n.mu.Lock()
	prevTerm := n.currentTerm
	prevVotedFor := n.votedFor
	n.currentTerm++
	term := n.currentTerm
	n.votedFor = n.id
	if err := n.persistHardStateLocked(); err != nil {
		n.markDegradedLocked(err)
		n.currentTerm = prevTerm
		n.votedFor = prevVotedFor
		n.role = Follower
		n.mu.Unlock()
		return
	}
	lastOpId := n.lastOpIdLocked()
	n.mu.Unlock()

	n.metrics.IncElectionStarted(n.id)
	n.logger.Debug("starting election",
		"node_id", n.id,
		"term", term,
		"last_op_id", lastOpId.String(),
		"peers", len(n.peers),
	)

	votes := 1
	majority := n.quorumSize()

	// The widest lease reported by any voter bounds when this node, if it
	// wins, may start serving: the old leader could keep serving reads until
	// that lease runs out.
	var oldLeaderLease time.Duration

	// A single-member cluster wins on its own vote; there is no response to
	// wait for.
	if votes >= majority {
		n.mu.Lock()
		if n.role != Candidate || n.currentTerm != term {
			n.mu.Unlock()
			return
		}
		n.becomeLeaderLocked(term, oldLeaderLease)
		n.mu.Unlock()

		n.metrics.IncElectionWon(n.id)
		n.submitTermStartNoOp(term)
		return
	}

	timer := n.newTimer(n.electionTimeoutFn())
	defer timer.Stop()

	voteCh := make(chan *RequestVoteResponse, len(n.peers))

	for peerID, peerClient := range n.peers {
		go func(id string, pc PeerClient) {
			n.logger.Debug("requesting vote",
				"node_id", n.id,
				"term", term,
				"peer", id,
			)

			req := &RequestVoteRequest{
				Term:        term,
				CandidateID: n.id,
				LastOpId:    lastOpId,
			}

			resp, err := pc.RequestVote(ctx, req)
			if err != nil {
				n.logger.Debug("vote request failed",
					"node_id", n.id,
					"term", term,
					"peer", id,
					"error", err,
				)
				return
			}

			select {
			case voteCh <- resp:
			case <-ctx.Done():
			}
		}(peerID, peerClient)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			n.metrics.IncElectionLost(n.id)
			n.logger.Debug("election timed out, restarting",
				"node_id", n.id,
				"term", term,
			)
			return
		case resp := <-voteCh:

			n.mu.Lock()
			if resp.Term > n.currentTerm {
				n.logger.Debug("stepping down: higher term seen during election",
					"node_id", n.id,
					"current_term", n.currentTerm,
					"peer_term", resp.Term,
				)
				if err := n.stepDownLocked(resp.Term, ""); err != nil {
					n.markDegradedLocked(err)
				}
				n.mu.Unlock()
				n.metrics.IncElectionLost(n.id)
				return
			}
			if n.role != Candidate {
				n.mu.Unlock()
				return
			}

			if resp.VoteGranted {
				votes++
				if resp.RemainingLeaderLease > oldLeaderLease {
					oldLeaderLease = resp.RemainingLeaderLease
				}
				n.logger.Debug("vote granted",
					"node_id", n.id,
					"term", term,
					"votes", votes,
					"majority", majority,
					"remaining_leader_lease", resp.RemainingLeaderLease,
				)
			} else {
				n.logger.Debug("vote denied",
					"node_id", n.id,
					"term", term,
				)
			}

			if votes >= majority {
				n.becomeLeaderLocked(term, oldLeaderLease)
				n.mu.Unlock()

				n.metrics.IncElectionWon(n.id)
				n.submitTermStartNoOp(term)
				return
			}

			n.mu.Unlock()
		}
	}
}

// becomeLeaderLocked transitions to leader for term. It resets replication
// progress and lease tracking, and arms the old-leader lease wait reported by
// the voters. Caller must hold n.mu.
func (n *Node) becomeLeaderLocked(term int64, oldLeaderLease time.Duration) {
	n.logger.Debug("won election, becoming leader",
		"node_id", n.id,
		"term", term,
		"old_leader_lease", oldLeaderLease,
	)

	n.role = Leader
	n.noOpIndex = 0
	n.leaseGrants = make(map[string]time.Time)
	if oldLeaderLease > 0 {
		n.oldLeaderLeaseExpiresAt = n.clock().Add(oldLeaderLease)
	} else {
		n.oldLeaderLeaseExpiresAt = time.Time{}
	}

	n.nextIndex[n.id] = n.lastLogIndexLocked() + 1
	n.matchIndex[n.id] = n.lastLogIndexLocked()
	for peerID := range n.peers {
		n.nextIndex[peerID] = n.lastLogIndexLocked() + 1
		n.matchIndex[peerID] = 0
	}

	n.invalidateLeaderStateCacheLocked()
	n.metrics.SetIsLeader(n.id, true)
}

// submitTermStartNoOp appends the no-op entry that opens the new term. Until
// it commits, the leader reports LeaderButNoOpNotCommitted and cannot serve
// consistent reads. Entries from older terms commit transitively with it.
func (n *Node) submitTermStartNoOp(term int64) {
	round := n.facade.NewRound(&consensus.ReplicateMsg{OpType: consensus.NoOpOp}, nil)

	opID, err := n.Submit(round)
	if err != nil {
		n.logger.Warn("failed to submit term-start no-op",
			"node_id", n.id,
			"term", term,
			"error", err,
		)
		return
	}

	n.mu.Lock()
	if n.role == Leader && n.currentTerm == term {
		n.noOpIndex = opID.Index
		n.invalidateLeaderStateCacheLocked()
	}
	n.mu.Unlock()

	n.logger.Debug("term-start no-op submitted",
		"node_id", n.id,
		"term", term,
		"op_id", opID.String(),
	)
}

func randomElectionTimeout() time.Duration {
	//nolint:gosec // Raft election timeout requires pseudo-random jitter, not cryptographic randomness.
	return time.Duration(150+rand.Intn(150)) * time.Millisecond
}
