package raft

import (
	"context"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// HandleRequestVote handles a RequestVote RPC from a candidate.
//
// A granted vote carries the remaining leader lease this node has promised to
// its current leader. The candidate must wait that long after winning before
// it may serve consistent reads.
func (n *Node) HandleRequestVote(
	_ context.Context,
	req *RequestVoteRequest,
) (*RequestVoteResponse, error) {
	n.mu.Lock()
	defer func() {
		completions := n.drainCompletionsLocked()
		n.mu.Unlock()
		for _, complete := range completions {
			complete()
		}
	}()

	if n.degraded {
		return nil, ErrNodeDegraded
	}

	n.logger.Debug("received RequestVote",
		"node_id", n.id,
		"from", req.CandidateID,
		"candidate_term", req.Term,
		"current_term", n.currentTerm,
		"candidate_last_op_id", req.LastOpId.String(),
	)

	resp := &RequestVoteResponse{
		Term:        n.currentTerm,
		VoteGranted: false,
	}

	if req.Term < n.currentTerm {
		n.logger.Debug("rejected vote: stale term",
			"node_id", n.id,
			"from", req.CandidateID,
			"candidate_term", req.Term,
			"current_term", n.currentTerm,
		)
		return resp, nil
	}

	if req.Term > n.currentTerm {
		if err := n.stepDownLocked(req.Term, ""); err != nil {
			n.markDegradedLocked(err)
			return nil, err
		}
	}

	resp.Term = n.currentTerm

	lastOpId := n.lastOpIdLocked()
	upToDate := !req.LastOpId.Less(lastOpId)

	if (n.votedFor == "" || n.votedFor == req.CandidateID) && upToDate {
		prevVotedFor := n.votedFor
		n.votedFor = req.CandidateID
		if err := n.persistHardStateLocked(); err != nil {
			n.votedFor = prevVotedFor
			n.markDegradedLocked(err)
			return nil, err
		}
		resp.VoteGranted = true
		resp.RemainingLeaderLease = n.remainingGrantedLeaseLocked(req.CandidateID, n.clock())
		n.resetElectionTimeout()
		n.logger.Debug("granted vote",
			"node_id", n.id,
			"to", req.CandidateID,
			"term", n.currentTerm,
			"remaining_leader_lease", resp.RemainingLeaderLease,
		)
	} else {
		n.logger.Debug("denied vote",
			"node_id", n.id,
			"to", req.CandidateID,
			"term", n.currentTerm,
			"voted_for", n.votedFor,
			"up_to_date", upToDate,
		)
	}

	return resp, nil
}

// HandleAppendEntries handles an AppendEntries RPC from the leader.
//
// A successful call renews the leader's lease on this follower for
// req.LeaseDuration from receipt.
func (n *Node) HandleAppendEntries(
	_ context.Context,
	req *AppendEntriesRequest,
) (*AppendEntriesResponse, error) {
	if err := n.facade.ExecuteHook(consensus.HookPreUpdate); err != nil {
		return nil, err
	}

	resp, err := n.handleAppendEntries(req)
	if err != nil {
		return nil, err
	}

	if err := n.facade.ExecuteHook(consensus.HookPostUpdate); err != nil {
		return nil, err
	}
	return resp, nil
}

func (n *Node) handleAppendEntries(req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	var notifyApply bool

	n.mu.Lock()
	defer func() {
		completions := n.drainCompletionsLocked()
		n.mu.Unlock()
		for _, complete := range completions {
			complete()
		}
		if notifyApply {
			n.notifyApply()
		}
	}()

	if n.degraded {
		return nil, ErrNodeDegraded
	}

	resp := &AppendEntriesResponse{
		Term:    n.currentTerm,
		Success: false,
	}

	if req.Term < n.currentTerm {
		return resp, nil
	}

	// A valid leader exists for req.Term. Step down if we were leading or
	// campaigning, in the same term or an older one.
	if req.Term > n.currentTerm {
		if err := n.stepDownLocked(req.Term, ""); err != nil {
			n.markDegradedLocked(err)
			return nil, err
		}
	} else if n.role != Follower {
		if err := n.stepDownLocked(req.Term, n.votedFor); err != nil {
			n.markDegradedLocked(err)
			return nil, err
		}
	}

	resp.Term = n.currentTerm
	n.resetElectionTimeout()

	// PrevOpId consistency check.
	if req.PrevOpId.Index > n.lastLogIndexLocked() {
		n.logger.Debug("AppendEntries rejected: missing prev entry",
			"node_id", n.id,
			"leader", req.LeaderID,
			"prev_op_id", req.PrevOpId.String(),
			"last_op_id", n.lastOpIdLocked().String(),
		)
		resp.ConflictIndex = n.lastLogIndexLocked() + 1
		return resp, nil
	}

	if req.PrevOpId.Index > 0 {
		prevTerm := n.entryAtLocked(req.PrevOpId.Index).Term
		if prevTerm != req.PrevOpId.Term {
			n.logger.Debug("AppendEntries rejected: term conflict at prev entry",
				"node_id", n.id,
				"leader", req.LeaderID,
				"prev_op_id", req.PrevOpId.String(),
				"our_term", prevTerm,
			)
			resp.ConflictTerm = prevTerm
			resp.ConflictIndex = n.firstIndexOfTermLocked(prevTerm)
			return resp, nil
		}
	}

	for i, entry := range req.Entries {
		index := req.PrevOpId.Index + int64(i) + 1

		if index > n.lastLogIndexLocked() {
			appendEntries := cloneLogEntries(req.Entries[i:])
			if err := n.tracePersistAppendLogLocked(context.Background(), appendEntries); err != nil {
				n.markDegradedLocked(err)
				return nil, err
			}
			n.log = append(n.log, appendEntries...)
			break
		}

		if n.entryAtLocked(index).Term == entry.Term {
			continue
		}

		n.logger.Debug("truncating conflicting log entries",
			"node_id", n.id,
			"from_op_id", consensus.OpId{Term: n.entryAtLocked(index).Term, Index: index}.String(),
		)
		if err := n.tracePersistTruncateLogLocked(context.Background(), index); err != nil {
			n.markDegradedLocked(err)
			return nil, err
		}
		n.log = n.log[:index-1]
		appendEntries := cloneLogEntries(req.Entries[i:])
		if err := n.tracePersistAppendLogLocked(context.Background(), appendEntries); err != nil {
			n.markDegradedLocked(err)
			return nil, err
		}
		n.log = append(n.log, appendEntries...)
		break
	}

	if len(req.Entries) > 0 {
		n.logger.Debug("appended entries from leader",
			"node_id", n.id,
			"leader", req.LeaderID,
			"count", len(req.Entries),
			"last_op_id", n.lastOpIdLocked().String(),
		)
	}

	if req.CommittedOpId.Index > n.commitIndex {
		prevCommit := n.commitIndex
		lastIndex := n.lastLogIndexLocked()
		if req.CommittedOpId.Index < lastIndex {
			n.commitIndex = req.CommittedOpId.Index
		} else {
			n.commitIndex = lastIndex
		}
		n.logger.Debug("commit index updated by leader",
			"node_id", n.id,
			"prev_commit", prevCommit,
			"committed_op_id", n.committedOpIdLocked().String(),
			"leader_committed_op_id", req.CommittedOpId.String(),
		)
		if err := n.tracePersistHardStateLocked(context.Background(), "follower_commit"); err != nil {
			n.markDegradedLocked(err)
			return nil, err
		}
		n.metrics.SetApplyLag(n.id, n.commitIndex-n.lastApplied)
		notifyApply = true
	}

	n.grantLeaseLocked(req.LeaderID, req.LeaseDuration, n.clock())

	resp.Success = true
	return resp, nil
}

func (n *Node) resetElectionTimeout() {
	select {
	case n.electionTimeoutResetCh <- struct{}{}:
	default:
	}
}
