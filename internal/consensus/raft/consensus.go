package raft

import (
	"context"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// LastReceivedOpId returns the OpId of the last entry appended to the local
// log. Implements consensus.Engine.
func (n *Node) LastReceivedOpId() (consensus.OpId, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.degraded {
		return consensus.OpId{}, ErrNodeDegraded
	}
	return n.lastOpIdLocked(), nil
}

// LastCommittedOpId returns the OpId of the last quorum-committed entry.
// Implements consensus.Engine.
func (n *Node) LastCommittedOpId() (consensus.OpId, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.degraded {
		return consensus.OpId{}, ErrNodeDegraded
	}
	return n.committedOpIdLocked(), nil
}

// Submit appends the round's payload to the leader log under the current
// term, binds the round to it, and hands the entry to replication. The round
// completes through NotifyReplicationFinished once its outcome is known.
func (n *Node) Submit(round *consensus.Round) (consensus.OpId, error) {
	if err := n.facade.ExecuteHook(consensus.HookPreReplicate); err != nil {
		return consensus.OpId{}, err
	}

	id, err := n.appendRound(round)
	if err != nil {
		return consensus.OpId{}, err
	}

	n.notifyReplicate()

	if err := n.facade.ExecuteHook(consensus.HookPostReplicate); err != nil {
		return consensus.OpId{}, err
	}
	return id, nil
}

func (n *Node) appendRound(round *consensus.Round) (consensus.OpId, error) {
	n.mu.Lock()
	defer func() {
		completions := n.drainCompletionsLocked()
		n.mu.Unlock()
		for _, complete := range completions {
			complete()
		}
	}()

	if n.degraded {
		return consensus.OpId{}, ErrNodeDegraded
	}
	if n.role != Leader {
		n.logger.Debug("round rejected: not leader",
			"node_id", n.id,
			"role", n.role,
		)
		return consensus.OpId{}, consensus.ErrNotLeader
	}

	msg := round.ReplicateMsg()
	entry := LogEntry{
		Term:    n.currentTerm,
		Type:    entryTypeFor(msg.OpType),
		Payload: append([]byte(nil), msg.Payload...),
	}
	prevLogLen := len(n.log)
	n.log = append(n.log, entry)
	if err := n.tracePersistAppendLogLocked(context.Background(), []LogEntry{entry}); err != nil {
		n.log = n.log[:prevLogLen]
		n.markDegradedLocked(err)
		return consensus.OpId{}, err
	}

	index := n.lastLogIndexLocked()
	id := consensus.OpId{Term: n.currentTerm, Index: index}
	msg.Id = id
	round.BindToTerm(n.currentTerm)
	n.pendingRounds[index] = round
	n.submittedAt[index] = n.clock()

	n.matchIndex[n.id] = index
	n.nextIndex[n.id] = index + 1

	n.logger.Debug("round submitted to replication",
		"node_id", n.id,
		"op_id", id.String(),
		"bound_term", n.currentTerm,
	)

	if n.advanceCommitIndexLocked() {
		n.notifyApply()
	}

	return id, nil
}

// queueRoundCompletionsLocked resolves the rounds whose entries were newly
// committed. The bound-term check runs here, under the same term snapshot
// the commit decision used; its verdict (nil or Aborted) is what the
// callback receives. Caller must hold n.mu; completions run after unlock.
func (n *Node) queueRoundCompletionsLocked(prevCommit, newCommit int64) {
	if newCommit <= prevCommit {
		return
	}

	applied := make([]consensus.OpId, 0, newCommit-prevCommit)
	for index := prevCommit + 1; index <= newCommit; index++ {
		applied = append(applied, consensus.OpId{Term: n.entryAtLocked(index).Term, Index: index})
	}

	term := n.currentTerm
	now := n.clock()
	for index := prevCommit + 1; index <= newCommit; index++ {
		round, ok := n.pendingRounds[index]
		if !ok {
			continue
		}
		delete(n.pendingRounds, index)

		if startedAt, ok := n.submittedAt[index]; ok {
			delete(n.submittedAt, index)
			if !now.Before(startedAt) {
				n.metrics.ObserveSubmitToCommitDuration(n.id, now.Sub(startedAt))
			}
		}

		status := round.CheckBoundTerm(term)
		if status != nil {
			n.metrics.IncRoundAborted(n.id)
		} else {
			n.metrics.IncRoundCompleted(n.id)
		}

		r, s := round, status
		n.completions = append(n.completions, func() {
			r.NotifyReplicationFinished(s, term, applied)
		})
	}
}
