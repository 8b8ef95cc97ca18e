package raft

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

func (n *Node) runLeader(ctx context.Context) {
	n.logger.Debug("became leader, starting replication loop",
		"node_id", n.id,
		"term", n.currentTerm,
	)

	ticker := n.newTicker(n.tuning.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.replicateNotifyCh:
		case <-ticker.C():
		}

		for peer, peerClient := range n.peers {
			req, ok := n.appendEntriesRequestForPeer(peer)
			if !ok {
				return // stepped down from leader
			}
			if req == nil {
				continue
			}

			go n.sendAppendEntries(ctx, peer, peerClient, req)
		}
	}
}

func (n *Node) notifyReplicate() {
	select {
	case n.replicateNotifyCh <- struct{}{}:
	default:
	}
}

func (n *Node) appendEntriesRequestForPeer(peerID string) (*AppendEntriesRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != Leader {
		return nil, false
	}
	if n.replicateInFlight[peerID] {
		n.replicatePending[peerID] = true
		return nil, true
	}
	n.replicateInFlight[peerID] = true

	nextIndex := n.nextIndex[peerID]
	if nextIndex < 1 {
		nextIndex = 1
	}

	prevIndex := nextIndex - 1
	var prevTerm int64
	if prevIndex > 0 {
		prevTerm = n.entryAtLocked(prevIndex).Term
	}

	var entries []LogEntry
	if nextIndex <= n.lastLogIndexLocked() {
		entries = append(entries, n.log[nextIndex-1:]...)
	}

	req := &AppendEntriesRequest{
		Term:          n.currentTerm,
		LeaderID:      n.id,
		PrevOpId:      consensus.OpId{Term: prevTerm, Index: prevIndex},
		Entries:       entries,
		CommittedOpId: n.committedOpIdLocked(),
		LeaseDuration: n.tuning.LeaseDuration,
	}

	return req, true
}

func (n *Node) sendAppendEntries(
	ctx context.Context,
	peerID string,
	peerClient PeerClient,
	req *AppendEntriesRequest,
) {
	ctx, span := n.startSpan(
		ctx,
		"raft.node.sendAppendEntries",
		attribute.String("raft.peer_id", peerID),
		attribute.Int64("raft.term", req.Term),
		attribute.String("raft.prev_op_id", req.PrevOpId.String()),
		attribute.Int("raft.entries_count", len(req.Entries)),
		attribute.Bool("raft.is_heartbeat", len(req.Entries) == 0),
		attribute.String("raft.committed_op_id", req.CommittedOpId.String()),
	)
	defer span.End()

	if len(req.Entries) > 0 {
		n.logger.Debug("sending AppendEntries",
			"node_id", n.id,
			"peer", peerID,
			"term", req.Term,
			"prev_op_id", req.PrevOpId.String(),
			"entries", len(req.Entries),
			"committed_op_id", req.CommittedOpId.String(),
		)
	}

	defer func() {
		notifyReplicate := false
		n.mu.Lock()
		n.replicateInFlight[peerID] = false
		if n.replicatePending[peerID] {
			n.replicatePending[peerID] = false
			notifyReplicate = true
		}
		n.mu.Unlock()

		if notifyReplicate {
			n.notifyReplicate()
		}
	}()

	heartbeat := len(req.Entries) == 0
	sentAt := n.clock()
	resp, err := peerClient.AppendEntries(ctx, req)
	n.metrics.ObserveAppendEntriesRPCDuration(n.id, peerID, heartbeat, n.clock().Sub(sentAt))
	if err != nil || resp == nil {
		if err != nil {
			n.metrics.IncAppendEntriesRPCError(n.id, peerID, heartbeat, appendEntriesRPCErrorKind(err))
			spanRecordError(span, err)
			if len(req.Entries) > 0 {
				n.logger.Debug("AppendEntries RPC failed",
					"node_id", n.id,
					"peer", peerID,
					"error", err,
				)
			}
		} else {
			n.metrics.IncAppendEntriesRPCError(n.id, peerID, heartbeat, "nil_response")
		}
		return
	}
	span.SetAttributes(
		attribute.Int64("raft.response_term", resp.Term),
		attribute.Bool("raft.append.success", resp.Success),
		attribute.Int64("raft.conflict_term", resp.ConflictTerm),
		attribute.Int64("raft.conflict_index", resp.ConflictIndex),
	)

	var notifyApply bool
	var notifyReplicate bool
	_, handleRespSpan := n.startSpan(ctx, "raft.node.handleAppendEntriesResponse")
	defer handleRespSpan.End()

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
		if notifyReplicate {
			n.notifyReplicate()
		}
	}()

	if resp.Term > n.currentTerm {
		n.logger.Debug("stepping down: higher term in AppendEntries response",
			"node_id", n.id,
			"current_term", n.currentTerm,
			"peer_term", resp.Term,
			"peer", peerID,
		)
		if err := n.stepDownLocked(resp.Term, ""); err != nil {
			spanRecordError(handleRespSpan, err)
			n.markDegradedLocked(err)
		}
		return
	}

	if n.role != Leader {
		return
	}

	// Ignore stale responses from an older leader term.
	if req.Term != n.currentTerm {
		return
	}

	if !resp.Success {
		n.metrics.IncAppendEntriesReject(n.id, peerID, heartbeat)
		prevNext := n.nextIndex[peerID]
		switch {
		case resp.ConflictTerm > 0:
			if idx := n.lastIndexOfTermLocked(resp.ConflictTerm); idx > 0 {
				n.nextIndex[peerID] = idx + 1
			} else if resp.ConflictIndex > 0 {
				n.nextIndex[peerID] = resp.ConflictIndex
			} else if n.nextIndex[peerID] > 1 {
				n.nextIndex[peerID]--
			}
		case resp.ConflictIndex > 0:
			n.nextIndex[peerID] = resp.ConflictIndex
		case n.nextIndex[peerID] > 1:
			n.nextIndex[peerID]--
		default:
			n.nextIndex[peerID] = 1
		}
		if n.nextIndex[peerID] < 1 {
			n.nextIndex[peerID] = 1
		}
		// A rejection must backtrack progress; a conflict hint that returns
		// conflictIndex == prevNext would otherwise cause a hot retry loop.
		if n.nextIndex[peerID] >= prevNext && prevNext > 1 {
			n.nextIndex[peerID] = prevNext - 1
		}
		n.logger.Debug("AppendEntries rejected, backing off nextIndex",
			"node_id", n.id,
			"peer", peerID,
			"prev_next_index", prevNext,
			"new_next_index", n.nextIndex[peerID],
			"conflict_term", resp.ConflictTerm,
			"conflict_index", resp.ConflictIndex,
		)
		handleRespSpan.SetAttributes(
			attribute.Bool("raft.append.rejected", true),
			attribute.Int64("raft.next_index", n.nextIndex[peerID]),
		)
		notifyReplicate = true
		return
	}

	// A successful exchange under the current term extends this leader's
	// lease on the responding peer.
	n.recordLeaseGrantLocked(peerID, sentAt)

	matchIndex := req.PrevOpId.Index + int64(len(req.Entries))
	if matchIndex > n.matchIndex[peerID] {
		n.matchIndex[peerID] = matchIndex
	}
	if next := matchIndex + 1; next > n.nextIndex[peerID] {
		n.nextIndex[peerID] = next
	}
	handleRespSpan.SetAttributes(
		attribute.Bool("raft.append.rejected", false),
		attribute.Int64("raft.match_index", n.matchIndex[peerID]),
		attribute.Int64("raft.next_index", n.nextIndex[peerID]),
	)

	if len(req.Entries) > 0 {
		n.logger.Debug("AppendEntries succeeded",
			"node_id", n.id,
			"peer", peerID,
			"match_index", n.matchIndex[peerID],
			"next_index", n.nextIndex[peerID],
		)
	}

	if n.advanceCommitIndexLocked() {
		notifyApply = true
	}
	if len(req.Entries) > 0 {
		notifyReplicate = true
	}
}

func appendEntriesRPCErrorKind(err error) string {
	if err == nil {
		return "unknown"
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.DeadlineExceeded:
			return "deadline_exceeded"
		case codes.Unavailable:
			return "unavailable"
		default:
			return s.Code().String()
		}
	}
	return "transport"
}

// advanceCommitIndexLocked advances the commit index to the highest entry of
// the current term replicated on a majority, resolving the pending rounds it
// covers. Caller must hold n.mu and later drain completions.
func (n *Node) advanceCommitIndexLocked() bool {
	majority := n.quorumSize()
	lastIndex := n.lastLogIndexLocked()

	for candidate := lastIndex; candidate > n.commitIndex; candidate-- {
		// Raft: the leader commits by counting replicas only for entries
		// from its current term.
		if n.entryAtLocked(candidate).Term != n.currentTerm {
			continue
		}

		votes := 1 // leader itself
		for peerID := range n.peers {
			if n.matchIndex[peerID] >= candidate {
				votes++
			}
		}

		if votes >= majority {
			prevCommit := n.commitIndex
			n.commitIndex = candidate
			n.logger.Debug("commit index advanced",
				"node_id", n.id,
				"prev_committed_op_id", consensus.OpId{Term: n.currentTerm, Index: prevCommit}.String(),
				"committed_op_id", n.committedOpIdLocked().String(),
			)
			n.queueRoundCompletionsLocked(prevCommit, candidate)
			n.metrics.SetApplyLag(n.id, n.commitIndex-n.lastApplied)
			if err := n.tracePersistHardStateLocked(context.Background(), "commit_advanced"); err != nil {
				n.markDegradedLocked(err)
				return false
			}
			return true
		}
	}

	return false
}
