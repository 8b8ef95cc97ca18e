package raft

import (
	"context"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

func (n *Node) notifyApply() {
	select {
	case n.applyNotifyCh <- struct{}{}:
	default:
	}
}

// runApplyLoop delivers committed entries to the apply channel in OpId order.
// No-op entries are delivered too, flagged, so the state machine can track
// the applied position without interpreting them.
func (n *Node) runApplyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.applyNotifyCh:
		}

		for {
			n.mu.Lock()
			if n.lastApplied >= n.commitIndex {
				n.mu.Unlock()
				break
			}

			nextIndex := n.lastApplied + 1
			if nextIndex > n.lastLogIndexLocked() {
				n.mu.Unlock()
				break
			}

			entry := n.entryAtLocked(nextIndex)
			n.lastApplied = nextIndex
			n.metrics.SetApplyLag(n.id, n.commitIndex-n.lastApplied)
			n.mu.Unlock()

			opID := consensus.OpId{Term: entry.Term, Index: nextIndex}
			n.logger.Debug("applying log entry",
				"node_id", n.id,
				"op_id", opID.String(),
				"no_op", entry.Type == EntryNoOp,
			)

			select {
			case <-ctx.Done():
				return
			case n.applyCh <- consensus.ApplyMsg{
				Id:      opID,
				Payload: append([]byte(nil), entry.Payload...),
				NoOp:    entry.Type == EntryNoOp,
			}:
			}
		}
	}
}
