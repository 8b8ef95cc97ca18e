package raft

import (
	"sort"
	"time"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// AdminPeerState is a point-in-time snapshot of leader-side replication and
// lease progress for a peer.
type AdminPeerState struct {
	NodeID        string
	MatchIndex    int64
	NextIndex     int64
	LastLeaseSent time.Time
}

// AdminState is a point-in-time snapshot of engine runtime state for
// admin/diagnostic APIs.
type AdminState struct {
	NodeID         string
	LeaderID       string
	Role           Role
	Status         NodeStatus
	LeaderStatus   consensus.LeaderStatus
	Term           int64
	LastOpId       consensus.OpId
	CommittedOpId  consensus.OpId
	LastApplied    int64
	NoOpIndex      int64
	LeaseHolder    string
	LeaseExpiresAt time.Time
	OldLeaderLease time.Duration
	PendingRounds  int
	ClusterMembers []string
	QuorumSize     int
	Peers          []AdminPeerState
}

// AdminState returns a read-only snapshot of engine state for
// admin/diagnostic APIs.
func (n *Node) AdminState() AdminState {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock()
	leaderState := n.leaderStateLocked(now)

	out := AdminState{
		NodeID:        n.id,
		Role:          n.role,
		LeaderStatus:  leaderState.Status,
		Term:          n.currentTerm,
		LastOpId:      n.lastOpIdLocked(),
		CommittedOpId: n.committedOpIdLocked(),
		LastApplied:   n.lastApplied,
		NoOpIndex:     n.noOpIndex,
		LeaseHolder:   n.leaseHolder,
		PendingRounds: len(n.pendingRounds),
		QuorumSize:    n.quorumSize(),
	}
	if n.degraded {
		out.Status = NodeStatusDegraded
	} else {
		out.Status = NodeStatusHealthy
	}
	if n.role == Leader {
		out.LeaderID = n.id
		if remaining := n.oldLeaderLeaseExpiresAt.Sub(now); remaining > 0 {
			out.OldLeaderLease = remaining
		}
	} else if n.leaseExpiresAt.After(now) {
		out.LeaderID = n.leaseHolder
		out.LeaseExpiresAt = n.leaseExpiresAt
	}
	if len(n.config.Members) > 0 {
		out.ClusterMembers = append([]string(nil), n.config.Members...)
		sort.Strings(out.ClusterMembers)
	}

	peerIDs := make([]string, 0, len(n.peers))
	for peerID := range n.peers {
		peerIDs = append(peerIDs, peerID)
	}
	sort.Strings(peerIDs)

	out.Peers = make([]AdminPeerState, 0, len(peerIDs))
	for _, peerID := range peerIDs {
		out.Peers = append(out.Peers, AdminPeerState{
			NodeID:        peerID,
			MatchIndex:    n.matchIndex[peerID],
			NextIndex:     n.nextIndex[peerID],
			LastLeaseSent: n.leaseGrants[peerID],
		})
	}

	return out
}
