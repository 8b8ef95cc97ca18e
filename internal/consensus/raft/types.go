package raft

import (
	"errors"
	"time"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// Role is the current Raft role of a node.
type Role int

// Node roles in the Raft state machine.
const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		return "unknown"
	}
}

// NodeStatus reports operational health of the node runtime.
type NodeStatus string

// Runtime health states exposed by Status.
const (
	NodeStatusHealthy  NodeStatus = "healthy"
	NodeStatusDegraded NodeStatus = "degraded"
)

// EntryType identifies the kind of Raft log entry payload.
type EntryType uint8

// Supported Raft log entry types.
const (
	// EntryNoOp is the marker a new leader replicates at the start of its
	// term. Committing it proves the leader's view of committed state is
	// current.
	EntryNoOp EntryType = iota
	// EntryWrite carries a state machine command.
	EntryWrite
)

// ClusterConfig holds the set of member IDs for quorum calculation.
type ClusterConfig struct {
	Members []string `json:"members"` // all member IDs including self
}

// LogEntry is a single entry in the replicated log. Its position in the log
// is its index; together with Term it forms the entry's OpId.
type LogEntry struct {
	Term    int64     `json:"term"`
	Type    EntryType `json:"type"`
	Payload []byte    `json:"payload"`
}

// AppendEntriesRequest is sent by the leader for replication and heartbeats.
/// A successful response doubles as a lease grant: the follower promises not
// to vote for or serve another leader for LeaseDuration.
type AppendEntriesRequest struct {
	Term          int64
	LeaderID      string
	PrevOpId      consensus.OpId
	Entries       []LogEntry
	CommittedOpId consensus.OpId
	LeaseDuration time.Duration
}

// AppendEntriesResponse is returned by followers for AppendEntries.
type AppendEntriesResponse struct {
	Term          int64
	Success       bool
	ConflictTerm  int64
	ConflictIndex int64
}

// HardState stores persistent Raft metadata required across restarts.
type HardState struct {
	CurrentTerm    int64         `json:"current_term"`
	VotedFor       string        `json:"voted_for"`
	CommittedIndex int64         `json:"committed_index"`
	Config         ClusterConfig `json:"config"`
}

// RequestVoteRequest is sent by candidates during leader election.
type RequestVoteRequest struct {
	Term        int64
	CandidateID string
	LastOpId    consensus.OpId
}

// RequestVoteResponse is returned by peers in response to RequestVote.
// RemainingLeaderLease reports how much of the voter's currently granted
// leader lease is still unexpired; a winning candidate must wait out the
// maximum reported value before serving requests.
type RequestVoteResponse struct {
	Term                 int64
	VoteGranted          bool
	RemainingLeaderLease time.Duration
}

// ErrNilStorage is returned when NewNode is called with a nil Storage.
var ErrNilStorage = errors.New("raft: nil storage")

// ErrNilLogger is returned when NewNode is called with a nil logger.
var ErrNilLogger = errors.New("raft: nil logger")

// ErrNodeDegraded is returned when the node stopped progressing after a fatal background error.
var ErrNodeDegraded = errors.New("raft: node degraded")

// Logger is the structured logging interface used by the node.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func entryTypeFor(op consensus.OpType) EntryType {
	if op == consensus.NoOpOp {
		return EntryNoOp
	}
	return EntryWrite
}
