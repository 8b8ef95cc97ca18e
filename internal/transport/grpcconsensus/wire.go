package grpcconsensus

import (
	"time"

	"github.com/ubante/yugabyte-db/internal/consensus"
	"github.com/ubante/yugabyte-db/internal/consensus/raft"
)

// Wire types carried over the JSON codec. They mirror the engine's RPC
// structs with explicit field names so the wire format is stable against
// engine-side renames. Durations travel as nanoseconds.

type wireOpId struct {
	Term  int64 `json:"term"`
	Index int64 `json:"index"`
}

type wireLogEntry struct {
	Term    int64  `json:"term"`
	Type    uint8  `json:"type"`
	Payload []byte `json:"payload,omitempty"`
}

type wireRequestVoteRequest struct {
	Term        int64    `json:"term"`
	CandidateID string   `json:"candidate_id"`
	LastOpId    wireOpId `json:"last_op_id"`
}

type wireRequestVoteResponse struct {
	Term                 int64 `json:"term"`
	VoteGranted          bool  `json:"vote_granted"`
	RemainingLeaderLease int64 `json:"remaining_leader_lease_ns"`
}

type wireAppendEntriesRequest struct {
	Term          int64          `json:"term"`
	LeaderID      string         `json:"leader_id"`
	PrevOpId      wireOpId       `json:"prev_op_id"`
	Entries       []wireLogEntry `json:"entries,omitempty"`
	CommittedOpId wireOpId       `json:"committed_op_id"`
	LeaseDuration int64          `json:"lease_duration_ns"`
}

type wireAppendEntriesResponse struct {
	Term          int64 `json:"term"`
	Success       bool  `json:"success"`
	ConflictTerm  int64 `json:"conflict_term,omitempty"`
	ConflictIndex int64 `json:"conflict_index,omitempty"`
}

func opIdFromWire(w wireOpId) consensus.OpId {
	return consensus.OpId{Term: w.Term, Index: w.Index}
}

func opIdToWire(id consensus.OpId) wireOpId {
	return wireOpId{Term: id.Term, Index: id.Index}
}

// --- RequestVote ---

func requestVoteRequestFromWire(w *wireRequestVoteRequest) *raft.RequestVoteRequest {
	return &raft.RequestVoteRequest{
		Term:        w.Term,
		CandidateID: w.CandidateID,
		LastOpId:    opIdFromWire(w.LastOpId),
	}
}

func requestVoteRequestToWire(r *raft.RequestVoteRequest) *wireRequestVoteRequest {
	return &wireRequestVoteRequest{
		Term:        r.Term,
		CandidateID: r.CandidateID,
		LastOpId:    opIdToWire(r.LastOpId),
	}
}

func requestVoteResponseFromWire(w *wireRequestVoteResponse) *raft.RequestVoteResponse {
	return &raft.RequestVoteResponse{
		Term:                 w.Term,
		VoteGranted:          w.VoteGranted,
		RemainingLeaderLease: time.Duration(w.RemainingLeaderLease),
	}
}

func requestVoteResponseToWire(r *raft.RequestVoteResponse) *wireRequestVoteResponse {
	return &wireRequestVoteResponse{
		Term:                 r.Term,
		VoteGranted:          r.VoteGranted,
		RemainingLeaderLease: int64(r.RemainingLeaderLease),
	}
}

// --- AppendEntries ---

func appendEntriesRequestFromWire(w *wireAppendEntriesRequest) *raft.AppendEntriesRequest {
	entries := make([]raft.LogEntry, len(w.Entries))
	for i, e := range w.Entries {
		entries[i] = raft.LogEntry{
			Term:    e.Term,
			Type:    raft.EntryType(e.Type),
			Payload: append([]byte(nil), e.Payload...),
		}
	}
	return &raft.AppendEntriesRequest{
		Term:          w.Term,
		LeaderID:      w.LeaderID,
		PrevOpId:      opIdFromWire(w.PrevOpId),
		Entries:       entries,
		CommittedOpId: opIdFromWire(w.CommittedOpId),
		LeaseDuration: time.Duration(w.LeaseDuration),
	}
}

func appendEntriesRequestToWire(r *raft.AppendEntriesRequest) *wireAppendEntriesRequest {
	entries := make([]wireLogEntry, len(r.Entries))
	for i, e := range r.Entries {
		entries[i] = wireLogEntry{
			Term:    e.Term,
			Type:    uint8(e.Type),
			Payload: e.Payload,
		}
	}
	return &wireAppendEntriesRequest{
		Term:          r.Term,
		LeaderID:      r.LeaderID,
		PrevOpId:      opIdToWire(r.PrevOpId),
		Entries:       entries,
		CommittedOpId: opIdToWire(r.CommittedOpId),
		LeaseDuration: int64(r.LeaseDuration),
	}
}

func appendEntriesResponseFromWire(w *wireAppendEntriesResponse) *raft.AppendEntriesResponse {
	return &raft.AppendEntriesResponse{
		Term:          w.Term,
		Success:       w.Success,
		ConflictTerm:  w.ConflictTerm,
		ConflictIndex: w.ConflictIndex,
	}
}

func appendEntriesResponseToWire(r *raft.AppendEntriesResponse) *wireAppendEntriesResponse {
	return &wireAppendEntriesResponse{
		Term:          r.Term,
		Success:       r.Success,
		ConflictTerm:  r.ConflictTerm,
		ConflictIndex: r.ConflictIndex,
	}
}
