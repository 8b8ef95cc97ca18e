package consensus

import "fmt"

// UnknownTerm marks a term that is not known to the caller, for example the
// term reported by a node that is not a ready leader.
const UnknownTerm int64 = -1

// OpId identifies a position in the replicated log as a (term, index) pair.
// OpIds are totally ordered: first by term, then by index.
type OpId struct {
	Term  int64 `json:"term"`
	Index int64 `json:"index"`
}

// MinimumOpId returns the lowest OpId, used to initialize bootstrap state
// before log recovery has run.
func MinimumOpId() OpId { return OpId{Term: 0, Index: 0} }

// Less reports whether id orders strictly before other.
func (id OpId) Less(other OpId) bool {
	if id.Term != other.Term {
		return id.Term < other.Term
	}
	return id.Index < other.Index
}

func (id OpId) String() string {
	return fmt.Sprintf("%d.%d", id.Term, id.Index)
}

// OpIdType selects which positional marker GetLastOpId returns.
type OpIdType int

// Last-op-id markers tracked by the log layer.
const (
	UnknownOpIdType OpIdType = iota
	// ReceivedOpId is the last op id appended to the local log.
	ReceivedOpId
	// CommittedOpId is the last op id known to be quorum-committed.
	CommittedOpId
)

func (t OpIdType) String() string {
	switch t {
	case UnknownOpIdType:
		return "UNKNOWN_OPID_TYPE"
	case ReceivedOpId:
		return "RECEIVED_OPID"
	case CommittedOpId:
		return "COMMITTED_OPID"
	}
	return fmt.Sprintf("OpIdType(%d)", int(t))
}
