package consensus

// OpType identifies the kind of operation a ReplicateMsg carries.
type OpType uint8

// Operation kinds carried through replication.
const (
	// NoOpOp is the marker a new leader replicates at the start of its term.
	NoOpOp OpType = iota
	// WriteOp carries a state machine command.
	WriteOp
)

// ReplicateMsg is the operation payload a round carries into replication.
// The round owns it exclusively until it is handed to the replication
// pipeline; it is shared afterwards. Id is stamped by the leader-side append
// logic when the entry is assigned a log position.
type ReplicateMsg struct {
	OpType  OpType
	Payload []byte
	Id      OpId
}

// ReplicatedCallback receives a round's final status, the term under which
// replication actually completed, and the op ids durably applied with it
// (possibly a superset of the round's own op under batched commit).
type ReplicatedCallback func(status error, leaderTerm int64, appliedOpIds []OpId)

const unboundTerm int64 = -1

// Round carries a single client operation from submission through
// replication completion, enforcing term consistency. It holds no locks and
// performs no I/O: the submitter and the replication pipeline share it, and
// the owning facade must outlive every outstanding round.
type Round struct {
	consensus    *Consensus
	replicateMsg *ReplicateMsg
	replicatedCB ReplicatedCallback

	boundTerm int64
}

func newRound(c *Consensus, msg *ReplicateMsg, cb ReplicatedCallback) *Round {
	if cb == nil && msg == nil {
		// The no-callback path is reserved for internal control operations;
		// a nil payload there is a programming error upstream.
		panic("consensus: nil replicate message on a round without a callback")
	}
	return &Round{
		consensus:    c,
		replicateMsg: msg,
		replicatedCB: cb,
		boundTerm:    unboundTerm,
	}
}

// ReplicateMsg returns the operation payload this round carries.
func (r *Round) ReplicateMsg() *ReplicateMsg { return r.replicateMsg }

// BindToTerm ties the round to the term it was appended under. Called by the
// leader-side append logic, under the engine's term-tracking lock, before the
// round is handed to replication.
func (r *Round) BindToTerm(term int64) { r.boundTerm = term }

// BoundTerm returns the bound term, or -1 while the round is unbound.
func (r *Round) BoundTerm() int64 { return r.boundTerm }

// NotifyReplicationFinished forwards the round's outcome to the registered
// callback. The replication pipeline invokes it at most once, when the
// operation's outcome is known. Rounds without a callback (fire-and-forget
// submissions such as term-start no-ops) ignore the notification.
func (r *Round) NotifyReplicationFinished(status error, leaderTerm int64, appliedOpIds []OpId) {
	if r.replicatedCB == nil {
		return
	}
	r.replicatedCB(status, leaderTerm, appliedOpIds)
}

// CheckBoundTerm verifies the round's outcome is still meaningful under
// currentTerm. The replication pipeline must evaluate it immediately before
// treating the round as committed, under the same term-tracking snapshot the
// commit decision uses, because terms can change between submission and
// commit.
func (r *Round) CheckBoundTerm(currentTerm int64) error {
	if r.boundTerm != unboundTerm && r.boundTerm != currentTerm {
		return &AbortedError{BoundTerm: r.boundTerm, CurrentTerm: currentTerm}
	}
	return nil
}
