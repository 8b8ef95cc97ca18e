// Package consensus is the leader-readiness and replication-round safety
// layer between the consensus engine and the layers above it.
//
// It guarantees that an operation is never treated as committed under a term
// different from the one it was proposed in, that a newly elected leader does
// not serve until no predecessor's lease can still be active, and that each
// replicated operation's completion is reported exactly once with the term
// and applied op ids the state machine needs.
package consensus

import "fmt"

// Engine is the consensus implementation behind the facade: the term and
// lease tracker that produces LeaderState snapshots, and the log layer that
// tracks the last received and committed positions. Implementations must
// return already-consistent snapshots; the facade adds no locking.
type Engine interface {
	// GetLeaderState returns a fresh readiness snapshot. allowStale permits
	// a cached snapshot within the engine's staleness budget, for
	// latency-sensitive callers.
	GetLeaderState(allowStale bool) LeaderState

	// LastReceivedOpId returns the last op id appended to the local log.
	LastReceivedOpId() (OpId, error)

	// LastCommittedOpId returns the last op id known to be quorum-committed.
	LastCommittedOpId() (OpId, error)
}

// Consensus is the single entry point for the write/query dispatch layer:
// it creates rounds, answers leader-readiness queries, dispatches last-op-id
// lookups by kind, and runs optional lifecycle fault hooks.
type Consensus struct {
	engine     Engine
	faultHooks FaultHooks
}

// New wraps engine in a facade. The facade must outlive every round it
// creates.
func New(engine Engine) *Consensus {
	return &Consensus{engine: engine}
}

// NewRound returns a round bound to this facade carrying msg. The round is
// not yet submitted to replication; submission is a separate step.
func (c *Consensus) NewRound(msg *ReplicateMsg, cb ReplicatedCallback) *Round {
	return newRound(c, msg, cb)
}

// GetLeaderState returns the engine's readiness snapshot.
func (c *Consensus) GetLeaderState(allowStale bool) LeaderState {
	return c.engine.GetLeaderState(allowStale)
}

// GetLeaderStatus returns just the readiness status. allowStale skips a
// fresh lease and quorum check when the engine holds a recent snapshot.
func (c *Consensus) GetLeaderStatus(allowStale bool) LeaderStatus {
	return c.engine.GetLeaderState(allowStale).Status
}

// LeaderTerm returns the term from a fresh readiness query. It is
// UnknownTerm unless the node is a ready-enough leader.
func (c *Consensus) LeaderTerm() int64 {
	return c.engine.GetLeaderState(false).Term
}

// GetLastOpId returns the requested positional marker: the last received or
// last committed op id. An unrecognized kind is an invalid argument.
func (c *Consensus) GetLastOpId(kind OpIdType) (OpId, error) {
	switch kind {
	case ReceivedOpId:
		return c.engine.LastReceivedOpId()
	case CommittedOpId:
		return c.engine.LastCommittedOpId()
	case UnknownOpIdType:
	}
	return OpId{}, fmt.Errorf("%w: %s", ErrInvalidOpIdType, kind)
}

// SetFaultHooks registers hooks. Registration must happen during a
// single-threaded setup or teardown window.
func (c *Consensus) SetFaultHooks(hooks FaultHooks) { c.faultHooks = hooks }

// FaultHooks returns the registered hooks, or nil.
func (c *Consensus) FaultHooks() FaultHooks { return c.faultHooks }

// ExecuteHook runs the hook registered for point. With no hooks registered
// it is a no-op.
func (c *Consensus) ExecuteHook(point HookPoint) error {
	if c.faultHooks == nil {
		return nil
	}
	switch point {
	case HookPreStart:
		return c.faultHooks.PreStart()
	case HookPostStart:
		return c.faultHooks.PostStart()
	case HookPreConfigChange:
		return c.faultHooks.PreConfigChange()
	case HookPostConfigChange:
		return c.faultHooks.PostConfigChange()
	case HookPreReplicate:
		return c.faultHooks.PreReplicate()
	case HookPostReplicate:
		return c.faultHooks.PostReplicate()
	case HookPreUpdate:
		return c.faultHooks.PreUpdate()
	case HookPostUpdate:
		return c.faultHooks.PostUpdate()
	case HookPreShutdown:
		return c.faultHooks.PreShutdown()
	case HookPostShutdown:
		return c.faultHooks.PostShutdown()
	}
	panic(fmt.Sprintf("consensus: unknown hook point %d", int(point)))
}

// ApplyMsg delivers a committed entry to the state machine layer, in log
// order, on every replica.
type ApplyMsg struct {
	Id      OpId
	Payload []byte

	// NoOp marks a term-start marker entry; it carries no command.
	NoOp bool
}
