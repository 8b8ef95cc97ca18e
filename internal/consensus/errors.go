package consensus

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors of the readiness and round taxonomy. Callers match them
// with errors.Is; the structured types below carry the associated values.
var (
	// ErrNotLeader is returned when an operation requires leadership and the
	// node is not the leader.
	ErrNotLeader = errors.New("consensus: not the leader")

	// ErrLeaderNotReadyToServe is returned when the node is leader but is
	// missing a commit prerequisite. Retriable after backing off.
	ErrLeaderNotReadyToServe = errors.New("consensus: leader not ready to serve")

	// ErrLeaderHasNoLease is returned when the leader lacks a
	// majority-replicated lease. The corrective action is waiting for peer
	// acknowledgements, not a timer.
	ErrLeaderHasNoLease = errors.New("consensus: this leader has not yet acquired a lease")

	// ErrRoundAborted is returned when a round's bound term no longer
	// matches the current term. The operation's outcome is indeterminate and
	// must be resubmitted as a new round if still desired.
	ErrRoundAborted = errors.New("consensus: round aborted")

	// ErrInvalidOpIdType is returned by GetLastOpId for an unrecognized kind.
	ErrInvalidOpIdType = errors.New("consensus: unsupported op id type")
)

// AbortedError reports that a round bound to one term was asked to complete
// under another. It matches ErrRoundAborted under errors.Is.
type AbortedError struct {
	BoundTerm   int64
	CurrentTerm int64
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf(
		"consensus: operation submitted in term %d cannot be replicated in term %d",
		e.BoundTerm, e.CurrentTerm,
	)
}

// Is matches ErrRoundAborted.
func (e *AbortedError) Is(target error) bool { return target == ErrRoundAborted }

// OldLeaderLeaseError reports a leader that must not serve yet because a
// previous leader's lease might still be active. RemainingLease is how long
// the caller should wait before retrying. It matches ErrLeaderNotReadyToServe
// under errors.Is.
type OldLeaderLeaseError struct {
	RemainingLease time.Duration
}

func (e *OldLeaderLeaseError) Error() string {
	return fmt.Sprintf(
		"consensus: previous leader's lease might still be active (%v remaining)",
		e.RemainingLease,
	)
}

// Is matches ErrLeaderNotReadyToServe.
func (e *OldLeaderLeaseError) Is(target error) bool { return target == ErrLeaderNotReadyToServe }
