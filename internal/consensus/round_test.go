package consensus

import (
	"errors"
	"strings"
	"testing"
)

func newTestFacade() *Consensus {
	return New(stubEngine{})
}

func TestRound_CheckBoundTerm_UnboundAcceptsEveryTerm(t *testing.T) {
	r := newTestFacade().NewRound(&ReplicateMsg{OpType: WriteOp, Payload: []byte("w")}, nil)

	for _, term := range []int64{0, 1, 5, 42, 1 << 40} {
		if err := r.CheckBoundTerm(term); err != nil {
			t.Fatalf("unbound round must accept term %d, got %v", term, err)
		}
	}
}

func TestRound_CheckBoundTerm_MatchingTermSucceeds(t *testing.T) {
	r := newTestFacade().NewRound(&ReplicateMsg{OpType: WriteOp}, nil)
	r.BindToTerm(5)

	if err := r.CheckBoundTerm(5); err != nil {
		t.Fatalf("expected success for matching term, got %v", err)
	}
	if got := r.BoundTerm(); got != 5 {
		t.Fatalf("expected bound term 5, got %d", got)
	}
}

func TestRound_CheckBoundTerm_MismatchAbortsWithBothTerms(t *testing.T) {
	r := newTestFacade().NewRound(&ReplicateMsg{OpType: WriteOp}, nil)
	r.BindToTerm(5)

	err := r.CheckBoundTerm(6)
	if err == nil {
		t.Fatalf("expected aborted error for term mismatch")
	}
	if !errors.Is(err, ErrRoundAborted) {
		t.Fatalf("expected errors.Is(err, ErrRoundAborted), got %v", err)
	}

	var aborted *AbortedError
	if !errors.As(err, &aborted) {
		t.Fatalf("expected *AbortedError, got %T", err)
	}
	if aborted.BoundTerm != 5 || aborted.CurrentTerm != 6 {
		t.Fatalf("expected terms (5, 6), got (%d, %d)", aborted.BoundTerm, aborted.CurrentTerm)
	}
	if msg := err.Error(); !strings.Contains(msg, "5") || !strings.Contains(msg, "6") {
		t.Fatalf("expected both terms in message, got %q", msg)
	}
}

func TestRound_NotifyReplicationFinished_ForwardsExactArguments(t *testing.T) {
	var (
		calls    int
		gotErr   error
		gotTerm  int64
		gotIds   []OpId
		expected = []OpId{{Term: 3, Index: 7}, {Term: 3, Index: 8}}
	)

	r := newTestFacade().NewRound(
		&ReplicateMsg{OpType: WriteOp, Payload: []byte("w")},
		func(status error, leaderTerm int64, appliedOpIds []OpId) {
			calls++
			gotErr = status
			gotTerm = leaderTerm
			gotIds = appliedOpIds
		},
	)

	r.NotifyReplicationFinished(nil, 3, expected)

	if calls != 1 {
		t.Fatalf("expected exactly one callback invocation, got %d", calls)
	}
	if gotErr != nil {
		t.Fatalf("expected nil status, got %v", gotErr)
	}
	if gotTerm != 3 {
		t.Fatalf("expected leader term 3, got %d", gotTerm)
	}
	if len(gotIds) != 2 || gotIds[0] != expected[0] || gotIds[1] != expected[1] {
		t.Fatalf("expected applied op ids %v, got %v", expected, gotIds)
	}
}

func TestRound_NotifyReplicationFinished_NoCallbackIsSilent(t *testing.T) {
	r := newTestFacade().NewRound(&ReplicateMsg{OpType: NoOpOp}, nil)

	// Must not panic or fail; fire-and-forget rounds ignore completion.
	r.NotifyReplicationFinished(ErrRoundAborted, 9, nil)
}

func TestRound_NilPayloadWithoutCallbackPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil payload without callback")
		}
	}()
	newTestFacade().NewRound(nil, nil)
}
