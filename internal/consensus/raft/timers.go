package raft

import "time"

// electionTimer is the resettable countdown used for follower election
// timeouts and candidate vote deadlines. Tests install a hand-driven
// implementation through the node's newTimer seam.
type electionTimer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// replicationTicker paces the leader's heartbeat and replication loop.
type replicationTicker interface {
	C() <-chan time.Time
	Stop()
}

type (
	newTimerFunc      func(d time.Duration) electionTimer
	newTickerFunc     func(d time.Duration) replicationTicker
	timeoutJitterFunc func() time.Duration
)

type wallClockTimer struct {
	t *time.Timer
}

func (t *wallClockTimer) C() <-chan time.Time        { return t.t.C }
func (t *wallClockTimer) Stop() bool                 { return t.t.Stop() }
func (t *wallClockTimer) Reset(d time.Duration) bool { return t.t.Reset(d) }

func newWallClockTimer(d time.Duration) electionTimer {
	return &wallClockTimer{t: time.NewTimer(d)}
}

type wallClockTicker struct {
	t *time.Ticker
}

func (t *wallClockTicker) C() <-chan time.Time { return t.t.C }
func (t *wallClockTicker) Stop()               { t.t.Stop() }

func newWallClockTicker(d time.Duration) replicationTicker {
	return &wallClockTicker{t: time.NewTicker(d)}
}
