package raft

import (
	"log/slog"
	"time"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

func newTestNode(
	id string,
	peers map[string]PeerClient,
	applyCh chan consensus.ApplyMsg,
) *Node {
	n, err := NewNode(id, peers, applyCh, NewInMemoryStorage(), slog.Default(), testTracer, testMetrics, Tuning{})
	if err != nil {
		panic(err)
	}
	return n
}

func newNodeFromStorage(id string, storage Storage) (*Node, error) {
	return NewNode(id, map[string]PeerClient{}, nil, storage, slog.Default(), testTracer, testMetrics, Tuning{})
}

// fixedClock pins the node's time source and returns a function to move it.
func fixedClock(n *Node, start time.Time) func(d time.Duration) {
	now := start
	n.clock = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}
