package raft

import "time"

// Metrics captures the engine-layer metric sinks used by the node.
type Metrics interface {
	ObserveAppendEntriesRPCDuration(nodeID, peerID string, heartbeat bool, d time.Duration)
	IncAppendEntriesReject(nodeID, peerID string, heartbeat bool)
	IncAppendEntriesRPCError(nodeID, peerID string, heartbeat bool, kind string)
	IncElectionStarted(nodeID string)
	IncElectionWon(nodeID string)
	IncElectionLost(nodeID string)
	IncStorageError(nodeID, op string)
	SetApplyLag(nodeID string, lag int64)
	SetIsLeader(nodeID string, isLeader bool)
	IncLeaseGranted(nodeID, leaderID string)
	IncRoundCompleted(nodeID string)
	IncRoundAborted(nodeID string)
	ObserveSubmitToCommitDuration(nodeID string, d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAppendEntriesRPCDuration(string, string, bool, time.Duration) {}
func (noopMetrics) IncAppendEntriesReject(string, string, bool)                         {}
func (noopMetrics) IncAppendEntriesRPCError(string, string, bool, string)               {}
func (noopMetrics) IncElectionStarted(string)                                           {}
func (noopMetrics) IncElectionWon(string)                                               {}
func (noopMetrics) IncElectionLost(string)                                              {}
func (noopMetrics) IncStorageError(string, string)                                      {}
func (noopMetrics) SetApplyLag(string, int64)                                           {}
func (noopMetrics) SetIsLeader(string, bool)                                            {}
func (noopMetrics) IncLeaseGranted(string, string)                                      {}
func (noopMetrics) IncRoundCompleted(string)                                            {}
func (noopMetrics) IncRoundAborted(string)                                              {}
func (noopMetrics) ObserveSubmitToCommitDuration(string, time.Duration)                 {}
