// Package raft contains the replication engine behind the consensus facade.
//
// It implements leader election with lease reporting, OpId-addressed log
// replication, the term-start no-op readiness gate, leader leases, and the
// round pipeline that completes submitted operations. The layers above reach
// it through the consensus package: readiness via LeaderState queries, writes
// via rounds, committed entries via the apply channel.
//
// Transport wiring is intentionally kept outside this package.
package raft

import (
	"context"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// Tuning holds the timing knobs of the engine. Zero values select defaults.
type Tuning struct {
	// HeartbeatInterval is the leader's replication tick (default 50ms).
	HeartbeatInterval time.Duration
	// LeaseDuration is the leader lease granted by a successful
	// AppendEntries exchange (default 2s).
	LeaseDuration time.Duration
	// LeaderStateStaleness bounds how old a cached readiness snapshot served
	// to allowStale queries may be (default 50ms).
	LeaderStateStaleness time.Duration
}

func (t Tuning) withDefaults() Tuning {
	if t.HeartbeatInterval <= 0 {
		t.HeartbeatInterval = 50 * time.Millisecond
	}
	if t.LeaseDuration <= 0 {
		t.LeaseDuration = 2 * time.Second
	}
	if t.LeaderStateStaleness <= 0 {
		t.LeaderStateStaleness = 50 * time.Millisecond
	}
	return t
}

// Node is a single replica: it manages elections, replication, leases, and
// the round pipeline. It implements consensus.Engine.
type Node struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	id      string
	peers   map[string]PeerClient
	storage Storage
	facade  *consensus.Consensus

	role Role

	currentTerm int64
	votedFor    string
	degraded    bool

	// log[i] is the entry at index i+1; OpId of log[i] is (log[i].Term, i+1).
	log []LogEntry

	commitIndex int64
	lastApplied int64

	// config is the active cluster configuration (source of quorum). Static
	// at runtime, restored from persisted hard state.
	config ClusterConfig

	nextIndex         map[string]int64
	matchIndex        map[string]int64
	replicateInFlight map[string]bool
	replicatePending  map[string]bool

	// pendingRounds holds leader-side rounds awaiting commit, keyed by log
	// index. completions are queued callbacks drained after unlocking.
	pendingRounds map[int64]*consensus.Round
	submittedAt   map[int64]time.Time
	completions   []func()

	// Follower-side lease granted to the current leader.
	leaseHolder    string
	leaseExpiresAt time.Time

	// Leader-side lease tracking: last grant time per peer, plus the
	// predecessor lease the new leader must wait out.
	leaseGrants             map[string]time.Time
	oldLeaderLeaseExpiresAt time.Time

	// noOpIndex is the log index of this term's no-op entry, 0 until the
	// leader has submitted it.
	noOpIndex int64

	// Cached readiness snapshot served to allowStale queries.
	cachedLeaderState   consensus.LeaderState
	cachedLeaderStateAt time.Time

	electionTimeoutResetCh chan struct{}
	applyNotifyCh          chan struct{}
	replicateNotifyCh      chan struct{}

	applyCh chan consensus.ApplyMsg
	logger  Logger
	tracer  oteltrace.Tracer
	metrics Metrics

	newTimer          newTimerFunc
	newTicker         newTickerFunc
	electionTimeoutFn timeoutJitterFunc
	tuning            Tuning
	clock             func() time.Time
}

// NewNode creates a node, restores persisted state from storage, and seeds
// commit tracking from the recovered bootstrap position.
//
// The peers map must contain remote peers only (self is ignored during
// normalization). Logger is required; pass a slog-compatible implementation.
func NewNode(
	id string,
	peers map[string]PeerClient,
	applyCh chan consensus.ApplyMsg,
	storage Storage,
	logger Logger,
	tracer oteltrace.Tracer,
	metrics Metrics,
	tuning Tuning,
) (*Node, error) {
	if storage == nil {
		return nil, ErrNilStorage
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	normalizedPeers := normalizePeers(id, peers)

	n := &Node{
		id:                     id,
		peers:                  normalizedPeers,
		storage:                storage,
		role:                   Follower,
		log:                    make([]LogEntry, 0),
		nextIndex:              make(map[string]int64),
		matchIndex:             make(map[string]int64),
		replicateInFlight:      make(map[string]bool),
		replicatePending:       make(map[string]bool),
		pendingRounds:          make(map[int64]*consensus.Round),
		submittedAt:            make(map[int64]time.Time),
		leaseGrants:            make(map[string]time.Time),
		electionTimeoutResetCh: make(chan struct{}, 1),
		applyNotifyCh:          make(chan struct{}, 1),
		replicateNotifyCh:      make(chan struct{}, 1),
		applyCh:                applyCh,
		logger:                 logger,
		tracer:                 tracer,
		metrics:                metrics,
		newTimer:               newWallClockTimer,
		newTicker:              newWallClockTicker,
		electionTimeoutFn:      randomElectionTimeout,
		tuning:                 tuning.withDefaults(),
		clock:                  time.Now,
	}
	n.facade = consensus.New(n)

	ps, err := storage.Load()
	if err != nil {
		return nil, err
	}
	n.currentTerm = ps.CurrentTerm
	n.votedFor = ps.VotedFor
	n.log = cloneLogEntries(ps.Log)

	// Restore config: prefer persisted config; fall back to id + peers.
	if len(ps.Config.Members) > 0 {
		n.config = ps.Config
	} else {
		members := make([]string, 0, 1+len(normalizedPeers))
		members = append(members, id)
		for peerID := range normalizedPeers {
			members = append(members, peerID)
		}
		n.config = ClusterConfig{Members: members}
	}

	n.applyBootstrap(recoverBootstrapInfo(ps, n.log))

	return n, nil
}

// recoverBootstrapInfo derives the replication position from recovered
// persistent state. Both ids start at MinimumOpId on a fresh node.
func recoverBootstrapInfo(ps *PersistentState, log []LogEntry) *consensus.BootstrapInfo {
	bi := consensus.NewBootstrapInfo()
	if last := int64(len(log)); last > 0 {
		bi.LastId = consensus.OpId{Term: log[last-1].Term, Index: last}
	}
	committed := ps.CommittedIndex
	if committed > int64(len(log)) {
		committed = int64(len(log))
	}
	if committed > 0 {
		bi.LastCommittedId = consensus.OpId{Term: log[committed-1].Term, Index: committed}
	}
	return bi
}

// applyBootstrap consumes the recovered bootstrap position to initialize
// commit and apply tracking. Called once, before the node runs.
func (n *Node) applyBootstrap(bi *consensus.BootstrapInfo) {
	n.commitIndex = bi.LastCommittedId.Index
	n.lastApplied = 0

	n.logger.Info("replication state recovered",
		"node_id", n.id,
		"last_op_id", bi.LastId.String(),
		"last_committed_op_id", bi.LastCommittedId.String(),
		"term", n.currentTerm,
	)
}

// Consensus returns the facade the layers above use to create rounds and
// query readiness. The facade is owned by the node and shares its lifetime.
func (n *Node) Consensus() *consensus.Consensus {
	return n.facade
}

// Run starts the background loops and returns once the start hooks have run.
func (n *Node) Run(ctx context.Context) error {
	if err := n.facade.ExecuteHook(consensus.HookPreStart); err != nil {
		return err
	}

	n.mu.Lock()
	if n.degraded {
		n.mu.Unlock()
		return ErrNodeDegraded
	}
	n.mu.Unlock()

	ctx, n.cancel = context.WithCancel(ctx)
	n.wg.Add(1)

	go func() {
		defer n.wg.Done()
		n.run(ctx)
	}()

	if n.applyCh != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runApplyLoop(ctx)
		}()
		n.notifyApply()
	}

	return n.facade.ExecuteHook(consensus.HookPostStart)
}

func (n *Node) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n.mu.Lock()
		if n.degraded {
			n.mu.Unlock()
			return
		}
		role := n.role
		n.mu.Unlock()

		switch role {
		case Follower:
			n.runFollower(ctx)
		case Candidate:
			n.runCandidate(ctx)
		case Leader:
			n.runLeader(ctx)
		}
	}
}

// Stop shuts the node down and waits for background loops to exit.
func (n *Node) Stop() {
	if err := n.facade.ExecuteHook(consensus.HookPreShutdown); err != nil {
		n.logger.Warn("pre-shutdown hook failed", "node_id", n.id, "error", err)
	}

	if n.cancel != nil {
		n.cancel()
	}
	for _, peerClient := range n.peers {
		_ = peerClient.Close()
	}

	n.wg.Wait()

	if err := n.facade.ExecuteHook(consensus.HookPostShutdown); err != nil {
		n.logger.Warn("post-shutdown hook failed", "node_id", n.id, "error", err)
	}
}

// normalizePeers returns a copy of peers without selfID.
func normalizePeers(selfID string, peers map[string]PeerClient) map[string]PeerClient {
	if len(peers) == 0 {
		return map[string]PeerClient{}
	}

	normalized := make(map[string]PeerClient, len(peers))
	for id, client := range peers {
		if id == selfID {
			continue
		}
		normalized[id] = client
	}
	return normalized
}

// quorumSize returns the majority quorum based on the active cluster config.
func (n *Node) quorumSize() int {
	return len(n.config.Members)/2 + 1
}

// lastLogIndexLocked returns the last log index (1..N, or 0 for empty log).
// Caller must hold n.mu.
func (n *Node) lastLogIndexLocked() int64 {
	return int64(len(n.log))
}

// lastOpIdLocked returns the OpId of the last log entry, or MinimumOpId for
// an empty log. Caller must hold n.mu.
func (n *Node) lastOpIdLocked() consensus.OpId {
	if len(n.log) == 0 {
		return consensus.MinimumOpId()
	}
	return consensus.OpId{Term: n.log[len(n.log)-1].Term, Index: int64(len(n.log))}
}

// committedOpIdLocked returns the OpId of the last committed entry.
// Caller must hold n.mu.
func (n *Node) committedOpIdLocked() consensus.OpId {
	if n.commitIndex == 0 {
		return consensus.MinimumOpId()
	}
	return consensus.OpId{Term: n.entryAtLocked(n.commitIndex).Term, Index: n.commitIndex}
}

// entryAtLocked returns the log entry at index (1-based).
// Caller must hold n.mu. Panics if index is out of range.
func (n *Node) entryAtLocked(index int64) LogEntry {
	return n.log[index-1]
}

// firstIndexOfTermLocked returns the first index containing term, or 0 if absent.
// Caller must hold n.mu.
func (n *Node) firstIndexOfTermLocked(term int64) int64 {
	for i, entry := range n.log {
		if entry.Term == term {
			return int64(i + 1)
		}
	}
	return 0
}

// lastIndexOfTermLocked returns the last index containing term, or 0 if absent.
// Caller must hold n.mu.
func (n *Node) lastIndexOfTermLocked(term int64) int64 {
	for i := len(n.log) - 1; i >= 0; i-- {
		if n.log[i].Term == term {
			return int64(i + 1)
		}
	}
	return 0
}

func (n *Node) electionTimeoutResetSignal() <-chan struct{} {
	return n.electionTimeoutResetCh
}

func (n *Node) markDegradedLocked(err error) {
	if err == nil || n.degraded {
		return
	}
	n.degraded = true
	n.metrics.IncStorageError(n.id, "persist")
	n.invalidateLeaderStateCacheLocked()
	if n.logger != nil {
		n.logger.Error(
			"node degraded due to persistence error",
			"node_id", n.id,
			"error", err,
		)
	}
}

// Status reports runtime node health.
//
// A degraded node encountered a critical persistence error in a background
// path, logged it, and stopped the main role loop from making progress.
func (n *Node) Status() NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.degraded {
		return NodeStatusDegraded
	}
	return NodeStatusHealthy
}

func (n *Node) persistHardStateLocked() error {
	if n.storage == nil {
		return nil
	}
	return n.storage.SaveHardState(HardState{
		CurrentTerm:    n.currentTerm,
		VotedFor:       n.votedFor,
		CommittedIndex: n.commitIndex,
		Config:         n.config,
	})
}

func (n *Node) persistAppendLogLocked(entries []LogEntry) error {
	if n.storage == nil {
		return nil
	}
	return n.storage.AppendLog(entries)
}

// persistTruncateLogLocked keeps stored entries with index < fromIndex.
// Caller must hold n.mu.
func (n *Node) persistTruncateLogLocked(fromIndex int64) error {
	if n.storage == nil {
		return nil
	}
	keepN := fromIndex - 1
	if keepN < 0 {
		keepN = 0
	}
	return n.storage.TruncateLog(keepN)
}

func cloneLogEntries(src []LogEntry) []LogEntry {
	if len(src) == 0 {
		return nil
	}

	dst := make([]LogEntry, len(src))
	for i, entry := range src {
		dst[i] = LogEntry{
			Term:    entry.Term,
			Type:    entry.Type,
			Payload: append([]byte(nil), entry.Payload...),
		}
	}

	return dst
}
