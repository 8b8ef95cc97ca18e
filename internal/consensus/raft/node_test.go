package raft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

func TestNode_Submit_ReturnsNotLeaderWithoutAppending(t *testing.T) {
	n := newTestNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1))
	n.role = Follower
	n.currentTerm = 4

	round := n.facade.NewRound(&consensus.ReplicateMsg{OpType: consensus.WriteOp, Payload: []byte("cmd")}, nil)
	id, err := n.Submit(round)

	if !errors.Is(err, consensus.ErrNotLeader) {
		t.Fatalf("expected ErrNotLeader, got %v", err)
	}
	if id != (consensus.OpId{}) {
		t.Fatalf("expected zero op id, got %v", id)
	}
	if len(n.log) != 0 {
		t.Fatalf("expected log to stay empty, got len=%d", len(n.log))
	}
}

func TestNode_Submit_RejectsWhenDegraded(t *testing.T) {
	n := newTestNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1))
	n.role = Leader
	n.currentTerm = 4
	n.degraded = true

	round := n.facade.NewRound(&consensus.ReplicateMsg{OpType: consensus.WriteOp, Payload: []byte("cmd")}, nil)
	_, err := n.Submit(round)

	if !errors.Is(err, ErrNodeDegraded) {
		t.Fatalf("expected ErrNodeDegraded, got %v", err)
	}
	if len(n.log) != 0 {
		t.Fatalf("expected log to remain empty, got len=%d", len(n.log))
	}
}

func TestNode_Submit_AppendsEntryAndTriggersReplication(t *testing.T) {
	n := newTestNode("n1", map[string]PeerClient{"n2": nil, "n3": nil}, make(chan consensus.ApplyMsg, 1))
	n.role = Leader
	n.currentTerm = 7

	msg := &consensus.ReplicateMsg{OpType: consensus.WriteOp, Payload: []byte("set x=1")}
	round := n.facade.NewRound(msg, nil)
	id, err := n.Submit(round)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if want := (consensus.OpId{Term: 7, Index: 1}); id != want {
		t.Fatalf("expected op id %v, got %v", want, id)
	}
	if msg.Id != id {
		t.Fatalf("expected message stamped with %v, got %v", id, msg.Id)
	}
	if round.BoundTerm() != 7 {
		t.Fatalf("expected round bound to term 7, got %d", round.BoundTerm())
	}
	if len(n.log) != 1 {
		t.Fatalf("expected log len=1, got %d", len(n.log))
	}
	if got := n.log[0].Term; got != 7 {
		t.Fatalf("expected log term=7, got %d", got)
	}
	if got := string(n.log[0].Payload); got != "set x=1" {
		t.Fatalf("expected payload copied, got %q", got)
	}
	if got := n.log[0].Type; got != EntryWrite {
		t.Fatalf("expected write entry, got %v", got)
	}
	if got := n.matchIndex["n1"]; got != 1 {
		t.Fatalf("expected self matchIndex=1, got %d", got)
	}
	if got := n.nextIndex["n1"]; got != 2 {
		t.Fatalf("expected self nextIndex=2, got %d", got)
	}
	if _, ok := n.pendingRounds[1]; !ok {
		t.Fatalf("expected round tracked as pending")
	}

	select {
	case <-n.replicateNotifyCh:
	default:
		t.Fatalf("expected replication notification")
	}
}

func TestNode_Submit_SingleNodeLeaderCommitsAppliesAndCompletesRound(t *testing.T) {
	applyCh := make(chan consensus.ApplyMsg, 1)
	n := newTestNode("n1", map[string]PeerClient{}, applyCh)
	n.role = Leader
	n.currentTerm = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.runApplyLoop(ctx)
	}()

	var gotStatus error
	var gotApplied []consensus.OpId
	round := n.facade.NewRound(
		&consensus.ReplicateMsg{OpType: consensus.WriteOp, Payload: []byte("cmd")},
		func(status error, _ int64, applied []consensus.OpId) {
			gotStatus = status
			gotApplied = applied
		},
	)
	id, err := n.Submit(round)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if id.Index != 1 {
		t.Fatalf("expected index=1, got %d", id.Index)
	}

	// A single-node cluster commits on append, so the callback has already
	// run by the time Submit returns.
	if gotStatus != nil {
		t.Fatalf("expected round to complete, got %v", gotStatus)
	}
	if len(gotApplied) != 1 || gotApplied[0] != id {
		t.Fatalf("expected applied op ids [%v], got %v", id, gotApplied)
	}

	msg := waitApplyMsg(t, applyCh)
	if msg.Id != id || string(msg.Payload) != "cmd" || msg.NoOp {
		t.Fatalf("unexpected apply msg: %+v", msg)
	}

	n.mu.Lock()
	commitIndex := n.commitIndex
	lastApplied := n.lastApplied
	n.mu.Unlock()
	if commitIndex != 1 {
		t.Fatalf("expected commitIndex=1, got %d", commitIndex)
	}
	if lastApplied != 1 {
		t.Fatalf("expected lastApplied=1, got %d", lastApplied)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("apply loop did not stop")
	}
}

func TestNode_runApplyLoop_AppliesCommittedEntriesInOrder(t *testing.T) {
	applyCh := make(chan consensus.ApplyMsg, 4)
	n := newTestNode("n1", map[string]PeerClient{}, applyCh)
	n.log = []LogEntry{
		{Term: 1, Type: EntryNoOp},
		{Term: 2, Type: EntryWrite, Payload: []byte("b")},
	}
	n.commitIndex = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.runApplyLoop(ctx)
	}()

	n.notifyApply()

	msg1 := waitApplyMsg(t, applyCh)
	msg2 := waitApplyMsg(t, applyCh)

	if msg1.Id != (consensus.OpId{Term: 1, Index: 1}) || !msg1.NoOp {
		t.Fatalf("unexpected first apply msg: %+v", msg1)
	}
	if msg2.Id != (consensus.OpId{Term: 2, Index: 2}) || string(msg2.Payload) != "b" || msg2.NoOp {
		t.Fatalf("unexpected second apply msg: %+v", msg2)
	}

	n.mu.Lock()
	lastApplied := n.lastApplied
	n.mu.Unlock()
	if lastApplied != 2 {
		t.Fatalf("expected lastApplied=2, got %d", lastApplied)
	}

	cancel()
	<-done
}

func TestNode_Stop_UnblocksBlockedApplyLoop(t *testing.T) {
	applyCh := make(chan consensus.ApplyMsg) // unbuffered: apply loop may block on send
	n := newTestNode("n1", map[string]PeerClient{}, applyCh)
	n.role = Leader
	n.currentTerm = 1

	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	round := n.facade.NewRound(&consensus.ReplicateMsg{OpType: consensus.WriteOp, Payload: []byte("cmd")}, nil)
	if _, err := n.Submit(round); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		n.Stop()
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop did not return while apply loop was blocked")
	}
}

func TestNewNode_NormalizesPeersByDroppingSelf(t *testing.T) {
	n, err := NewNode("n1", map[string]PeerClient{
		"n1": nil, // should be ignored
		"n2": nil,
		"n3": nil,
	}, make(chan consensus.ApplyMsg, 1), NewInMemoryStorage(), slog.Default(), testTracer, testMetrics, Tuning{})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}

	if _, ok := n.peers["n1"]; ok {
		t.Fatalf("expected self peer to be removed during normalization")
	}
	if len(n.peers) != 2 {
		t.Fatalf("expected 2 remote peers after normalization, got %d", len(n.peers))
	}
	if got := n.quorumSize(); got != 2 {
		t.Fatalf("expected quorumSize=2 for 3-node cluster, got %d", got)
	}
}

func TestNewNode_ReturnsErrorOnNilLogger(t *testing.T) {
	_, err := NewNode(
		"n1",
		map[string]PeerClient{},
		make(chan consensus.ApplyMsg, 1),
		NewInMemoryStorage(),
		nil,
		testTracer,
		testMetrics,
		Tuning{},
	)
	if !errors.Is(err, ErrNilLogger) {
		t.Fatalf("expected ErrNilLogger, got %v", err)
	}
}

func TestNewNode_ReturnsErrorOnNilStorage(t *testing.T) {
	_, err := NewNode(
		"n1",
		map[string]PeerClient{},
		make(chan consensus.ApplyMsg, 1),
		nil,
		slog.Default(),
		testTracer,
		testMetrics,
		Tuning{},
	)
	if !errors.Is(err, ErrNilStorage) {
		t.Fatalf("expected ErrNilStorage, got %v", err)
	}
}

func TestNode_Run_DoesNotStartWhenAlreadyDegraded(t *testing.T) {
	n := newTestNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1))
	n.mu.Lock()
	n.degraded = true
	n.mu.Unlock()

	if err := n.Run(context.Background()); !errors.Is(err, ErrNodeDegraded) {
		t.Fatalf("expected ErrNodeDegraded, got %v", err)
	}

	if n.Status() != NodeStatusDegraded {
		t.Fatalf("expected status=%q, got %q", NodeStatusDegraded, n.Status())
	}
}

type failingStorage struct {
	loadState        *PersistentState
	saveHardStateErr error
	appendLogErr     error
	truncateLogErr   error
}

func (s *failingStorage) Load() (*PersistentState, error) {
	if s.loadState == nil {
		return &PersistentState{}, nil
	}

	return &PersistentState{
		HardState: s.loadState.HardState,
		Log:       cloneLogEntries(s.loadState.Log),
	}, nil
}

func (s *failingStorage) SaveHardState(_ HardState) error {
	return s.saveHardStateErr
}

func (s *failingStorage) AppendLog(_ []LogEntry) error {
	return s.appendLogErr
}

func (s *failingStorage) TruncateLog(_ int64) error {
	return s.truncateLogErr
}

type recordingLogger struct {
	mu   sync.Mutex
	logs []string
}

func (l *recordingLogger) append(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, fmt.Sprintf("%s %v", msg, args))
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.append(msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.append(msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.append(msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.append(msg, args...) }

func (l *recordingLogger) Contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.logs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}

func TestNode_Submit_RollsBackOnPersistAppendError(t *testing.T) {
	storageErr := errors.New("append failed")
	n, err := NewNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1), &failingStorage{
		appendLogErr: storageErr,
	}, slog.Default(), testTracer, testMetrics, Tuning{})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}

	n.role = Leader
	n.currentTerm = 3

	round := n.facade.NewRound(&consensus.ReplicateMsg{OpType: consensus.WriteOp, Payload: []byte("cmd")}, nil)
	_, err = n.Submit(round)
	if !errors.Is(err, storageErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(n.log) != 0 {
		t.Fatalf("expected log rollback, got len=%d", len(n.log))
	}
	if got := n.matchIndex["n1"]; got != 0 {
		t.Fatalf("expected self matchIndex unchanged, got %d", got)
	}
	if len(n.pendingRounds) != 0 {
		t.Fatalf("expected no pending rounds, got %d", len(n.pendingRounds))
	}

	select {
	case <-n.replicateNotifyCh:
		t.Fatalf("unexpected replicate notification on persist failure")
	default:
	}
}

func TestNode_HandleRequestVote_ReturnsErrorOnPersistHardStateFailure(t *testing.T) {
	storageErr := errors.New("save hard state failed")
	n, err := NewNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1), &failingStorage{
		saveHardStateErr: storageErr,
	}, slog.Default(), testTracer, testMetrics, Tuning{})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	n.currentTerm = 1

	resp, err := n.HandleRequestVote(context.Background(), &RequestVoteRequest{
		Term:        2,
		CandidateID: "n2",
		LastOpId:    consensus.MinimumOpId(),
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if resp != nil {
		t.Fatalf("expected nil response on persist error")
	}
	if !errors.Is(err, storageErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if n.currentTerm != 1 {
		t.Fatalf("expected currentTerm rollback to 1, got %d", n.currentTerm)
	}
	if n.votedFor != "" {
		t.Fatalf("expected votedFor rollback, got %q", n.votedFor)
	}
}

func TestNode_HandleAppendEntries_ReturnsErrorOnPersistAppendFailure(t *testing.T) {
	storageErr := errors.New("append failed")
	n, err := NewNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1), &failingStorage{
		appendLogErr: storageErr,
	}, slog.Default(), testTracer, testMetrics, Tuning{})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	n.currentTerm = 2

	resp, err := n.HandleAppendEntries(context.Background(), &AppendEntriesRequest{
		Term:     2,
		LeaderID: "n2",
		PrevOpId: consensus.MinimumOpId(),
		Entries:  []LogEntry{{Term: 2, Type: EntryWrite, Payload: []byte("x")}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if resp != nil {
		t.Fatalf("expected nil response on persist error")
	}
	if !errors.Is(err, storageErr) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if len(n.log) != 0 {
		t.Fatalf("expected in-memory log unchanged, got len=%d", len(n.log))
	}
}

func TestNode_sendAppendEntries_StepDownPersistFailureSetsDegradedStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storageErr := errors.New("save hard state failed")
	n, err := NewNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1), &failingStorage{
		saveHardStateErr: storageErr,
	}, slog.Default(), testTracer, testMetrics, Tuning{})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	n.role = Leader
	n.currentTerm = 3

	peer := NewMockPeerClient(ctrl)
	req := &AppendEntriesRequest{Term: 3}
	peer.EXPECT().
		AppendEntries(gomock.Any(), req).
		Return(&AppendEntriesResponse{Term: 4, Success: false}, nil).
		Times(1)

	n.sendAppendEntries(context.Background(), "n2", peer, req)

	if n.Status() != NodeStatusDegraded {
		t.Fatalf("expected status=%q, got %q", NodeStatusDegraded, n.Status())
	}
}

func TestNode_runCandidate_PersistFailureSetsDegradedStatus(t *testing.T) {
	storageErr := errors.New("save hard state failed")
	recLogger := &recordingLogger{}
	n, err := NewNode("n1", map[string]PeerClient{}, make(chan consensus.ApplyMsg, 1), &failingStorage{
		saveHardStateErr: storageErr,
	}, recLogger, testTracer, testMetrics, Tuning{})
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	n.role = Candidate
	n.currentTerm = 5

	n.runCandidate(context.Background())

	if n.role != Follower {
		t.Fatalf("expected role %v, got %v", Follower, n.role)
	}
	if n.currentTerm != 5 {
		t.Fatalf("expected currentTerm rollback to 5, got %d", n.currentTerm)
	}
	if n.votedFor != "" {
		t.Fatalf("expected votedFor rollback, got %q", n.votedFor)
	}
	if n.Status() != NodeStatusDegraded {
		t.Fatalf("expected status=%q, got %q", NodeStatusDegraded, n.Status())
	}
	if !recLogger.Contains("node degraded due to persistence error") {
		t.Fatalf("expected degraded log message")
	}
}

func waitApplyMsg(t *testing.T, ch <-chan consensus.ApplyMsg) consensus.ApplyMsg {
	t.Helper()

	select {
	case msg := <-ch:
		return msg
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for apply msg")
		return consensus.ApplyMsg{}
	}
}
