// Package service contains application services exposed via transports.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ubante/yugabyte-db/internal/consensus"
	"github.com/ubante/yugabyte-db/internal/table"
)

// ErrCommitTimeout is returned when a write is accepted for replication but
// its round does not complete before the request deadline.
var ErrCommitTimeout = errors.New("service: write not committed before deadline")

// Logger is a minimal structured logger interface, compatible with slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

// Replicator accepts rounds for replication. The engine node implements it.
type Replicator interface {
	Submit(round *consensus.Round) (consensus.OpId, error)
}

// Metrics captures service-level metric sinks used by Table.
type Metrics interface {
	IncProposalResult(nodeID, result string)
	ObserveWaitAppliedDuration(nodeID string, d time.Duration, ok bool)
	IncReadRejected(nodeID, status string)
}

type noopMetrics struct{}

func (noopMetrics) IncProposalResult(string, string)                       {}
func (noopMetrics) ObserveWaitAppliedDuration(string, time.Duration, bool) {}
func (noopMetrics) IncReadRejected(string, string)                         {}

// roundOutcome carries what the replication callback reported for one round.
type roundOutcome struct {
	status       error
	leaderTerm   int64
	appliedOpIds []consensus.OpId
}

// Table is the application service that bridges the table store and the
// consensus layer. Every write goes through the leader-readiness gate and a
// replication round; consistent reads require a ready, lease-holding leader.
type Table struct {
	consensus  *consensus.Consensus
	replicator Replicator
	store      *table.Store
	logger     Logger
	tracer     oteltrace.Tracer
	metrics    Metrics
	nodeID     string
}

// NewTable creates a table service backed by the provided consensus facade,
// replicator, and store.
func NewTable(
	c *consensus.Consensus,
	replicator Replicator,
	store *table.Store,
	logger Logger,
	tracer oteltrace.Tracer,
	metrics Metrics,
	nodeID string,
) *Table {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Table{
		consensus:  c,
		replicator: replicator,
		store:      store,
		logger:     logger,
		tracer:     tracer,
		metrics:    metrics,
		nodeID:     nodeID,
	}
}

func (s *Table) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := s.tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func tableSpanRecordError(span oteltrace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}

// Get returns a value through the lease-protected read path: the node must
// be a ready leader, otherwise the readiness error is returned verbatim.
func (s *Table) Get(ctx context.Context, key string) (string, bool, error) {
	_, span := s.startSpan(ctx, "table.service.Get", attribute.String("table.key", key))
	defer span.End()

	state := s.consensus.GetLeaderState(true)
	if err := state.CreateStatus(); err != nil {
		s.metrics.IncReadRejected(s.nodeID, state.Status.String())
		tableSpanRecordError(span, err)
		return "", false, err
	}

	val, ok := s.store.Get(key)
	return val, ok, nil
}

// GetStale returns a value from the local state machine without any
// leadership check. Followers serve it; the result may lag the leader.
func (s *Table) GetStale(ctx context.Context, key string) (string, bool) {
	_, span := s.startSpan(ctx, "table.service.GetStale", attribute.String("table.key", key))
	defer span.End()
	return s.store.Get(key)
}

// Put proposes a replicated write through a consensus round.
func (s *Table) Put(ctx context.Context, key, value string) (consensus.OpId, error) {
	ctx, span := s.startSpan(
		ctx,
		"table.service.Put",
		attribute.String("table.key", key),
		attribute.Int("table.value.bytes", len(value)),
	)
	defer span.End()
	s.logger.Debug("proposing put", "node_id", s.nodeID, "key", key)
	id, err := s.startCommand(ctx, table.Command{
		Type:  table.PutCmd,
		Key:   key,
		Value: value,
	})
	if err != nil {
		tableSpanRecordError(span, err)
		return consensus.OpId{}, err
	}
	span.SetAttributes(attribute.String("table.op_id", id.String()))
	return id, nil
}

// Delete proposes a replicated delete through a consensus round.
func (s *Table) Delete(ctx context.Context, key string) (consensus.OpId, error) {
	ctx, span := s.startSpan(ctx, "table.service.Delete", attribute.String("table.key", key))
	defer span.End()
	s.logger.Debug("proposing delete", "node_id", s.nodeID, "key", key)
	id, err := s.startCommand(ctx, table.Command{
		Type: table.DeleteCmd,
		Key:  key,
	})
	if err != nil {
		tableSpanRecordError(span, err)
		return consensus.OpId{}, err
	}
	span.SetAttributes(attribute.String("table.op_id", id.String()))
	return id, nil
}

// RunApplier applies committed entries from the engine's apply channel to
// the table store until ctx is canceled or the channel closes.
func (s *Table) RunApplier(ctx context.Context, applyCh <-chan consensus.ApplyMsg) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-applyCh:
			if !ok {
				return nil
			}
			if err := s.store.Apply(ctx, msg); err != nil {
				return err
			}
			s.logger.Debug("entry applied",
				"node_id", s.nodeID,
				"op_id", msg.Id.String(),
				"no_op", msg.NoOp,
			)
		}
	}
}

func (s *Table) startCommand(ctx context.Context, cmd table.Command) (consensus.OpId, error) {
	ctx, span := s.startSpan(
		ctx,
		"table.service.startCommand",
		attribute.String("table.command.type", string(cmd.Type)),
		attribute.String("table.key", cmd.Key),
	)
	defer span.End()

	// Readiness gate: the write is rejected before it touches the log unless
	// this node is a leader that may serve.
	state := s.consensus.GetLeaderState(false)
	if err := state.CreateStatus(); err != nil {
		s.metrics.IncProposalResult(s.nodeID, state.Status.String())
		tableSpanRecordError(span, err)
		return consensus.OpId{}, err
	}

	raw, err := json.Marshal(cmd)
	if err != nil {
		tableSpanRecordError(span, err)
		return consensus.OpId{}, err
	}
	span.SetAttributes(attribute.Int("table.command.bytes", len(raw)))

	outcomeCh := make(chan roundOutcome, 1)
	round := s.consensus.NewRound(
		&consensus.ReplicateMsg{OpType: consensus.WriteOp, Payload: raw},
		func(status error, leaderTerm int64, appliedOpIds []consensus.OpId) {
			outcomeCh <- roundOutcome{
				status:       status,
				leaderTerm:   leaderTerm,
				appliedOpIds: appliedOpIds,
			}
		},
	)

	id, err := s.replicator.Submit(round)
	if err != nil {
		s.metrics.IncProposalResult(s.nodeID, "rejected")
		tableSpanRecordError(span, err)
		return consensus.OpId{}, err
	}
	span.SetAttributes(attribute.String("table.op_id", id.String()))
	s.logger.Debug("round accepted for replication",
		"node_id", s.nodeID,
		"op_id", id.String(),
		"type", cmd.Type,
		"key", cmd.Key,
	)

	var outcome roundOutcome
	select {
	case <-ctx.Done():
		s.metrics.IncProposalResult(s.nodeID, "commit_timeout")
		tableSpanRecordError(span, ErrCommitTimeout)
		return consensus.OpId{}, ErrCommitTimeout
	case outcome = <-outcomeCh:
	}

	if outcome.status != nil {
		s.metrics.IncProposalResult(s.nodeID, "aborted")
		tableSpanRecordError(span, outcome.status)
		return consensus.OpId{}, outcome.status
	}
	span.SetAttributes(
		attribute.Int64("table.leader_term", outcome.leaderTerm),
		attribute.Int("table.applied_op_ids", len(outcome.appliedOpIds)),
	)

	// The round committed; wait until the local apply loop has made the
	// write visible so the caller can read it back.
	start := time.Now()
	if err := s.store.WaitApplied(ctx, id); err != nil {
		s.metrics.ObserveWaitAppliedDuration(s.nodeID, time.Since(start), false)
		s.metrics.IncProposalResult(s.nodeID, "apply_timeout")
		tableSpanRecordError(span, ErrCommitTimeout)
		return consensus.OpId{}, ErrCommitTimeout
	}
	s.metrics.ObserveWaitAppliedDuration(s.nodeID, time.Since(start), true)
	s.metrics.IncProposalResult(s.nodeID, "committed")
	return id, nil
}
