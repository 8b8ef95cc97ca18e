package table

import (
	"context"
	"encoding/json"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// Store is an in-memory table state machine. It tracks the OpId of the last
// applied entry so callers can wait for a specific write to become visible.
type Store struct {
	mu          sync.RWMutex
	data        map[string]string
	lastApplied consensus.OpId
	appliedCh   chan struct{}
	tracer      oteltrace.Tracer
}

// NewStore creates an empty table store.
func NewStore(tracer oteltrace.Tracer) *Store {
	return &Store{
		data:      make(map[string]string),
		appliedCh: make(chan struct{}),
		tracer:    tracer,
	}
}

// Get returns the current value for key, if present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.data[key]
	return val, ok
}

// LastApplied returns the OpId of the last applied entry.
func (s *Store) LastApplied() consensus.OpId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastApplied
}

// Apply records msg as applied and, for non-no-op entries, decodes and
// applies the serialized command. No-op entries only advance the applied
// position.
func (s *Store) Apply(ctx context.Context, msg consensus.ApplyMsg) error {
	_, span := s.tracer.Start(ctx, "table.store.Apply", oteltrace.WithAttributes(
		attribute.String("table.op_id", msg.Id.String()),
		attribute.Bool("table.no_op", msg.NoOp),
		attribute.Int("table.command.bytes", len(msg.Payload)),
	))
	defer span.End()

	if msg.NoOp {
		s.markApplied(msg.Id)
		return nil
	}

	var cmd Command
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.String("table.command.type", string(cmd.Type)),
		attribute.String("table.key", cmd.Key),
		attribute.Int("table.value.bytes", len(cmd.Value)),
	)

	s.mu.Lock()
	switch cmd.Type {
	case PutCmd:
		s.data[cmd.Key] = cmd.Value
	case DeleteCmd:
		delete(s.data, cmd.Key)
	}
	s.lastApplied = msg.Id
	close(s.appliedCh)
	s.appliedCh = make(chan struct{})
	s.mu.Unlock()

	return nil
}

// WaitApplied blocks until an entry at or past id has been applied, or ctx
// is done.
func (s *Store) WaitApplied(ctx context.Context, id consensus.OpId) error {
	for {
		s.mu.RLock()
		applied := s.lastApplied
		ch := s.appliedCh
		s.mu.RUnlock()

		if applied.Index >= id.Index {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (s *Store) markApplied(id consensus.OpId) {
	s.mu.Lock()
	s.lastApplied = id
	close(s.appliedCh)
	s.appliedCh = make(chan struct{})
	s.mu.Unlock()
}
