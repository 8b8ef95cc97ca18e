package grpcconsensus

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ubante/yugabyte-db/internal/consensus/raft"
)

// Handler is the subset of *raft.Node required by the gRPC server.
// *raft.Node satisfies this interface.
type Handler interface {
	HandleRequestVote(ctx context.Context, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error)
	HandleAppendEntries(ctx context.Context, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error)
}

// Server exposes a node's consensus RPCs over gRPC with the JSON codec.
type Server struct {
	handler Handler
	tracer  oteltrace.Tracer
}

// NewServer creates a consensus gRPC server adapter for the provided handler.
func NewServer(handler Handler, tracer oteltrace.Tracer) *Server {
	return &Server{handler: handler, tracer: tracer}
}

// Register registers the consensus service on srv.
func (s *Server) Register(srv *grpc.Server) {
	srv.RegisterService(&consensusServiceDesc, s)
}

// RequestVote handles a RequestVote RPC.
func (s *Server) RequestVote(ctx context.Context, in *wireRequestVoteRequest) (*wireRequestVoteResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grpcconsensus.server.RequestVote", oteltrace.WithAttributes(
		attribute.Int64("raft.term", in.Term),
		attribute.String("raft.candidate_id", in.CandidateID),
	))
	defer span.End()

	resp, err := s.handler.HandleRequestVote(ctx, requestVoteRequestFromWire(in))
	if err != nil {
		recordSpanError(span, err)
		return nil, toGRPCStatus(err)
	}
	span.SetAttributes(
		attribute.Int64("raft.response_term", resp.Term),
		attribute.Bool("raft.vote_granted", resp.VoteGranted),
		attribute.Int64("raft.remaining_leader_lease_ns", int64(resp.RemainingLeaderLease)),
	)
	return requestVoteResponseToWire(resp), nil
}

// AppendEntries handles an AppendEntries RPC.
func (s *Server) AppendEntries(ctx context.Context, in *wireAppendEntriesRequest) (*wireAppendEntriesResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grpcconsensus.server.AppendEntries", oteltrace.WithAttributes(
		attribute.Int64("raft.term", in.Term),
		attribute.String("raft.leader_id", in.LeaderID),
		attribute.Int("raft.entries_count", len(in.Entries)),
	))
	defer span.End()

	resp, err := s.handler.HandleAppendEntries(ctx, appendEntriesRequestFromWire(in))
	if err != nil {
		recordSpanError(span, err)
		return nil, toGRPCStatus(err)
	}
	span.SetAttributes(
		attribute.Int64("raft.response_term", resp.Term),
		attribute.Bool("raft.append.success", resp.Success),
		attribute.Int64("raft.conflict_term", resp.ConflictTerm),
		attribute.Int64("raft.conflict_index", resp.ConflictIndex),
	)
	return appendEntriesResponseToWire(resp), nil
}

func recordSpanError(span oteltrace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, err.Error())
}

func toGRPCStatus(err error) error {
	if errors.Is(err, raft.ErrNodeDegraded) {
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
