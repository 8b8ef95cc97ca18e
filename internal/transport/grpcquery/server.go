// Package grpcquery contains the client-facing table gRPC adapters. Like the
// consensus transport it runs on a hand-written service descriptor with a
// JSON codec.
package grpcquery

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ubante/yugabyte-db/internal/consensus"
	"github.com/ubante/yugabyte-db/internal/consensus/raft"
	"github.com/ubante/yugabyte-db/internal/service"
)

// Handler is the subset of *service.Table required by the gRPC server.
// *service.Table satisfies this interface.
type Handler interface {
	Get(ctx context.Context, key string) (string, bool, error)
	GetStale(ctx context.Context, key string) (string, bool)
	Put(ctx context.Context, key, value string) (consensus.OpId, error)
	Delete(ctx context.Context, key string) (consensus.OpId, error)
}

// Inspector is the subset of *raft.Node required by the Status RPC.
type Inspector interface {
	AdminState() raft.AdminState
	Consensus() *consensus.Consensus
}

// Server exposes the table service over gRPC by delegating to a table
// service and, for diagnostics, the engine node.
type Server struct {
	handler   Handler
	inspector Inspector
}

// NewServer creates a table gRPC server adapter for the provided handler.
func NewServer(handler Handler, inspector Inspector) *Server {
	return &Server{handler: handler, inspector: inspector}
}

// Register registers the table service on srv.
func (s *Server) Register(srv *grpc.Server) {
	srv.RegisterService(&tableServiceDesc, s)
}

// Get handles a read. Non-stale reads go through the leader-readiness gate.
func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	if req.Stale {
		value, found := s.handler.GetStale(ctx, req.Key)
		return &GetResponse{Value: value, Found: found}, nil
	}
	value, found, err := s.handler.Get(ctx, req.Key)
	if err != nil {
		return nil, toGRPCStatus(err)
	}
	return &GetResponse{Value: value, Found: found}, nil
}

// Put handles a replicated write.
func (s *Server) Put(ctx context.Context, req *PutRequest) (*PutResponse, error) {
	id, err := s.handler.Put(ctx, req.Key, req.Value)
	if err != nil {
		return nil, toGRPCStatus(err)
	}
	return &PutResponse{OpId: wireOpId{Term: id.Term, Index: id.Index}}, nil
}

// Delete handles a replicated delete.
func (s *Server) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	id, err := s.handler.Delete(ctx, req.Key)
	if err != nil {
		return nil, toGRPCStatus(err)
	}
	return &DeleteResponse{OpId: wireOpId{Term: id.Term, Index: id.Index}}, nil
}

// Status returns a diagnostic snapshot of the node's consensus state.
func (s *Server) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	if s.inspector == nil {
		return nil, status.Error(codes.Unimplemented, "status not available")
	}

	st := s.inspector.AdminState()
	facade := s.inspector.Consensus()

	out := &StatusResponse{
		NodeID:         st.NodeID,
		LeaderID:       st.LeaderID,
		Role:           st.Role.String(),
		LeaderStatus:   st.LeaderStatus.String(),
		Term:           st.Term,
		LastApplied:    st.LastApplied,
		NoOpIndex:      st.NoOpIndex,
		LeaseHolder:    st.LeaseHolder,
		PendingRounds:  st.PendingRounds,
		QuorumSize:     st.QuorumSize,
		ClusterMembers: st.ClusterMembers,
		Degraded:       st.Status == raft.NodeStatusDegraded,
	}
	if remaining := time.Until(st.LeaseExpiresAt); remaining > 0 {
		out.LeaseRemainingNs = remaining.Nanoseconds()
	}

	if id, err := facade.GetLastOpId(consensus.ReceivedOpId); err == nil {
		out.LastReceivedOpId = wireOpId{Term: id.Term, Index: id.Index}
	}
	if id, err := facade.GetLastOpId(consensus.CommittedOpId); err == nil {
		out.LastCommittedOpId = wireOpId{Term: id.Term, Index: id.Index}
	}

	return out, nil
}

// toGRPCStatus maps the readiness error taxonomy onto gRPC status codes:
// not-leader is a precondition failure the client should route around,
// not-ready and no-lease are transient, an aborted round is a clean abort
// the client may retry on the new leader.
func toGRPCStatus(err error) error {
	switch {
	case errors.Is(err, consensus.ErrNotLeader):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, consensus.ErrLeaderNotReadyToServe):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, consensus.ErrLeaderHasNoLease):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, consensus.ErrRoundAborted):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, consensus.ErrInvalidOpIdType):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrCommitTimeout):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, raft.ErrNodeDegraded):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
