package grpcconsensus

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName         = "consensus.v1.Consensus"
	methodRequestVote   = "/" + serviceName + "/RequestVote"
	methodAppendEntries = "/" + serviceName + "/AppendEntries"
)

// consensusServer defines the methods exposed over the wire.
type consensusServer interface {
	RequestVote(ctx context.Context, in *wireRequestVoteRequest) (*wireRequestVoteResponse, error)
	AppendEntries(ctx context.Context, in *wireAppendEntriesRequest) (*wireAppendEntriesResponse, error)
}

// Service descriptor and handlers (hand-written, no codegen required).
var consensusServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*consensusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVote", Handler: _Consensus_RequestVote_Handler},
		{MethodName: "AppendEntries", Handler: _Consensus_AppendEntries_Handler},
	},
}

func _Consensus_RequestVote_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wireRequestVoteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(consensusServer).RequestVote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodRequestVote}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(consensusServer).RequestVote(ctx, req.(*wireRequestVoteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Consensus_AppendEntries_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wireAppendEntriesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(consensusServer).AppendEntries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAppendEntries}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(consensusServer).AppendEntries(ctx, req.(*wireAppendEntriesRequest))
	}
	return interceptor(ctx, in, info, handler)
}
