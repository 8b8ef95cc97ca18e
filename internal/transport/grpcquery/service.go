package grpcquery

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	serviceName  = "table.v1.Table"
	methodGet    = "/" + serviceName + "/Get"
	methodPut    = "/" + serviceName + "/Put"
	methodDelete = "/" + serviceName + "/Delete"
	methodStatus = "/" + serviceName + "/Status"
)

// jsonCodec mirrors the consensus transport codec; registering twice is safe,
// the last registration wins and both encode identically.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                    { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Wire types for the client-facing table API.

type wireOpId struct {
	Term  int64 `json:"term"`
	Index int64 `json:"index"`
}

// GetRequest asks for a key. Stale selects the follower-tolerant read path
// that skips the leader-readiness gate.
type GetRequest struct {
	Key   string `json:"key"`
	Stale bool   `json:"stale,omitempty"`
}

// GetResponse carries the read result.
type GetResponse struct {
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// PutRequest proposes a replicated write.
type PutRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PutResponse reports the OpId assigned to the committed write.
type PutResponse struct {
	OpId wireOpId `json:"op_id"`
}

// DeleteRequest proposes a replicated delete.
type DeleteRequest struct {
	Key string `json:"key"`
}

// DeleteResponse reports the OpId assigned to the committed delete.
type DeleteResponse struct {
	OpId wireOpId `json:"op_id"`
}

// StatusRequest asks for a diagnostic snapshot of the node.
type StatusRequest struct{}

// StatusResponse is a diagnostic snapshot of the node's consensus state.
type StatusResponse struct {
	NodeID            string   `json:"node_id"`
	LeaderID          string   `json:"leader_id,omitempty"`
	Role              string   `json:"role"`
	LeaderStatus      string   `json:"leader_status"`
	Term              int64    `json:"term"`
	LastReceivedOpId  wireOpId `json:"last_received_op_id"`
	LastCommittedOpId wireOpId `json:"last_committed_op_id"`
	LastApplied       int64    `json:"last_applied"`
	NoOpIndex         int64    `json:"no_op_index,omitempty"`
	LeaseHolder       string   `json:"lease_holder,omitempty"`
	LeaseRemainingNs  int64    `json:"lease_remaining_ns,omitempty"`
	PendingRounds     int      `json:"pending_rounds"`
	QuorumSize        int      `json:"quorum_size"`
	ClusterMembers    []string `json:"cluster_members,omitempty"`
	Degraded          bool     `json:"degraded"`
}

// tableServer defines the methods exposed over the wire.
type tableServer interface {
	Get(ctx context.Context, in *GetRequest) (*GetResponse, error)
	Put(ctx context.Context, in *PutRequest) (*PutResponse, error)
	Delete(ctx context.Context, in *DeleteRequest) (*DeleteResponse, error)
	Status(ctx context.Context, in *StatusRequest) (*StatusResponse, error)
}

var tableServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*tableServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: _Table_Get_Handler},
		{MethodName: "Put", Handler: _Table_Put_Handler},
		{MethodName: "Delete", Handler: _Table_Delete_Handler},
		{MethodName: "Status", Handler: _Table_Status_Handler},
	},
}

func _Table_Get_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tableServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodGet}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(tableServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Table_Put_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tableServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPut}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(tableServer).Put(ctx, req.(*PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Table_Delete_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tableServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDelete}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(tableServer).Delete(ctx, req.(*DeleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Table_Status_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(tableServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodStatus}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(tableServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}
