// Package grpcconsensus contains the consensus gRPC transport adapters. It
// runs on a hand-written service descriptor with a JSON codec, so no
// protobuf codegen is required.
package grpcconsensus

import (
	"context"
	"time"

	"google.golang.org/grpc"

	"github.com/ubante/yugabyte-db/internal/consensus/raft"
)

// DefaultCallTimeout bounds a peer RPC when the caller does not pick a
// timeout. The engine issues at most one AppendEntries per peer at a time,
// so an unbounded call would stall replication and lease renewal toward
// that peer until the process exits.
const DefaultCallTimeout = time.Second

// PeerClient implements raft.PeerClient over a gRPC connection.
type PeerClient struct {
	conn        *grpc.ClientConn
	callTimeout time.Duration
}

// Dial connects to a remote peer and returns a PeerClient. Every RPC issued
// through the client carries a deadline of callTimeout (DefaultCallTimeout
// when callTimeout is not positive). The connection is established lazily on
// the first RPC call.
func Dial(target string, callTimeout time.Duration, opts ...grpc.DialOption) (*PeerClient, error) {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	opts = append(opts,
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &PeerClient{conn: conn, callTimeout: callTimeout}, nil
}

// RequestVote calls the remote RequestVote RPC.
func (c *PeerClient) RequestVote(ctx context.Context, req *raft.RequestVoteRequest) (*raft.RequestVoteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	out := new(wireRequestVoteResponse)
	if err := c.conn.Invoke(ctx, methodRequestVote, requestVoteRequestToWire(req), out); err != nil {
		return nil, err
	}
	return requestVoteResponseFromWire(out), nil
}

// AppendEntries calls the remote AppendEntries RPC.
func (c *PeerClient) AppendEntries(ctx context.Context, req *raft.AppendEntriesRequest) (*raft.AppendEntriesResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	out := new(wireAppendEntriesResponse)
	if err := c.conn.Invoke(ctx, methodAppendEntries, appendEntriesRequestToWire(req), out); err != nil {
		return nil, err
	}
	return appendEntriesResponseFromWire(out), nil
}

// Close closes the underlying gRPC connection to the peer.
func (c *PeerClient) Close() error {
	return c.conn.Close()
}
