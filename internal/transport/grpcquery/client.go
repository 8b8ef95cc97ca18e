package grpcquery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ubante/yugabyte-db/internal/consensus"
)

// ErrNotLeader is returned when the targeted node is not the leader.
var ErrNotLeader = errors.New("table: node is not the leader")

// ErrLeaderNotReady is returned when the targeted node is the leader but is
// not yet allowed to serve (no-op uncommitted, lease not settled).
var ErrLeaderNotReady = errors.New("table: leader not ready to serve")

// ErrNoLeader is returned by ClusterClient when no node in the cluster
// accepted a write.
var ErrNoLeader = errors.New("table: no ready leader found in cluster")

// Client is a thin table-service client over one gRPC connection.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a table gRPC server at target.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts,
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("table client: dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Get fetches a key through the lease-protected read path.
func (c *Client) Get(ctx context.Context, key string) (value string, found bool, err error) {
	out := new(GetResponse)
	if err := c.conn.Invoke(ctx, methodGet, &GetRequest{Key: key}, out); err != nil {
		return "", false, fromGRPCStatus(err)
	}
	return out.Value, out.Found, nil
}

// GetStale fetches a key from the node's local state, leader or not.
func (c *Client) GetStale(ctx context.Context, key string) (value string, found bool, err error) {
	out := new(GetResponse)
	if err := c.conn.Invoke(ctx, methodGet, &GetRequest{Key: key, Stale: true}, out); err != nil {
		return "", false, fromGRPCStatus(err)
	}
	return out.Value, out.Found, nil
}

// Put sends a write request to a node.
func (c *Client) Put(ctx context.Context, key, value string) (consensus.OpId, error) {
	out := new(PutResponse)
	if err := c.conn.Invoke(ctx, methodPut, &PutRequest{Key: key, Value: value}, out); err != nil {
		return consensus.OpId{}, fromGRPCStatus(err)
	}
	return consensus.OpId{Term: out.OpId.Term, Index: out.OpId.Index}, nil
}

// Delete sends a delete request to a node.
func (c *Client) Delete(ctx context.Context, key string) (consensus.OpId, error) {
	out := new(DeleteResponse)
	if err := c.conn.Invoke(ctx, methodDelete, &DeleteRequest{Key: key}, out); err != nil {
		return consensus.OpId{}, fromGRPCStatus(err)
	}
	return consensus.OpId{Term: out.OpId.Term, Index: out.OpId.Index}, nil
}

// Status fetches the node's diagnostic snapshot.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.conn.Invoke(ctx, methodStatus, &StatusRequest{}, out); err != nil {
		return nil, fromGRPCStatus(err)
	}
	return out, nil
}

// ClusterClient connects to multiple nodes and routes requests automatically:
//   - Get: tries the leader hint first, falls back to other nodes;
//   - Put / Delete: tries all nodes until the ready leader accepts the write.
type ClusterClient struct {
	clients []*Client

	mu         sync.RWMutex
	leaderHint int // -1 means unknown
}

// DialCluster connects to all provided addresses and returns a ClusterClient.
// Connections are lazy (gRPC dials on first use), so this succeeds even if
// nodes are temporarily unavailable.
func DialCluster(addrs []string, opts ...grpc.DialOption) (*ClusterClient, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("table cluster client: no addresses provided")
	}
	clients := make([]*Client, 0, len(addrs))
	for _, addr := range addrs {
		c, err := Dial(addr, opts...)
		if err != nil {
			for _, cc := range clients {
				_ = cc.Close()
			}
			return nil, err
		}
		clients = append(clients, c)
	}
	return &ClusterClient{
		clients:    clients,
		leaderHint: -1,
	}, nil
}

// Close closes all underlying node client connections.
func (c *ClusterClient) Close() error {
	var errs []error
	for _, client := range c.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get routes a consistent read to the ready leader, trying nodes until one
// is allowed to serve it.
func (c *ClusterClient) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var found bool
	_, err := c.callLeader(ctx, func(client *Client) (consensus.OpId, error) {
		var err error
		value, found, err = client.Get(ctx, key)
		return consensus.OpId{}, err
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// GetStale tries nodes in random order and returns the first successful
// local read. Read results may lag the leader.
func (c *ClusterClient) GetStale(ctx context.Context, key string) (string, bool, error) {
	for _, i := range rand.Perm(len(c.clients)) {
		value, found, err := c.clients[i].GetStale(ctx, key)
		if err == nil {
			return value, found, nil
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
	}
	return "", false, fmt.Errorf("table: all %d nodes unavailable", len(c.clients))
}

// Put forwards the write to the ready leader, trying all nodes until one
// accepts.
func (c *ClusterClient) Put(ctx context.Context, key, value string) (consensus.OpId, error) {
	return c.callLeader(ctx, func(client *Client) (consensus.OpId, error) {
		return client.Put(ctx, key, value)
	})
}

// Delete forwards the delete to the ready leader, trying all nodes until one
// accepts.
func (c *ClusterClient) Delete(ctx context.Context, key string) (consensus.OpId, error) {
	return c.callLeader(ctx, func(client *Client) (consensus.OpId, error) {
		return client.Delete(ctx, key)
	})
}

// callLeader tries each node in hint-then-random order until one accepts.
// Nodes that respond with ErrNotLeader are skipped; a leader that is not
// ready yet keeps its hint, since it will likely become ready shortly.
func (c *ClusterClient) callLeader(ctx context.Context, fn func(*Client) (consensus.OpId, error)) (consensus.OpId, error) {
	var lastErr error
	for _, i := range c.callOrder() {
		id, err := fn(c.clients[i])
		if err == nil {
			c.setLeaderHint(i)
			return id, nil
		}
		lastErr = err
		if errors.Is(err, ErrNotLeader) {
			c.clearLeaderHintIf(i)
			continue
		}
		if errors.Is(err, ErrLeaderNotReady) {
			c.setLeaderHint(i)
			continue
		}
		if ctx.Err() != nil {
			return consensus.OpId{}, ctx.Err()
		}
		// Network or server error, try next node.
	}
	if lastErr != nil {
		return consensus.OpId{}, fmt.Errorf("%w: last error: %v", ErrNoLeader, lastErr)
	}
	return consensus.OpId{}, ErrNoLeader
}

func (c *ClusterClient) callOrder() []int {
	n := len(c.clients)
	order := make([]int, 0, n)

	hint := c.getLeaderHint()
	if hint >= 0 && hint < n {
		order = append(order, hint)
	}

	for _, i := range rand.Perm(n) {
		if i == hint {
			continue
		}
		order = append(order, i)
	}
	return order
}

func (c *ClusterClient) getLeaderHint() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.leaderHint
}

func (c *ClusterClient) setLeaderHint(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaderHint = i
}

func (c *ClusterClient) clearLeaderHintIf(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leaderHint == i {
		c.leaderHint = -1
	}
}

func fromGRPCStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.FailedPrecondition:
		return ErrNotLeader
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrLeaderNotReady, st.Message())
	default:
		return err
	}
}
