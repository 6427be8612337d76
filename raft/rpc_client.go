// raft/rpc_client.go
package raft

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"raftbooking/transport"
)

// GRPCRaftClient implements RPCClient over plain grpc.ClientConn.Invoke
// calls against the hand-authored raftServiceDesc, using transport's
// JSON codec instead of protobuf marshaling.
type GRPCRaftClient struct {
	mu          sync.Mutex
	connections map[string]*grpc.ClientConn
	timeout     time.Duration
}

// NewGRPCRaftClient creates a new gRPC client.
func NewGRPCRaftClient() *GRPCRaftClient {
	return &GRPCRaftClient{
		connections: make(map[string]*grpc.ClientConn),
		timeout:     2 * time.Second,
	}
}

func (c *GRPCRaftClient) getConnection(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.connections[address]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	c.connections[address] = conn
	return conn, nil
}

// RequestVote sends a RequestVote RPC to a peer.
func (c *GRPCRaftClient) RequestVote(address string, req *RequestVoteRequest) (*RequestVoteResponse, error) {
	conn, err := c.getConnection(address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp := new(RequestVoteResponse)
	if err := conn.Invoke(ctx, "/raftbooking.Raft/RequestVote", req, resp, grpc.CallContentSubtype(transport.ContentSubtype)); err != nil {
		return nil, err
	}
	return resp, nil
}

// AppendEntries sends an AppendEntries RPC to a peer.
func (c *GRPCRaftClient) AppendEntries(address string, req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	conn, err := c.getConnection(address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp := new(AppendEntriesResponse)
	if err := conn.Invoke(ctx, "/raftbooking.Raft/AppendEntries", req, resp, grpc.CallContentSubtype(transport.ContentSubtype)); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes all connections.
func (c *GRPCRaftClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.connections {
		conn.Close()
	}
}
