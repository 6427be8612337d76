// Package client is a thin gRPC client for the booking service in
// server/grpc_server.go.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"raftbooking/booking"
	"raftbooking/server"
	"raftbooking/transport"
)

// BookingClient is a gRPC client for the Booking service.
type BookingClient struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewBookingClient dials serverAddr.
func NewBookingClient(serverAddr string) (*BookingClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(ctx, serverAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	return &BookingClient{conn: conn, timeout: 5 * time.Second}, nil
}

// SubmitCommand submits a booking command and returns the server's
// response, which may reject with a leader hint if addr is not
// currently the leader.
func (c *BookingClient) SubmitCommand(cmd *booking.Command) (*server.SubmitCommandResponse, error) {
	data, err := cmd.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp := new(server.SubmitCommandResponse)
	req := &server.SubmitCommandRequest{Command: data}
	if err := c.conn.Invoke(ctx, "/raftbooking.Booking/SubmitCommand", req, resp, grpc.CallContentSubtype(transport.ContentSubtype)); err != nil {
		return nil, fmt.Errorf("submit command rpc failed: %w", err)
	}
	return resp, nil
}

// GetBooking looks up a booking by id against this node's local
// ledger.
func (c *BookingClient) GetBooking(id string) (*booking.Booking, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp := new(server.GetBookingResponse)
	req := &server.GetBookingRequest{BookingID: id}
	if err := c.conn.Invoke(ctx, "/raftbooking.Booking/GetBooking", req, resp, grpc.CallContentSubtype(transport.ContentSubtype)); err != nil {
		return nil, false, fmt.Errorf("get booking rpc failed: %w", err)
	}
	return resp.Booking, resp.Found, nil
}

// Close closes the connection.
func (c *BookingClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
