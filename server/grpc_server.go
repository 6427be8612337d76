// Package server fronts a raft.RaftNode with the client-facing
// booking service described in spec.md §4.6/§6: submit an opaque
// command to the replicated log, or look up a committed booking
// directly from the local ledger.
package server

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"raftbooking/booking"
	"raftbooking/raft"

	_ "raftbooking/transport" // registers the JSON wire codec
)

// SubmitCommandRequest carries an opaque, already-encoded booking
// command, mirroring the `db <opaque-command-bytes>` verb of §4.6.
type SubmitCommandRequest struct {
	Command []byte
}

// SubmitCommandResponse mirrors the `<indexOrLeaderHint> <0|1>` reply:
// on success Index is the assigned log index; on rejection LeaderHint
// names the last known leader so the caller can redirect.
type SubmitCommandResponse struct {
	Success    bool
	Index      uint64
	LeaderHint string
	Error      string
}

// GetBookingRequest looks a booking up by id.
type GetBookingRequest struct {
	BookingID string
}

// GetBookingResponse is a direct, non-linearizable read against this
// node's local ledger (read-with-lease optimization is out of scope
// per spec.md's non-goals, so this may be stale on a partitioned
// follower).
type GetBookingResponse struct {
	Found   bool
	Booking *booking.Booking
}

// GRPCServer is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit for a two-RPC "Booking" service, carried over transport's
// JSON codec rather than protobuf, for the same reason raft/rpc_server.go
// avoids generated stubs (see DESIGN.md).
type GRPCServer struct {
	node     *raft.RaftNode
	ledger   *booking.Ledger
	server   *grpc.Server
	listener net.Listener
}

// NewGRPCServer creates a new gRPC server fronting node and ledger.
func NewGRPCServer(node *raft.RaftNode, ledger *booking.Ledger) *GRPCServer {
	return &GRPCServer{node: node, ledger: ledger}
}

// Start starts the gRPC server.
func (s *GRPCServer) Start(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = lis

	s.server = grpc.NewServer()
	s.server.RegisterService(&bookingServiceDesc, s)

	go s.server.Serve(lis)

	return nil
}

// Stop stops the gRPC server.
func (s *GRPCServer) Stop() {
	if s.server != nil {
		s.server.GracefulStop()
	}
}

func (s *GRPCServer) submitCommand(ctx context.Context, req *SubmitCommandRequest) (*SubmitCommandResponse, error) {
	index, err := s.node.SubmitCommand(req.Command)
	if err != nil {
		return &SubmitCommandResponse{
			Success:    false,
			LeaderHint: s.node.LeaderHint(),
			Error:      err.Error(),
		}, nil
	}
	return &SubmitCommandResponse{Success: true, Index: index}, nil
}

func (s *GRPCServer) getBooking(ctx context.Context, req *GetBookingRequest) (*GetBookingResponse, error) {
	b, ok := s.ledger.Get(req.BookingID)
	return &GetBookingResponse{Found: ok, Booking: b}, nil
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: "raftbooking.Booking",
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitCommand",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(SubmitCommandRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				s := srv.(*GRPCServer)
				if interceptor == nil {
					return s.submitCommand(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftbooking.Booking/SubmitCommand"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.submitCommand(ctx, req.(*SubmitCommandRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "GetBooking",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(GetBookingRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				s := srv.(*GRPCServer)
				if interceptor == nil {
					return s.getBooking(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/raftbooking.Booking/GetBooking"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return s.getBooking(ctx, req.(*GetBookingRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Metadata: "server/grpc_server.go",
}
