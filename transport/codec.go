// Package transport provides the wire codec shared by every gRPC
// service in raftbooking. The cluster carries Raft RPCs and client
// booking commands over hand-authored grpc.ServiceDesc values (see
// raft/rpc_server.go and server/grpc_server.go) instead of
// protoc-generated stubs, so messages are plain Go structs marshaled
// with encoding/json rather than protocol buffers.
package transport

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// ContentSubtype selects this codec on outgoing calls via
// grpc.CallContentSubtype(transport.ContentSubtype).
const ContentSubtype = "raftjson"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return ContentSubtype }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
