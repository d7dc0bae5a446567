package backend

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec implements encoding.Codec for the remote backend's gRPC calls.
// The teacher's router talks to workers through protoc-generated stubs;
// this system has no protobuf toolchain available, so the wire messages
// (runRequest/runResponse in remote.go) travel as plain JSON over the same
// grpc.ClientConn machinery instead. The RPC framing, deadlines, retries
// and connection pooling are still genuinely grpc's — only the payload
// encoding differs from the teacher's.
type jsonCodec struct{}

const jsonCodecName = "json"

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
