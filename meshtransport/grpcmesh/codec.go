// Package grpcmesh is the gRPC-backed idchannel.Transport: each peer holds
// one bidirectional stream of opaque frames, the same "move bytes, nothing
// IdChannel-specific" contract idchannel.Transport asks for. With no
// protoc-generated request/response types available, grpcmesh defines its
// own minimal streaming service by hand against a raw byte frame and a
// passthrough codec, instead of fabricating generated stubs.
package grpcmesh

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered with google.golang.org/grpc/encoding so both ends
// of a kindmesh gRPC stream use the same opaque-bytes wire codec instead of
// protobuf.
const CodecName = "kindmesh-raw"

// frame is the only message type any kindmesh gRPC stream ever carries: one
// opaque, already-framed payload produced by a meshformat.Format's
// JoinFrame.
type frame struct {
	Data []byte
}

type rawCodec struct{}

func (rawCodec) Name() string { return CodecName }

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*frame)
	if !ok {
		return nil, fmt.Errorf("grpcmesh: codec got %T, want *frame", v)
	}
	return f.Data, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*frame)
	if !ok {
		return fmt.Errorf("grpcmesh: codec got %T, want *frame", v)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.Data = cp
	return nil
}

func init() {
	encoding.RegisterCodec(rawCodec{})
}
