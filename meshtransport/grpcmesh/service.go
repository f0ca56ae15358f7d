package grpcmesh

import "google.golang.org/grpc"

const (
	serviceName = "kindmesh.Mesh"
	streamName  = "Stream"
)

// streamHandler adapts a raw bidi-stream handler func to grpc.ServiceDesc's
// expected shape.
func streamHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Server).handleStream(stream)
}

// serviceDesc is the hand-written equivalent of what protoc-gen-go-grpc
// would emit for a `service Mesh { rpc Stream(stream Frame) returns (stream
// Frame); }` proto file; kindmesh has no such file in its retrieved pack
// (see codec.go), so the descriptor is built directly against grpc.Server's
// public registration API instead.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods:     nil,
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamName,
			Handler:       streamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "kindmesh/grpcmesh.proto",
}

func fullStreamMethod() string {
	return "/" + serviceName + "/" + streamName
}
