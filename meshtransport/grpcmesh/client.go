package grpcmesh

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kindmesh/kindmesh/internal/meshlog"
)

// Dial connects to a grpcmesh Server at target and returns the peer's
// Transport, the active side of the pair.
func Dial(ctx context.Context, target string, log meshlog.Logger, extra ...grpc.DialOption) (*Transport, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, extra...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}

	stream, err := conn.NewStream(ctx, &serviceDesc.Streams[0], fullStreamMethod(), grpc.CallContentSubtype(CodecName))
	if err != nil {
		conn.Close()
		return nil, err
	}

	return newTransport(stream, log, conn.Close), nil
}
