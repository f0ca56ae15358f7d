package grpcmesh

import (
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kindmesh/kindmesh/internal/meshlog"
)

// Server accepts gRPC-backed peers and hands each accepted stream to the
// caller as an idchannel.Transport: a thin wrapper around *grpc.Server that
// wires standard interceptors and leaves request handling to the caller.
type Server struct {
	grpcServer *grpc.Server
	log        meshlog.Logger
	accept     chan *Transport
}

// NewServer builds a Server instrumented with otelgrpc tracing, swapped
// from logging/recovery unary interceptors to a stats handler since
// grpcmesh's only RPC is a bidi stream.
func NewServer(log meshlog.Logger, extra ...grpc.ServerOption) *Server {
	opts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	}, extra...)
	s := &Server{
		grpcServer: grpc.NewServer(opts...),
		log:        meshlog.OrDefault(log),
		accept:     make(chan *Transport),
	}
	s.grpcServer.RegisterService(&serviceDesc, s)
	return s
}

// Accept returns the next connected peer's Transport, or nil once the
// server has stopped.
func (s *Server) Accept() *Transport {
	t, ok := <-s.accept
	if !ok {
		return nil
	}
	return t
}

// Serve accepts connections on lis until the server is stopped.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server, closing the Accept channel.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
	close(s.accept)
}

func (s *Server) handleStream(stream grpc.ServerStream) error {
	t := newTransport(stream, s.log, func() error { return nil })
	select {
	case s.accept <- t:
	case <-stream.Context().Done():
		return status.Error(codes.Canceled, "grpcmesh: stream canceled before accept")
	}
	<-t.RecvDone()
	return t.Err()
}
