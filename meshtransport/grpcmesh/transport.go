package grpcmesh

import (
	"context"
	"io"
	"sync"

	"github.com/kindmesh/kindmesh/internal/meshlog"
	"github.com/kindmesh/kindmesh/meshobserve"
)

// grpcStream is the subset of grpc.ClientStream and grpc.ServerStream that
// Transport needs; both satisfy it, so one Transport implementation serves
// both a dialed and an accepted stream.
type grpcStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// Transport is an idchannel.Transport backed by one bidirectional gRPC
// stream of raw frames.
type Transport struct {
	stream grpcStream
	log    meshlog.Logger

	in       chan []byte
	recvDone chan struct{}

	mu     sync.Mutex
	closed bool
	err    error

	closeStream func() error
}

func newTransport(stream grpcStream, log meshlog.Logger, closeStream func() error) *Transport {
	t := &Transport{
		stream:      stream,
		log:         meshlog.OrDefault(log),
		in:          make(chan []byte, 64),
		recvDone:    make(chan struct{}),
		closeStream: closeStream,
	}
	go t.recvLoop()
	return t
}

// RecvDone is closed once the peer's send direction has ended (EOF) or the
// stream has failed; a server handler blocks on it to know when it is safe
// to return from the RPC.
func (t *Transport) RecvDone() <-chan struct{} { return t.recvDone }

func (t *Transport) recvLoop() {
	defer close(t.recvDone)
	defer close(t.in)
	for {
		var f frame
		if err := t.stream.RecvMsg(&f); err != nil {
			if err != io.EOF {
				t.fail(err)
			}
			return
		}
		meshobserve.RecordTransportRequest("grpcmesh", "recv")
		t.in <- f.Data
	}
}

func (t *Transport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		t.err = err
	}
}

func (t *Transport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return io.ErrClosedPipe
	}
	t.mu.Unlock()

	errCh := make(chan error, 1)
	go func() { errCh <- t.stream.SendMsg(&frame{Data: payload}) }()
	select {
	case err := <-errCh:
		status := "ok"
		if err != nil {
			status = "error"
		}
		meshobserve.RecordTransportRequest("grpcmesh", status)
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Frames() <-chan []byte { return t.in }

func (t *Transport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	if t.closeStream != nil {
		return t.closeStream()
	}
	return nil
}
