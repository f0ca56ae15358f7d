package idchannel

import "context"

// Transport is the minimal byte-level collaborator an IdChannel multiplexes
// over. kindmesh ships three concrete
// implementations (meshtransport/inmem, /grpcmesh, /wsmesh); the interface
// itself is deliberately small, in the same protocol-first style as
// commbus.CommBus and commbus.Handler — a Transport only needs to move
// opaque frames, never anything IdChannel-specific.
type Transport interface {
	// Send writes one frame. It returns once the frame has been handed to
	// the underlying medium, not once a peer has acknowledged it.
	Send(ctx context.Context, frame []byte) error

	// Frames returns a channel of inbound frames. It is closed, with no
	// further sends, when the transport itself closes (cleanly or not);
	// callers distinguish the two by calling Err after the channel closes.
	Frames() <-chan []byte

	// Err returns the error that caused Frames to close, or nil if the
	// transport closed cleanly.
	Err() error

	// Close shuts the transport down. It is safe to call more than once.
	Close() error
}
