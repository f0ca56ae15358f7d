package idchannel

import (
	"fmt"
	"sync/atomic"
)

// ForkID identifies one logical sub-channel multiplexed over a single
// Transport. Fork 0 is reserved for the root value DeconstructRoot sends;
// NewWith installs its table entry before anything else runs.
type ForkID uint64

// RootForkID is the fork the top-level value travels on.
const RootForkID ForkID = 0

// ForkRef is the wire-visible handle to a fork: the only thing that ever
// crosses the transport to name one. It is a plain serializable struct
// around a uint64, so it can appear inside any other Kind's
// ConstructItem/DeconstructItem, e.g. FutureKind's fResultItem or
// SinkKind's sinkEnvelope.
type ForkRef struct {
	ID ForkID `json:"id" msgpack:"id"`
}

func (r ForkRef) String() string { return fmt.Sprintf("fork(%d)", r.ID) }

// idAllocator hands out fork IDs from one of the two disjoint parities
//: the active peer in a
// connection allocates even IDs, the passive peer odd ones, so two
// independently-operating endpoints never collide without a handshake.
type idAllocator struct {
	next uint64
}

func newIDAllocator(active bool) *idAllocator {
	start := uint64(2)
	if !active {
		start = uint64(3)
	}
	return &idAllocator{next: start}
}

func (a *idAllocator) alloc() ForkID {
	id := atomic.AddUint64(&a.next, 2) - 2
	return ForkID(id)
}
