// Package idchannel implements IdChannel, the fork multiplexer at the core
// of kindmesh: it splits the single byte stream a Transport provides into
// an unbounded number of logical forks, each carrying one Kind's
// construct/deconstruct traffic, and routes inbound frames to the fork a
// consumer has attached to — buffering them as orphans when no consumer
// has attached yet.
//
// It is the Go translation of an IdChannel/IdChannelFork/ForkRef triple:
// where a Rust implementation leans on futures::sync::mpsc::unbounded
// channels and a lazy_static fork-id counter, this one uses goroutines, the
// unboundedQueue in queue.go, and an atomic allocator split by connection
// role (fork.go).
package idchannel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kindmesh/kindmesh/internal/meshconfig"
	"github.com/kindmesh/kindmesh/internal/meshlog"
	"github.com/kindmesh/kindmesh/meshformat"
	"github.com/kindmesh/kindmesh/meshobserve"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Kind is the contract every transportable Go type implements.
// ConstructItem/DeconstructItem travel as the `item` values here; concrete
// shapes are ordinary Go structs/unions the kind package defines per type.
// Construct/Deconstruct both take a Forker so composite Kinds (Future,
// Sink, Stream, and user aggregates) can open child forks of their own.
type Kind[T any] interface {
	// TypeID names this Kind for meshregistry, reflectmesh's method tables,
	// and diagnostics.
	TypeID() meshregistry.TypeID

	// Deconstruct tears value down into the ConstructItem the peer's
	// Construct consumes, opening whatever child forks it needs through f.
	Deconstruct(ctx context.Context, value T, f Forker) (item any, err error)

	// Construct rebuilds a T from a ConstructItem received from the peer,
	// reading whatever child forks it names through f.
	Construct(ctx context.Context, item any, f Forker) (value T, err error)

	// NewConstructItem returns a fresh pointer to this Kind's ConstructItem
	// shape, for Format.Unmarshal to decode into before Construct runs.
	NewConstructItem() any
}

// RawSender writes one already-encoded payload onto the fork it was handed
// out for.
type RawSender func(ctx context.Context, payload []byte) error

// Forker is the fork-table side of the contract a Kind's Construct and
// Deconstruct methods close over — the Go analogue of a `trait Fork`. It
// is implemented by *IdChannel; most Kinds only ever call
// it indirectly through Fork/GetFork, but Kinds that carry an open-ended
// stream of items on one fork (Sink, Stream) drive OpenFork/AttachFork
// directly.
type Forker interface {
	// OpenFork allocates a new fork, installs it, and returns its ForkRef
	// together with a function to send encoded payloads on it.
	OpenFork() (ForkRef, RawSender)

	// AttachFork attaches to an existing (possibly not-yet-arrived) fork
	// and returns its inbound raw-payload channel.
	AttachFork(ref ForkRef) <-chan []byte

	// CloseFork tears a fork down once both sides are done with it.
	CloseFork(id ForkID)

	// Format exposes the channel's wire Format so a Kind can encode or
	// decode a payload directly instead of through Fork/GetFork.
	Format() meshformat.Format

	// Logger exposes the channel's logger for diagnostic messages.
	Logger() meshlog.Logger

	// Config exposes the channel's tunables, e.g. so reflectmesh can apply
	// CallTimeout as a Proxy's default deadline.
	Config() *meshconfig.Config

	// BindSender returns a RawSender for a fork ID handed to this side by
	// the peer, without allocating a new ID or table entry.
	BindSender(ref ForkRef) RawSender
}

// forkEntry tracks one fork's state. kindmesh resolves construct_type_id/deconstruct_type_id
// statically through Go generics at the Fork/GetFork call site instead of
// storing them in the table, so the table itself only needs queue/state.
type forkEntry struct {
	id     ForkID
	queue  *unboundedQueue
	closed bool
}

// IdChannel multiplexes one Transport into many forks.
type IdChannel struct {
	mu          sync.Mutex
	sessionID   uuid.UUID
	transport   Transport
	fmt_        meshformat.Format
	log         meshlog.Logger
	cfg         *meshconfig.Config
	active      bool
	alloc       *idAllocator
	forks       map[ForkID]*forkEntry
	orphans     map[ForkID][][]byte
	orphanSince map[ForkID]time.Time

	closeOnce sync.Once
	done      chan struct{}
	fatal     error
}

// SessionID identifies this IdChannel instance for logging and tracing
// (spans, log lines) across its lifetime, the way envelope.NewGenericEnvelope
// mints an EnvelopeID — it never appears on the wire and plays no part in
// fork routing.
func (c *IdChannel) SessionID() uuid.UUID { return c.sessionID }

// Option configures an IdChannel at construction.
type Option func(*IdChannel)

// WithLogger overrides the default meshlog.Logger.
func WithLogger(l meshlog.Logger) Option {
	return func(c *IdChannel) { c.log = meshlog.OrDefault(l) }
}

// WithConfig overrides the default meshconfig.Config.
func WithConfig(cfg *meshconfig.Config) Option {
	return func(c *IdChannel) { c.cfg = cfg }
}

// NewWith constructs an IdChannel over transport using format for wire
// encoding, and starts routing inbound frames. active selects this peer's
// fork-id parity; the active side is conventionally the one that dialed
// the connection. Fork 0 is reserved for the root value DeconstructRoot
// sends and ConstructRoot reads; its table entry is installed before the
// background route loop spawns.
func NewWith(transport Transport, format meshformat.Format, active bool, opts ...Option) *IdChannel {
	c := &IdChannel{
		sessionID:   uuid.New(),
		transport:   transport,
		fmt_:        format,
		log:         meshlog.Default(),
		cfg:         meshconfig.DefaultConfig(),
		active:      active,
		alloc:       newIDAllocator(active),
		forks:       make(map[ForkID]*forkEntry),
		orphans:     make(map[ForkID][][]byte),
		orphanSince: make(map[ForkID]time.Time),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.forks[RootForkID] = &forkEntry{id: RootForkID, queue: newUnboundedQueue(c.cfg.MaxForkQueueDepth)}
	go c.route()
	return c
}

// side names this peer's fork-id parity for forks-opened metrics.
func (c *IdChannel) side() string {
	if c.active {
		return "active"
	}
	return "passive"
}

// route drains the transport and delivers each frame to its fork, buffering
// frames for forks with no attached consumer yet as orphans.
func (c *IdChannel) route() {
	frames := c.transport.Frames()
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				c.fail(NewTransportError(c.transport.Err()))
				return
			}
			forkID, payload, err := c.fmt_.SplitFrame(frame)
			if err != nil {
				c.log.Error("idchannel: dropping unparseable frame", "error", err)
				continue
			}
			c.deliver(ForkID(forkID), payload)
		case <-c.done:
			return
		}
	}
}

func (c *IdChannel) deliver(id ForkID, payload []byte) {
	c.mu.Lock()
	if c.cfg.OrphanGracePeriod > 0 {
		c.pruneOrphansLocked()
	}
	entry, ok := c.forks[id]
	if !ok {
		if c.cfg.MaxOrphanQueueDepth > 0 && len(c.orphans[id]) >= c.cfg.MaxOrphanQueueDepth {
			c.mu.Unlock()
			c.log.Warn("idchannel: orphan queue full, dropping frame",
				"fork", id, "error", NewRoutingError(id, "orphan queue depth exceeded"))
			c.recordFrameRouted("dropped")
			return
		}
		if _, seen := c.orphanSince[id]; !seen {
			c.orphanSince[id] = time.Now()
		}
		c.orphans[id] = append(c.orphans[id], payload)
		c.mu.Unlock()
		c.recordFrameRouted("orphaned")
		return
	}
	c.mu.Unlock()
	if !entry.queue.push(payload) {
		c.log.Warn("idchannel: fork queue full, dropping frame",
			"fork", id, "error", NewRoutingError(id, "fork queue depth exceeded"))
		c.recordFrameRouted("dropped")
		return
	}
	c.recordFrameRouted("delivered")
}

// pruneOrphansLocked drops any orphan buffer whose consumer has not
// attached within cfg.OrphanGracePeriod, logging the RoutingError that
// describes why. Callers must hold c.mu.
func (c *IdChannel) pruneOrphansLocked() {
	cutoff := time.Now().Add(-c.cfg.OrphanGracePeriod)
	for id, since := range c.orphanSince {
		if since.After(cutoff) {
			continue
		}
		delete(c.orphans, id)
		delete(c.orphanSince, id)
		c.log.Error("idchannel: orphan grace period expired, dropping buffered frames",
			"fork", id, "error", NewRoutingError(id, "no consumer attached before orphan grace period elapsed"))
		c.recordFrameRouted("dropped")
	}
}

func (c *IdChannel) recordFrameRouted(outcome string) {
	if c.cfg.EnableTelemetry {
		meshobserve.RecordFrameRouted(outcome)
	}
}

func (c *IdChannel) fail(err error) {
	c.closeOnce.Do(func() {
		c.fatal = err
		close(c.done)
		c.mu.Lock()
		for _, e := range c.forks {
			e.queue.closeInput()
		}
		c.mu.Unlock()
	})
}

// Err returns the fatal error that stopped routing, if any.
func (c *IdChannel) Err() error { return c.fatal }

// Close shuts the channel and its transport down.
func (c *IdChannel) Close() error {
	c.fail(fmt.Errorf("idchannel: closed"))
	return c.transport.Close()
}

func (c *IdChannel) OpenFork() (ForkRef, RawSender) {
	id := c.alloc.alloc()
	c.mu.Lock()
	c.forks[id] = &forkEntry{id: id, queue: newUnboundedQueue(c.cfg.MaxForkQueueDepth)}
	c.mu.Unlock()
	if c.cfg.EnableTelemetry {
		meshobserve.RecordForkOpened(c.side())
	}
	send := func(ctx context.Context, payload []byte) error {
		frame, err := c.fmt_.JoinFrame(uint64(id), payload)
		if err != nil {
			return NewDecodeError(id, err)
		}
		if err := c.transport.Send(ctx, frame); err != nil {
			return NewTransportError(err)
		}
		return nil
	}
	return ForkRef{ID: id}, send
}

func (c *IdChannel) AttachFork(ref ForkRef) <-chan []byte {
	c.mu.Lock()
	entry, ok := c.forks[ref.ID]
	if !ok {
		entry = &forkEntry{id: ref.ID, queue: newUnboundedQueue(c.cfg.MaxForkQueueDepth)}
		c.forks[ref.ID] = entry
		for _, payload := range c.orphans[ref.ID] {
			entry.queue.push(payload)
		}
		delete(c.orphans, ref.ID)
		delete(c.orphanSince, ref.ID)
	}
	c.mu.Unlock()
	return entry.queue.recv()
}

func (c *IdChannel) CloseFork(id ForkID) {
	c.mu.Lock()
	entry, ok := c.forks[id]
	if ok {
		entry.closed = true
		entry.queue.closeInput()
		delete(c.forks, id)
	}
	delete(c.orphans, id)
	c.mu.Unlock()
}

func (c *IdChannel) Format() meshformat.Format  { return c.fmt_ }
func (c *IdChannel) Logger() meshlog.Logger     { return c.log }
func (c *IdChannel) Config() *meshconfig.Config { return c.cfg }

// BindSender returns a RawSender for ref without allocating a new fork ID
// or installing an inbound table entry for it — the counterpart a peer
// uses to write onto a fork the other side opened, e.g. Sink's per-item
// acknowledgement fork.
func (c *IdChannel) BindSender(ref ForkRef) RawSender {
	return func(ctx context.Context, payload []byte) error {
		frame, err := c.fmt_.JoinFrame(uint64(ref.ID), payload)
		if err != nil {
			return NewDecodeError(ref.ID, err)
		}
		if err := c.transport.Send(ctx, frame); err != nil {
			return NewTransportError(err)
		}
		return nil
	}
}

// DeconstructRoot tears value down onto fork 0, the conventional entry
// point a freshly dialed IdChannel sends immediately.
func DeconstructRoot[T any](ctx context.Context, c *IdChannel, k Kind[T], value T) error {
	item, err := k.Deconstruct(ctx, value, c)
	if err != nil {
		return NewConstructionError(string(k.TypeID()), err)
	}
	payload, err := c.fmt_.Marshal(item)
	if err != nil {
		return NewDecodeError(RootForkID, err)
	}
	frame, err := c.fmt_.JoinFrame(uint64(RootForkID), payload)
	if err != nil {
		return NewDecodeError(RootForkID, err)
	}
	if err := c.transport.Send(ctx, frame); err != nil {
		return NewTransportError(err)
	}
	return nil
}

// ConstructRoot reads the root value off fork 0.
func ConstructRoot[T any](ctx context.Context, c *IdChannel, k Kind[T]) (T, error) {
	return GetFork(ctx, c, k, ForkRef{ID: RootForkID})
}

// Fork deconstructs value with k and opens a new fork to carry the
// resulting ConstructItem, returning the ForkRef to embed in the caller's
// own ConstructItem. Like GetFork, it refuses to put an unregistered Kind's
// item on the wire: the peer would hit the same fatal lookup miss trying
// to decode it.
func Fork[T any](ctx context.Context, f Forker, k Kind[T], value T) (ForkRef, error) {
	if !meshregistry.Default().Has(k.TypeID()) {
		return ForkRef{}, NewDecodeError(RootForkID, fmt.Errorf("idchannel: no registry entry for kind %q", k.TypeID()))
	}
	item, err := k.Deconstruct(ctx, value, f)
	if err != nil {
		return ForkRef{}, NewConstructionError(string(k.TypeID()), err)
	}
	ref, send := f.OpenFork()
	payload, err := f.Format().Marshal(item)
	if err != nil {
		return ForkRef{}, NewDecodeError(ref.ID, err)
	}
	if err := send(ctx, payload); err != nil {
		return ForkRef{}, err
	}
	return ref, nil
}

// GetFork attaches to ref and reconstructs a T from the ConstructItem
// frame(s) that arrive on it, via k.Construct. k's TypeID must have a
// registered meshregistry.Factory: deserializing a wire item whose Kind was
// never registered is a fatal protocol error, not a silent decode failure.
func GetFork[T any](ctx context.Context, f Forker, k Kind[T], ref ForkRef) (T, error) {
	var zero T
	if !meshregistry.Default().Has(k.TypeID()) {
		return zero, NewDecodeError(ref.ID, fmt.Errorf("idchannel: no registry entry for kind %q", k.TypeID()))
	}
	raw := f.AttachFork(ref)
	select {
	case payload, ok := <-raw:
		if !ok {
			return zero, NewRoutingError(ref.ID, "fork closed before any frame arrived")
		}
		item, err := f.Format().Unmarshal(payload, meshformat.SeedFunc(k.NewConstructItem))
		if err != nil {
			return zero, NewDecodeError(ref.ID, err)
		}
		start := time.Now()
		v, err := k.Construct(ctx, item, f)
		if f.Config().EnableTelemetry {
			meshobserve.RecordConstruct(string(k.TypeID()), time.Since(start).Seconds())
		}
		if err != nil {
			return zero, NewConstructionError(string(k.TypeID()), err)
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
