package kind

import (
	"context"
	"sync"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/typeutil"
	"github.com/kindmesh/kindmesh/meshformat"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Sink accepts a sequence of T values one at a time, reporting E if a
// value is rejected. It is the Go translation of a KindSink-shaped type
// that gates every send behind the fork opened for the previous item
// resolving, so a caller can never have two items in flight on the same
// Sink at once. kindmesh keeps that single-in-flight guarantee with a
// mutex instead of a poll_ready future, since Go's Send is a blocking call
// rather than a poll-based Sink trait method.
type Sink[T, E any] struct {
	mu   sync.Mutex
	send func(ctx context.Context, value T) error
}

// Send delivers value and blocks until the peer has acknowledged or
// rejected it, giving Sink its single-in-flight guarantee.
func (s *Sink[T, E]) Send(ctx context.Context, value T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(ctx, value)
}

// Consume is the receiving side's per-item hook: it runs
// once per item, in order, one at a time, and returns non-nil to reject
// the item with an E value forked back to the sender, mirroring a
// deconstruct loop's `channel.next()` -> `get_fork` -> `self.send` -> on
// error, fork the error back.
type Consume[T, E any] func(ctx context.Context, value T) *E

// sinkItem is SinkKind's ConstructItem/DeconstructItem: the ForkRef of the
// Sink's own persistent channel, the fork its stream of per-item envelopes
// travels on.
type sinkItem struct {
	Channel idchannel.ForkRef `json:"channel" msgpack:"channel"`
}

// sinkEnvelope is one item crossing the Sink's channel fork: the forked
// value itself, plus a fork the sender opens just for this item's
// acknowledgement.
type sinkEnvelope struct {
	Value idchannel.ForkRef `json:"value" msgpack:"value"`
	Ack   idchannel.ForkRef `json:"ack" msgpack:"ack"`
}

// sinkAck is what comes back on a sinkEnvelope's Ack fork: no Err fork
// means the item was accepted.
type sinkAck struct {
	Err *idchannel.ForkRef `json:"err,omitempty" msgpack:"err,omitempty"`
}

// SinkKind is the Kind for Sink[T, E], parameterized by the Kinds that
// encode its items (T) and its rejection value (E).
type SinkKind[T, E any] struct {
	id       meshregistry.TypeID
	itemKind idchannel.Kind[T]
	errKind  idchannel.Kind[E]
	consume  Consume[T, E]
}

// NewSinkKind builds the SinkKind for Sink[T, E]. consume runs on the
// deconstructing (receiving) side for every item that arrives; it may be
// nil on a Kind only ever used to construct (push into) a Sink.
func NewSinkKind[T, E any](id meshregistry.TypeID, itemKind idchannel.Kind[T], errKind idchannel.Kind[E], consume Consume[T, E]) SinkKind[T, E] {
	k := SinkKind[T, E]{id: id, itemKind: itemKind, errKind: errKind, consume: consume}
	meshregistry.Register(id, func() any { return k.NewConstructItem() })
	return k
}

func (k SinkKind[T, E]) TypeID() meshregistry.TypeID { return k.id }

// Deconstruct opens the Sink's channel fork and spawns the loop that reads
// each envelope the peer pushes, hands its value to k.consume, and forks
// the acknowledgement (or rejection) back over the envelope's ack fork.
// value is unused: the real consumer lives in k.consume, not in the local
// *Sink[T, E] handle, since deconstructing is what makes this side the
// host that receives pushed items.
func (k SinkKind[T, E]) Deconstruct(ctx context.Context, value *Sink[T, E], f idchannel.Forker) (any, error) {
	channelRef, _ := f.OpenFork()
	channelRaw := f.AttachFork(channelRef)
	go func() {
		for raw := range channelRaw {
			decoded, err := f.Format().Unmarshal(raw, meshformat.SeedFunc(func() any { return new(sinkEnvelope) }))
			if err != nil {
				f.Logger().Error("kind: sink envelope decode failed", "error", err)
				continue
			}
			envelope := typeutil.Must[*sinkEnvelope](decoded, "kind.SinkKind.Deconstruct envelope")
			v, err := idchannel.GetFork(ctx, f, k.itemKind, envelope.Value)
			if err != nil {
				f.Logger().Error("kind: sink item get_fork failed", "error", err)
				continue
			}
			var rejected *E
			if k.consume != nil {
				rejected = k.consume(ctx, v)
			}
			ack := sinkAck{}
			if rejected != nil {
				ref, err := idchannel.Fork(ctx, f, k.errKind, *rejected)
				if err != nil {
					f.Logger().Error("kind: sink rejection fork failed", "error", err)
					continue
				}
				ack.Err = &ref
			}
			payload, err := f.Format().Marshal(ack)
			if err != nil {
				f.Logger().Error("kind: sink ack marshal failed", "error", err)
				continue
			}
			if err := f.BindSender(envelope.Ack)(ctx, payload); err != nil {
				f.Logger().Error("kind: sink ack send failed", "error", err)
			}
		}
	}()
	return &sinkItem{Channel: channelRef}, nil
}

// Construct binds to the Sink's channel fork and wires the returned
// *Sink[T, E]'s Send to, per item: fork the value, open a fresh ack fork,
// send the envelope, then block until the ack (or rejection) arrives — the
// single-in-flight gate. This is the pushable proxy handed back to whoever
// called GetFork.
func (k SinkKind[T, E]) Construct(ctx context.Context, item any, f idchannel.Forker) (*Sink[T, E], error) {
	wire, ok := typeutil.Safe[*sinkItem](item)
	if !ok {
		return nil, &WrongConstructItemError{Want: k.id}
	}
	channelSend := f.BindSender(wire.Channel)
	sink := &Sink[T, E]{}
	sink.send = func(ctx context.Context, v T) error {
		valueRef, err := idchannel.Fork(ctx, f, k.itemKind, v)
		if err != nil {
			return err
		}
		ackRef, _ := f.OpenFork()
		envelope := sinkEnvelope{Value: valueRef, Ack: ackRef}
		payload, err := f.Format().Marshal(envelope)
		if err != nil {
			return err
		}
		if err := channelSend(ctx, payload); err != nil {
			return err
		}
		ackRaw := f.AttachFork(ackRef)
		select {
		case raw, ok := <-ackRaw:
			f.CloseFork(ackRef.ID)
			if !ok {
				return idchannel.NewRoutingError(ackRef.ID, "sink ack fork closed before acknowledging")
			}
			ack, err := f.Format().Unmarshal(raw, meshformat.SeedFunc(func() any { return new(sinkAck) }))
			if err != nil {
				return idchannel.NewDecodeError(ackRef.ID, err)
			}
			ackVal := typeutil.Must[*sinkAck](ack, "kind.SinkKind.Construct ack")
			if ackVal.Err == nil {
				return nil
			}
			rejection, err := idchannel.GetFork(ctx, f, k.errKind, *ackVal.Err)
			if err != nil {
				return err
			}
			return sinkRejected[E]{value: rejection}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sink, nil
}

func (k SinkKind[T, E]) NewConstructItem() any { return new(sinkItem) }

type sinkRejected[E any] struct{ value E }

func (sinkRejected[E]) Error() string { return "kind: sink rejected item" }
