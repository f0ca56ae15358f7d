package kind

import (
	"context"
	"sync"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/typeutil"
	"github.com/kindmesh/kindmesh/meshformat"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Stream delivers a sequence of T values terminated by either a clean End
// or an E failure — the Go equivalent of a Stream Value impl whose
// ConstructItem is an enum of Item(ForkRef) | Err(ForkRef) | End.
type Stream[T, E any] struct {
	mu     sync.Mutex
	recvFn func(ctx context.Context) (T, bool, *E, error)
}

// Recv returns the next item. ok is false once the stream has ended
// cleanly; errVal is non-nil if the stream ended with a failure, and err
// reports a transport/context failure distinct from the stream's own E.
func (s *Stream[T, E]) Recv(ctx context.Context) (value T, ok bool, errVal *E, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recvFn(ctx)
}

// Produce is the deconstructing side's source of truth: it is called
// repeatedly until it reports done=true, optionally with a final failure.
type Produce[T, E any] func(ctx context.Context) (value T, done bool, errVal *E, err error)

// streamItem is StreamKind's ConstructItem/DeconstructItem: the ForkRef of
// the stream's own persistent channel, carrying one streamFrame per
// element plus a terminal frame.
type streamItem struct {
	Channel idchannel.ForkRef `json:"channel" msgpack:"channel"`
}

// streamFrame is one frame on a Stream's channel fork: exactly one of
// Item/Err/End is set, End=true signalling a clean end — the Go
// translation of an Item(ForkRef) | Err(ForkRef) | End enum. A frame with
// none of them set is rejected as a decode error.
type streamFrame struct {
	Item *idchannel.ForkRef `json:"item,omitempty" msgpack:"item,omitempty"`
	Err  *idchannel.ForkRef `json:"err,omitempty" msgpack:"err,omitempty"`
	End  bool               `json:"end,omitempty" msgpack:"end,omitempty"`
}

// StreamKind is the Kind for Stream[T, E].
type StreamKind[T, E any] struct {
	id       meshregistry.TypeID
	itemKind idchannel.Kind[T]
	errKind  idchannel.Kind[E]
	produce  Produce[T, E]
}

// NewStreamKind builds the StreamKind for Stream[T, E]. produce runs on the
// deconstructing (sending) side; it may be nil on a Kind only ever used to
// construct (receive) a Stream.
func NewStreamKind[T, E any](id meshregistry.TypeID, itemKind idchannel.Kind[T], errKind idchannel.Kind[E], produce Produce[T, E]) StreamKind[T, E] {
	k := StreamKind[T, E]{id: id, itemKind: itemKind, errKind: errKind, produce: produce}
	meshregistry.Register(id, func() any { return k.NewConstructItem() })
	return k
}

func (k StreamKind[T, E]) TypeID() meshregistry.TypeID { return k.id }

// Deconstruct opens the stream's channel fork and spawns the loop that
// pulls from produce and forwards each element, terminating with End or a
// forked E on failure.
func (k StreamKind[T, E]) Deconstruct(ctx context.Context, value *Stream[T, E], f idchannel.Forker) (any, error) {
	channelRef, send := f.OpenFork()
	go func() {
		for {
			v, done, errVal, err := k.produce(ctx)
			if err != nil {
				f.Logger().Error("kind: stream produce failed", "error", err)
				return
			}
			var frame streamFrame
			switch {
			case errVal != nil:
				ref, ferr := idchannel.Fork(ctx, f, k.errKind, *errVal)
				if ferr != nil {
					f.Logger().Error("kind: stream error fork failed", "error", ferr)
					return
				}
				frame = streamFrame{Err: &ref}
			case done:
				frame = streamFrame{End: true}
			default:
				ref, ferr := idchannel.Fork(ctx, f, k.itemKind, v)
				if ferr != nil {
					f.Logger().Error("kind: stream item fork failed", "error", ferr)
					return
				}
				frame = streamFrame{Item: &ref}
			}
			payload, merr := f.Format().Marshal(frame)
			if merr != nil {
				f.Logger().Error("kind: stream frame marshal failed", "error", merr)
				return
			}
			if serr := send(ctx, payload); serr != nil {
				f.Logger().Error("kind: stream frame send failed", "error", serr)
				return
			}
			if errVal != nil || done {
				return
			}
		}
	}()
	return &streamItem{Channel: channelRef}, nil
}

// Construct attaches to the stream's channel fork and returns a Stream
// whose Recv decodes one streamFrame per call.
func (k StreamKind[T, E]) Construct(ctx context.Context, item any, f idchannel.Forker) (*Stream[T, E], error) {
	wire, ok := typeutil.Safe[*streamItem](item)
	if !ok {
		return nil, &WrongConstructItemError{Want: k.id}
	}
	raw := f.AttachFork(wire.Channel)
	s := &Stream[T, E]{
		recvFn: func(ctx context.Context) (T, bool, *E, error) {
			var zero T
			select {
			case payload, ok := <-raw:
				if !ok {
					return zero, false, nil, idchannel.NewRoutingError(wire.Channel.ID, "stream fork closed without End")
				}
				decoded, err := f.Format().Unmarshal(payload, meshformat.SeedFunc(func() any { return new(streamFrame) }))
				if err != nil {
					return zero, false, nil, idchannel.NewDecodeError(wire.Channel.ID, err)
				}
				frame := typeutil.Must[*streamFrame](decoded, "kind.StreamKind.Construct")
				switch {
				case frame.End:
					return zero, false, nil, nil
				case frame.Err != nil:
					e, err := idchannel.GetFork(ctx, f, k.errKind, *frame.Err)
					if err != nil {
						return zero, false, nil, err
					}
					return zero, false, &e, nil
				case frame.Item != nil:
					v, err := idchannel.GetFork(ctx, f, k.itemKind, *frame.Item)
					if err != nil {
						return zero, false, nil, err
					}
					return v, true, nil, nil
				default:
					return zero, false, nil, idchannel.NewDecodeError(wire.Channel.ID, errEmptyStreamFrame{})
				}
			case <-ctx.Done():
				return zero, false, nil, ctx.Err()
			}
		},
	}
	return s, nil
}

func (k StreamKind[T, E]) NewConstructItem() any { return new(streamItem) }

type errEmptyStreamFrame struct{}

func (errEmptyStreamFrame) Error() string { return "kind: stream frame has neither item, err, nor end set" }
