package kind

import (
	"context"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/typeutil"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Future is a one-shot, eventually-resolved value of T or E, the Go
// equivalent of a boxed async future type parameterized over its Ok and Err
// payload. A Future is always produced one of two ways: NewFuture for a
// value computed locally (the deconstructing side awaits it), or as the
// return of FutureKind.Construct for a value received from a peer, which
// is already resolved by the time Construct returns — Go's synchronous
// GetFork already does the waiting an async `and_then` would otherwise do.
type Future[T, E any] struct {
	ch chan futureResult[T, E]
}

type futureResult[T, E any] struct {
	ok  *T
	err *E
}

// NewFuture returns a Future together with the two functions that resolve
// it; exactly one of Resolve/Reject must be called, exactly once.
func NewFuture[T, E any]() (fut *Future[T, E], resolve func(T), reject func(E)) {
	f := &Future[T, E]{ch: make(chan futureResult[T, E], 1)}
	resolve = func(v T) { f.ch <- futureResult[T, E]{ok: &v} }
	reject = func(e E) { f.ch <- futureResult[T, E]{err: &e} }
	return f, resolve, reject
}

func resolved[T, E any](r futureResult[T, E]) *Future[T, E] {
	f := &Future[T, E]{ch: make(chan futureResult[T, E], 1)}
	f.ch <- r
	return f
}

// Await blocks until the Future resolves or ctx is cancelled.
func (f *Future[T, E]) Await(ctx context.Context) (T, E, error) {
	var zeroT T
	var zeroE E
	select {
	case r := <-f.ch:
		f.ch <- r // keep it available for a repeat Await
		if r.ok != nil {
			return *r.ok, zeroE, nil
		}
		return zeroT, *r.err, nil
	case <-ctx.Done():
		return zeroT, zeroE, ctx.Err()
	}
}

// fResultItem is the wire shape of FutureKind's ConstructItem — the Go
// translation of a two-variant Ok/Err result enum, using two optional
// pointer fields instead of a tagged enum since Go has no sum types.
type fResultItem struct {
	Ok  *idchannel.ForkRef `json:"ok,omitempty" msgpack:"ok,omitempty"`
	Err *idchannel.ForkRef `json:"err,omitempty" msgpack:"err,omitempty"`
}

// FutureKind is the Kind for Future[T, E], parameterized by the Kinds that
// encode its eventual Ok (T) and Err (E) payload.
type FutureKind[T, E any] struct {
	id      meshregistry.TypeID
	okKind  idchannel.Kind[T]
	errKind idchannel.Kind[E]
}

// NewFutureKind builds the FutureKind for Future[T, E], registering id with
// meshregistry so idchannel's decode path can find it.
func NewFutureKind[T, E any](id meshregistry.TypeID, okKind idchannel.Kind[T], errKind idchannel.Kind[E]) FutureKind[T, E] {
	k := FutureKind[T, E]{id: id, okKind: okKind, errKind: errKind}
	meshregistry.Register(id, func() any { return k.NewConstructItem() })
	return k
}

func (k FutureKind[T, E]) TypeID() meshregistry.TypeID { return k.id }

// Deconstruct awaits value, then forks whichever of Ok/Err it resolved to
// using the matching sub-Kind: an await-then-fork two-step.
func (k FutureKind[T, E]) Deconstruct(ctx context.Context, value *Future[T, E], f idchannel.Forker) (any, error) {
	select {
	case r := <-value.ch:
		value.ch <- r
		if r.ok != nil {
			ref, err := idchannel.Fork(ctx, f, k.okKind, *r.ok)
			if err != nil {
				return nil, err
			}
			return &fResultItem{Ok: &ref}, nil
		}
		ref, err := idchannel.Fork(ctx, f, k.errKind, *r.err)
		if err != nil {
			return nil, err
		}
		return &fResultItem{Err: &ref}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (k FutureKind[T, E]) Construct(ctx context.Context, item any, f idchannel.Forker) (*Future[T, E], error) {
	wire, ok := typeutil.Safe[*fResultItem](item)
	if !ok {
		return nil, &WrongConstructItemError{Want: k.id}
	}
	switch {
	case wire.Ok != nil:
		v, err := idchannel.GetFork(ctx, f, k.okKind, *wire.Ok)
		if err != nil {
			return nil, err
		}
		return resolved[T, E](futureResult[T, E]{ok: &v}), nil
	case wire.Err != nil:
		e, err := idchannel.GetFork(ctx, f, k.errKind, *wire.Err)
		if err != nil {
			return nil, err
		}
		return resolved[T, E](futureResult[T, E]{err: &e}), nil
	default:
		return nil, &WrongConstructItemError{Want: k.id}
	}
}

func (k FutureKind[T, E]) NewConstructItem() any { return new(fResultItem) }
