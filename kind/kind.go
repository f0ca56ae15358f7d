// Package kind provides the concrete Kind implementations kindmesh ships:
// the primitive Kinds, Unit, and the three interactive Kinds Future, Sink,
// Stream — plus the OnTo/Of convenience helpers mirroring a value type's
// own on_to/of round-trip sugar.
//
// Every type here implements idchannel.Kind[T]; idchannel itself stays
// ignorant of what any concrete T is, keeping the Kind contract and the
// channel plumbing mutually independent of any one implementor.
package kind

import (
	"context"

	"github.com/kindmesh/kindmesh/idchannel"
)

// OnTo deconstructs value onto a fresh fork of f and returns the ForkRef.
func OnTo[T any](ctx context.Context, f idchannel.Forker, k idchannel.Kind[T], value T) (idchannel.ForkRef, error) {
	return idchannel.Fork(ctx, f, k, value)
}

// Of reconstructs a T from ref on f.
func Of[T any](ctx context.Context, f idchannel.Forker, k idchannel.Kind[T], ref idchannel.ForkRef) (T, error) {
	return idchannel.GetFork(ctx, f, k, ref)
}
