package reflectmesh

import (
	"context"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/typeutil"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// ObjectKind is the Kind for a reflected interface: deconstructing a
// receiver opens its dispatch fork and starts a Shim serving Calls against
// it; constructing one attaches to that fork and returns a *Proxy whose
// Invoke calls forward over it. Where a derive macro would generate a
// Shim/ErasedShim pair per trait, kindmesh builds the one generic
// ObjectKind once and parameterizes it by ProtocolDescriptor per interface
// instead.
type ObjectKind struct {
	proto ProtocolDescriptor
}

// NewObjectKind builds the Kind for the reflected interface proto
// describes, registering its upcast edges to the root marker and any
// declared supertraits, and proto.ID itself with meshregistry so
// idchannel's decode path can find it.
func NewObjectKind(proto ProtocolDescriptor) ObjectKind {
	registerProtocolCasts(proto)
	k := ObjectKind{proto: proto}
	meshregistry.Register(proto.ID, func() any { return k.NewConstructItem() })
	return k
}

func (k ObjectKind) TypeID() meshregistry.TypeID { return k.proto.ID }

// Deconstruct starts serving receiver's methods over a fresh dispatch
// fork and returns its ForkRef.
func (k ObjectKind) Deconstruct(ctx context.Context, receiver any, f idchannel.Forker) (any, error) {
	channelRef, _ := f.OpenFork()
	raw := f.AttachFork(channelRef)
	shim := NewShim(k.proto, receiver)
	go shim.Serve(ctx, f, raw)
	return &dispatchItem{Channel: channelRef}, nil
}

// Construct attaches to the object's dispatch fork and returns a *Proxy.
func (k ObjectKind) Construct(ctx context.Context, item any, f idchannel.Forker) (any, error) {
	wire, ok := typeutil.Safe[*dispatchItem](item)
	if !ok {
		return nil, &CastError{Want: string(k.proto.ID), Have: "unknown"}
	}
	send := f.BindSender(wire.Channel)
	return &Proxy{proto: k.proto, f: f, dispatchSend: send, callTimeout: f.Config().CallTimeout}, nil
}

func (k ObjectKind) NewConstructItem() any { return new(dispatchItem) }
