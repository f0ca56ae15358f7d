package reflectmesh

import "sync"

// RootTypeID names the base erased-object type every reflected interface
// upcasts to, the Go analogue of a
// SomeTrait marker (reflection::SomeTrait / the Erased trait's supertrait
// bound). kindmesh has no single Go interface every reflected object
// shares, so RootTypeID is just the well-known registry key the cast
// machinery below hangs off of.
const RootTypeID = "reflectmesh.Root"

// castKey identifies one registered upcast/downcast edge between two
// reflected interfaces by their ProtocolDescriptor.ID.
type castKey struct{ from, to string }

type castFunc func(value any) (any, bool)

var (
	castMu  sync.RWMutex
	casts   = map[castKey]castFunc{}
)

// RegisterCast installs a function that reinterprets a from-typed value as
// a to-typed one, enabling Upcast/Downcast between the two protocols. A
// generated (or hand-written) adapter calls this once per edge at init
// time, the same way a Kind registers itself with meshregistry.
func RegisterCast(from, to string, fn func(value any) (any, bool)) {
	castMu.Lock()
	defer castMu.Unlock()
	casts[castKey{from: from, to: to}] = fn
}

// Cast reinterprets value, registered as typed `from`, as the `to` type,
// returning a CastError if no edge was registered between them.
func Cast(from, to string, value any) (any, error) {
	if from == to {
		return value, nil
	}
	castMu.RLock()
	fn, ok := casts[castKey{from: from, to: to}]
	castMu.RUnlock()
	if !ok {
		return nil, &CastError{Want: to, Have: from}
	}
	v, ok := fn(value)
	if !ok {
		return nil, &CastError{Want: to, Have: from}
	}
	return v, nil
}

// registerProtocolCasts installs the identity-preserving upcast edges from
// proto to its root marker and declared supertraits. ObjectKind calls this
// once per protocol it builds, the same "adapter registers its casts at
// setup time" idiom RegisterCast's doc describes, so every reflected
// interface's cast edges exist without a hand-written registration call
// per interface.
func registerProtocolCasts(proto ProtocolDescriptor) {
	identity := func(v any) (any, bool) {
		_, ok := v.(*Proxy)
		return v, ok
	}
	for _, to := range proto.Supertypes() {
		RegisterCast(string(proto.ID), to, identity)
	}
}
