package kind

import (
	"context"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/typeutil"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Primitive is the Kind every self-describing scalar type shares: its
// ConstructItem is the value itself and its DeconstructItem is empty,
// because the value's own wire encoding (via meshformat) already carries
// everything needed to rebuild it. This is the Go equivalent of a macro
// that instantiates the same Value impl shape for bool, every integer
// width, float32/64, string, and the handful of std types it lists.
//
// Generated with generics instead of macro expansion: one Primitive[T]
// value, parameterized per scalar type, replaces one macro invocation per
// type.
type Primitive[T any] struct {
	id meshregistry.TypeID
}

// NewPrimitive returns the Primitive Kind for T, named id for
// meshregistry/reflectmesh purposes.
func NewPrimitive[T any](id meshregistry.TypeID) Primitive[T] {
	return Primitive[T]{id: id}
}

func (p Primitive[T]) TypeID() meshregistry.TypeID { return p.id }

func (p Primitive[T]) Deconstruct(ctx context.Context, value T, f idchannel.Forker) (any, error) {
	return value, nil
}

func (p Primitive[T]) Construct(ctx context.Context, item any, f idchannel.Forker) (T, error) {
	var zero T
	ptr, ok := typeutil.Safe[*T](item)
	if !ok {
		return zero, &WrongConstructItemError{Want: p.id}
	}
	return *ptr, nil
}

func (p Primitive[T]) NewConstructItem() any {
	var zero T
	return &zero
}

// WrongConstructItemError reports a ConstructItem that decoded to the
// wrong Go type for the Kind attempting to consume it.
type WrongConstructItemError struct {
	Want meshregistry.TypeID
}

func (e *WrongConstructItemError) Error() string {
	return "kind: construct item has the wrong shape for " + string(e.Want)
}

// Bool, Int, Int64, Uint64, Float64, and String are the ready-made
// Primitive Kinds kindmesh ships for its most commonly transported scalar
// types; hosts define further Primitive[T] instances for any other scalar
// the same way.
var (
	Bool    = NewPrimitive[bool]("kind.Primitive[bool]")
	Int     = NewPrimitive[int]("kind.Primitive[int]")
	Int64   = NewPrimitive[int64]("kind.Primitive[int64]")
	Uint64  = NewPrimitive[uint64]("kind.Primitive[uint64]")
	Float64 = NewPrimitive[float64]("kind.Primitive[float64]")
	String  = NewPrimitive[string]("kind.Primitive[string]")
)

func init() {
	meshregistry.Register(Bool.TypeID(), func() any { return Bool.NewConstructItem() })
	meshregistry.Register(Int.TypeID(), func() any { return Int.NewConstructItem() })
	meshregistry.Register(Int64.TypeID(), func() any { return Int64.NewConstructItem() })
	meshregistry.Register(Uint64.TypeID(), func() any { return Uint64.NewConstructItem() })
	meshregistry.Register(Float64.TypeID(), func() any { return Float64.NewConstructItem() })
	meshregistry.Register(String.TypeID(), func() any { return String.NewConstructItem() })
}
