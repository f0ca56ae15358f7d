package reflectmesh

import (
	"context"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/typeutil"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Receiver names the calling convention a method expects, the Go
// equivalent of a Rust reflection layer's Receiver enum. Go has no
// mutable/immutable receiver distinction at the type-system level the way
// Rust does, but a protocol author still declares it so a shim can reject
// a Call claiming the wrong one.
type Receiver int

const (
	ReceiverImmutable Receiver = iota
	ReceiverMutable
	ReceiverOwned
)

func (r Receiver) String() string {
	switch r {
	case ReceiverMutable:
		return "a mutable"
	case ReceiverOwned:
		return "an owned"
	default:
		return "an immutable"
	}
}

// ErasedKind is an idchannel.Kind[T] with its type parameter hidden behind
// `any`, the Go analogue of a boxed `dyn Any + Send`
// argument/return passing in reflection::Trait::call. A ProtocolDescriptor
// stores one ErasedKind per argument and one for the return value so a
// single MethodDescriptor slice can describe methods with unrelated
// signatures.
type ErasedKind interface {
	TypeID() meshregistry.TypeID
	NewConstructItem() any
	DeconstructAny(ctx context.Context, value any, f idchannel.Forker) (item any, err error)
	ConstructAny(ctx context.Context, item any, f idchannel.Forker) (value any, err error)
}

// Erase adapts a concrete idchannel.Kind[T] to ErasedKind.
func Erase[T any](k idchannel.Kind[T]) ErasedKind {
	return erasedKind[T]{k: k}
}

type erasedKind[T any] struct{ k idchannel.Kind[T] }

func (e erasedKind[T]) TypeID() meshregistry.TypeID { return e.k.TypeID() }
func (e erasedKind[T]) NewConstructItem() any       { return e.k.NewConstructItem() }

func (e erasedKind[T]) DeconstructAny(ctx context.Context, value any, f idchannel.Forker) (any, error) {
	v, ok := typeutil.Safe[T](value)
	if !ok {
		return nil, &CastError{Want: string(e.k.TypeID()), Have: goTypeName(value)}
	}
	return e.k.Deconstruct(ctx, v, f)
}

func (e erasedKind[T]) ConstructAny(ctx context.Context, item any, f idchannel.Forker) (any, error) {
	return e.k.Construct(ctx, item, f)
}

func goTypeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return "unknown"
}

// MethodDescriptor names one method of a reflected interface: its index
// into ProtocolDescriptor.Methods, its Go method name for reflect-based
// invocation, its argument Kinds in order, its return Kind, and the
// receiver kind it expects.
type MethodDescriptor struct {
	Name     string
	Args     []ErasedKind
	Return   ErasedKind
	Receiver Receiver
}

// ProtocolDescriptor is the reflected-trait analogue of a Kind's TypeID: it
// names one Go interface's method table so a Call naming a method index
// and a ProtocolDescriptor.ID can be dispatched without generated code per
// interface. Supertraits lists the additional interfaces this one upcasts
// to, beyond the root marker every protocol extends implicitly.
type ProtocolDescriptor struct {
	ID          meshregistry.TypeID
	Methods     []MethodDescriptor
	Supertraits []meshregistry.TypeID
}

// MethodByName returns the method index for name, or -1 if none matches.
func (p ProtocolDescriptor) MethodByName(name string) int {
	for i, m := range p.Methods {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Supertypes returns p's full supertrait chain: the well-known root marker
// first, then whatever p declares in Supertraits.
func (p ProtocolDescriptor) Supertypes() []string {
	out := make([]string, 0, len(p.Supertraits)+1)
	out = append(out, RootTypeID)
	for _, s := range p.Supertraits {
		out = append(out, string(s))
	}
	return out
}
