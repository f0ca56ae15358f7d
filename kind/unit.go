package kind

import (
	"context"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// Unit is the zero-sized Kind for values that carry no data of their own,
// the Go equivalent of a `Value for ()` and `Value for PhantomData<T>` impl:
// ConstructItem and DeconstructItem are both the empty struct, and
// construct/deconstruct do nothing.
type Unit struct{}

type unitItem struct{}

func (Unit) TypeID() meshregistry.TypeID { return "kind.Unit" }

func (Unit) Deconstruct(ctx context.Context, value struct{}, f idchannel.Forker) (any, error) {
	return unitItem{}, nil
}

func (Unit) Construct(ctx context.Context, item any, f idchannel.Forker) (struct{}, error) {
	return struct{}{}, nil
}

func (Unit) NewConstructItem() any { return new(unitItem) }

func init() {
	meshregistry.Register(Unit{}.TypeID(), func() any { return Unit{}.NewConstructItem() })
}
