package meshtest

import (
	"context"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/meshregistry"
)

// EchoString is a fixture Kind whose ConstructItem and DeconstructItem are
// both the string itself: the simplest possible construct/deconstruct pair
// to exercise idchannel's fork plumbing in isolation.
type EchoString struct{}

func (EchoString) TypeID() meshregistry.TypeID { return "meshtest.EchoString" }

func (EchoString) Deconstruct(ctx context.Context, value string, f idchannel.Forker) (any, error) {
	return value, nil
}

func (EchoString) Construct(ctx context.Context, item any, f idchannel.Forker) (string, error) {
	p, ok := item.(*string)
	if !ok {
		var zero string
		return zero, errNotAString{item}
	}
	return *p, nil
}

func (EchoString) NewConstructItem() any { return new(string) }

func init() {
	meshregistry.Register(EchoString{}.TypeID(), func() any { return EchoString{}.NewConstructItem() })
}

type errNotAString struct{ got any }

func (e errNotAString) Error() string { return "meshtest: expected *string construct item" }
