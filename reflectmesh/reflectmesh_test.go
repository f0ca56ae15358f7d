package reflectmesh_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/meshtest"
	"github.com/kindmesh/kindmesh/kind"
	"github.com/kindmesh/kindmesh/meshformat/json"
	"github.com/kindmesh/kindmesh/reflectmesh"
)

// greeter is the fixture receiver a Shim dispatches Greet calls against.
type greeter struct{}

func (greeter) Greet(ctx context.Context, name string) (string, error) {
	return "hello, " + name, nil
}

func greeterProtocol() reflectmesh.ProtocolDescriptor {
	return reflectmesh.ProtocolDescriptor{
		ID: "test.Greeter",
		Methods: []reflectmesh.MethodDescriptor{
			{
				Name:     "Greet",
				Args:     []reflectmesh.ErasedKind{reflectmesh.Erase[string](kind.String)},
				Return:   reflectmesh.Erase[string](kind.String),
				Receiver: reflectmesh.ReceiverImmutable,
			},
		},
	}
}

func TestObjectKindCallRoundTrip(t *testing.T) {
	a, b := meshtest.NewPipe(8)
	chA := idchannel.NewWith(a, json.New(), true)
	chB := idchannel.NewWith(b, json.New(), false)
	defer chA.Close()
	defer chB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	objKind := reflectmesh.NewObjectKind(greeterProtocol())

	ref, err := idchannel.Fork(ctx, chA, objKind, greeter{})
	require.NoError(t, err)

	constructed, err := idchannel.GetFork(ctx, chB, objKind, ref)
	require.NoError(t, err)

	proxy := constructed.(*reflectmesh.Proxy)
	result, err := proxy.Invoke(ctx, 0, []any{"world"})
	require.NoError(t, err)
	require.Equal(t, "hello, world", result)
}

func TestProxyCastToRootRejectsUnrelated(t *testing.T) {
	a, b := meshtest.NewPipe(8)
	chA := idchannel.NewWith(a, json.New(), true)
	chB := idchannel.NewWith(b, json.New(), false)
	defer chA.Close()
	defer chB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	objKind := reflectmesh.NewObjectKind(greeterProtocol())
	ref, err := idchannel.Fork(ctx, chA, objKind, greeter{})
	require.NoError(t, err)

	constructed, err := idchannel.GetFork(ctx, chB, objKind, ref)
	require.NoError(t, err)
	proxy := constructed.(*reflectmesh.Proxy)

	root := reflectmesh.ProtocolDescriptor{ID: reflectmesh.RootTypeID}
	rootProxy, err := proxy.Cast(root)
	require.NoError(t, err)
	require.NotNil(t, rootProxy)

	_, err = proxy.Cast(reflectmesh.ProtocolDescriptor{ID: "test.Unrelated"})
	require.Error(t, err)
	var castErr *reflectmesh.CastError
	require.ErrorAs(t, err, &castErr)
}

func TestInvokeArgumentCountError(t *testing.T) {
	a, b := meshtest.NewPipe(8)
	chA := idchannel.NewWith(a, json.New(), true)
	chB := idchannel.NewWith(b, json.New(), false)
	defer chA.Close()
	defer chB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	objKind := reflectmesh.NewObjectKind(greeterProtocol())
	ref, err := idchannel.Fork(ctx, chA, objKind, greeter{})
	require.NoError(t, err)

	constructed, err := idchannel.GetFork(ctx, chB, objKind, ref)
	require.NoError(t, err)

	proxy := constructed.(*reflectmesh.Proxy)
	_, err = proxy.Invoke(ctx, 0, nil)
	require.Error(t, err)
	var countErr *reflectmesh.ArgumentCountError
	require.ErrorAs(t, err, &countErr)
}
