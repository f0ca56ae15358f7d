package kind_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/meshtest"
	"github.com/kindmesh/kindmesh/kind"
	"github.com/kindmesh/kindmesh/meshformat/json"
)

func newPair(t *testing.T) (*idchannel.IdChannel, *idchannel.IdChannel, func()) {
	t.Helper()
	a, b := meshtest.NewPipe(8)
	chA := idchannel.NewWith(a, json.New(), true)
	chB := idchannel.NewWith(b, json.New(), false)
	return chA, chB, func() {
		chA.Close()
		chB.Close()
	}
}

func TestPrimitiveRoundTrip(t *testing.T) {
	chA, chB, cleanup := newPair(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ref, err := idchannel.Fork(ctx, chA, kind.String, "hello")
	require.NoError(t, err)

	got, err := idchannel.GetFork(ctx, chB, kind.String, ref)
	require.NoError(t, err)
	require.Equal(t, "hello", got)
}

func TestFutureOkRoundTrip(t *testing.T) {
	chA, chB, cleanup := newPair(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	futKind := kind.NewFutureKind[bool, string]("test.Future[bool,string]", kind.Bool, kind.String)
	fut, resolve, _ := kind.NewFuture[bool, string]()
	resolve(true)

	ref, err := idchannel.Fork(ctx, chA, futKind, fut)
	require.NoError(t, err)

	got, err := idchannel.GetFork(ctx, chB, futKind, ref)
	require.NoError(t, err)

	ok, _, err := got.Await(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestFutureErrRoundTrip(t *testing.T) {
	chA, chB, cleanup := newPair(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	futKind := kind.NewFutureKind[bool, string]("test.Future[bool,string]", kind.Bool, kind.String)
	fut, _, reject := kind.NewFuture[bool, string]()
	reject("boom")

	ref, err := idchannel.Fork(ctx, chA, futKind, fut)
	require.NoError(t, err)

	got, err := idchannel.GetFork(ctx, chB, futKind, ref)
	require.NoError(t, err)

	_, errVal, err := got.Await(ctx)
	require.NoError(t, err)
	require.Equal(t, "boom", errVal)
}

func TestSinkSingleInFlight(t *testing.T) {
	chA, chB, cleanup := newPair(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	received := make(chan string, 8)
	consume := func(ctx context.Context, v string) *string {
		received <- v
		return nil
	}
	sinkKind := kind.NewSinkKind[string, string]("test.Sink[string,string]", kind.String, kind.String, consume)

	sink := &kind.Sink[string, string]{}
	ref, err := idchannel.Fork(ctx, chA, sinkKind, sink)
	require.NoError(t, err)

	remote, err := idchannel.GetFork(ctx, chB, sinkKind, ref)
	require.NoError(t, err)

	require.NoError(t, remote.Send(ctx, "one"))
	require.NoError(t, remote.Send(ctx, "two"))
	require.NoError(t, remote.Send(ctx, "three"))

	require.Equal(t, "one", <-received)
	require.Equal(t, "two", <-received)
	require.Equal(t, "three", <-received)
}

func TestStreamEnumeratesThenEnds(t *testing.T) {
	chA, chB, cleanup := newPair(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	items := []string{"a", "b", "c"}
	i := 0
	produce := func(ctx context.Context) (string, bool, *string, error) {
		if i >= len(items) {
			return "", true, nil, nil
		}
		v := items[i]
		i++
		return v, false, nil, nil
	}
	streamKind := kind.NewStreamKind[string, string]("test.Stream[string,string]", kind.String, kind.String, produce)

	stream := &kind.Stream[string, string]{}
	ref, err := idchannel.Fork(ctx, chA, streamKind, stream)
	require.NoError(t, err)

	remote, err := idchannel.GetFork(ctx, chB, streamKind, ref)
	require.NoError(t, err)

	var got []string
	for {
		v, ok, errVal, err := remote.Recv(ctx)
		require.NoError(t, err)
		require.Nil(t, errVal)
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Equal(t, items, got)
}
