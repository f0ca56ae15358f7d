package idchannel_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/internal/meshtest"
	"github.com/kindmesh/kindmesh/meshformat/json"
)

func TestRootValueRoundTrip(t *testing.T) {
	a, b := meshtest.NewPipe(8)
	chA := idchannel.NewWith(a, json.New(), true)
	chB := idchannel.NewWith(b, json.New(), false)
	defer chA.Close()
	defer chB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	k := meshtest.EchoString{}
	require.NoError(t, idchannel.DeconstructRoot(ctx, chA, k, "hello fork"))

	got, err := idchannel.ConstructRoot(ctx, chB, k)
	require.NoError(t, err)
	require.Equal(t, "hello fork", got)
}

func TestForkAndGetForkRoundTrip(t *testing.T) {
	a, b := meshtest.NewPipe(8)
	chA := idchannel.NewWith(a, json.New(), true)
	chB := idchannel.NewWith(b, json.New(), false)
	defer chA.Close()
	defer chB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	k := meshtest.EchoString{}
	ref, err := idchannel.Fork(ctx, chA, k, "child fork payload")
	require.NoError(t, err)

	got, err := idchannel.GetFork(ctx, chB, k, ref)
	require.NoError(t, err)
	require.Equal(t, "child fork payload", got)
}

func TestGetForkTimesOutWithoutPeer(t *testing.T) {
	a, b := meshtest.NewPipe(8)
	_ = a
	chB := idchannel.NewWith(b, json.New(), false)
	defer chB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	k := meshtest.EchoString{}
	_, err := idchannel.GetFork(ctx, chB, k, idchannel.ForkRef{ID: 42})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
