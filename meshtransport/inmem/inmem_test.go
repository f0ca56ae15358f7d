package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kindmesh/kindmesh/idchannel"
	"github.com/kindmesh/kindmesh/kind"
	"github.com/kindmesh/kindmesh/meshformat/json"
	"github.com/kindmesh/kindmesh/meshtransport/inmem"
)

func TestPairRoundTripsAString(t *testing.T) {
	a, b := inmem.NewPair(8)
	chA := idchannel.NewWith(a, json.New(), true)
	chB := idchannel.NewWith(b, json.New(), false)
	defer chA.Close()
	defer chB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ref, err := idchannel.Fork(ctx, chA, kind.String, "over the wire")
	require.NoError(t, err)

	got, err := idchannel.GetFork(ctx, chB, kind.String, ref)
	require.NoError(t, err)
	require.Equal(t, "over the wire", got)
}

func TestCloseEndsFrames(t *testing.T) {
	a, b := inmem.NewPair(8)
	require.NoError(t, a.Close())
	_, ok := <-b.Frames()
	require.False(t, ok)
}
