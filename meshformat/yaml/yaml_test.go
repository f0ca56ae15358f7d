package yaml_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kindmesh/kindmesh/meshformat"
	"github.com/kindmesh/kindmesh/meshformat/yaml"
)

func TestTranscodedRoundTrip(t *testing.T) {
	f := meshformat.Transcode(yaml.New())
	require.Equal(t, "yaml", f.Name())
	require.True(t, f.HumanReadable())

	payload, err := f.Marshal("hello")
	require.NoError(t, err)

	frame, err := f.JoinFrame(7, payload)
	require.NoError(t, err)

	forkID, gotPayload, err := f.SplitFrame(frame)
	require.NoError(t, err)
	require.Equal(t, uint64(7), forkID)

	got, err := f.Unmarshal(gotPayload, meshformat.SeedFunc(func() any { return new(string) }))
	require.NoError(t, err)
	require.Equal(t, "hello", *got.(*string))
}
