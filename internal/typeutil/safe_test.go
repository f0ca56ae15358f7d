package typeutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kindmesh/kindmesh/internal/typeutil"
)

func TestSafe(t *testing.T) {
	v, ok := typeutil.Safe[string]("hello")
	require.True(t, ok)
	require.Equal(t, "hello", v)

	_, ok = typeutil.Safe[string](42)
	require.False(t, ok)

	_, ok = typeutil.Safe[string](nil)
	require.False(t, ok)
}

func TestSafeDefault(t *testing.T) {
	require.Equal(t, 7, typeutil.SafeDefault[int](7, 99))
	require.Equal(t, 99, typeutil.SafeDefault[int]("not an int", 99))
}

func TestMustPanicsOnMismatch(t *testing.T) {
	defer func() {
		require.NotNil(t, recover())
	}()
	typeutil.Must[int]("not an int", "test")
}
