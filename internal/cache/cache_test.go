package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey_DependsOnModelAndText(t *testing.T) {
	require.Equal(t, Key("m", "hello"), Key("m", "hello"))
	require.NotEqual(t, Key("m", "hello"), Key("n", "hello"))
	require.NotEqual(t, Key("m", "hello"), Key("m", "hello!"))
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok := c.Get(ctx, "k")
	require.False(t, ok)

	vec := []float32{0.1, 0.2}
	require.NoError(t, c.Set(ctx, "k", vec))
	vec[0] = 9 // caller mutation must not leak into the cache

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	require.Equal(t, []float32{0.1, 0.2}, got)

	n, err := c.Clear(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, ok = c.Get(ctx, "k")
	require.False(t, ok)
}

func TestVectorEncoding(t *testing.T) {
	in := []float32{0, -1.5, 3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = decodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}
