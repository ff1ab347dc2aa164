package vectordb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/agentgraph-go/internal/cache"
)

func TestEmbedder_BatchesAndCaches(t *testing.T) {
	ctx := context.Background()
	client := &keywordEmbedder{}
	e := NewEmbedder(client, cache.NewMemoryCache())
	e.batchSize = 2

	texts := []string{"baggage", "refund", "dragon", "castle", "pet"}
	vecs, err := e.Embed(ctx, "m", texts)
	require.NoError(t, err)
	require.Len(t, vecs, 5)
	require.Equal(t, 3, client.calls, "5 inputs in batches of 2")
	for i, text := range texts {
		require.Equal(t, keywordVector(text), vecs[i])
	}

	again, err := e.Embed(ctx, "m", []string{"refund", "new pet"})
	require.NoError(t, err)
	require.Equal(t, 4, client.calls, "only the uncached text is sent")
	require.Equal(t, "new pet", client.inputs[len(client.inputs)-1])
	require.Equal(t, keywordVector("refund"), again[0])
}

func TestEmbedder_CacheIsPerModel(t *testing.T) {
	ctx := context.Background()
	client := &keywordEmbedder{}
	e := NewEmbedder(client, nil)

	_, err := e.Embed(ctx, "a", []string{"x"})
	require.NoError(t, err)
	_, err = e.Embed(ctx, "b", []string{"x"})
	require.NoError(t, err)
	require.Equal(t, 2, client.calls)
}

func TestEmbedder_Error(t *testing.T) {
	client := &keywordEmbedder{err: errors.New("rate limited")}
	_, err := NewEmbedder(client, nil).Embed(context.Background(), "m", []string{"x"})
	require.ErrorContains(t, err, "rate limited")
}

func TestEmbedder_EmbedQuery(t *testing.T) {
	e := NewEmbedder(&keywordEmbedder{}, nil)
	vec, err := e.EmbedQuery(context.Background(), "m", "dragon dragon")
	require.NoError(t, err)
	require.Equal(t, float32(2), vec[2], fmt.Sprint(vec))
}
