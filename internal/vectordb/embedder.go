package vectordb

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/agentgraph-go/internal/cache"
	"github.com/comigor/agentgraph-go/internal/llm"
	"github.com/comigor/agentgraph-go/internal/logger"
)

const defaultBatchSize = 100

// Embedder turns texts into vectors, consulting the cache before calling the API.
type Embedder struct {
	client    llm.Embedder
	cache     cache.Cache
	batchSize int
}

func NewEmbedder(client llm.Embedder, c cache.Cache) *Embedder {
	if c == nil {
		c = cache.NewMemoryCache()
	}
	return &Embedder{client: client, cache: c, batchSize: defaultBatchSize}
}

// Embed returns one vector per text, in order.
func (e *Embedder) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []int
	for i, t := range texts {
		if vec, ok := e.cache.Get(ctx, cache.Key(model, t)); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	logger.L.Debug("embedding texts", "model", model, "total", len(texts), "cached", len(texts)-len(missing))

	for start := 0; start < len(missing); start += e.batchSize {
		end := min(start+e.batchSize, len(missing))
		idx := missing[start:end]
		input := make([]string, len(idx))
		for j, i := range idx {
			input[j] = texts[i]
		}

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: input,
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			return nil, fmt.Errorf("create embeddings: %w", err)
		}
		if len(resp.Data) != len(input) {
			return nil, fmt.Errorf("create embeddings: got %d vectors for %d inputs", len(resp.Data), len(input))
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(idx) {
				return nil, fmt.Errorf("create embeddings: index %d out of range", d.Index)
			}
			i := idx[d.Index]
			out[i] = d.Embedding
			if err := e.cache.Set(ctx, cache.Key(model, texts[i]), d.Embedding); err != nil {
				logger.L.Warn("embedding cache set failed", "error", err)
			}
		}
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (e *Embedder) EmbedQuery(ctx context.Context, model, query string) ([]float32, error) {
	vecs, err := e.Embed(ctx, model, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Cache exposes the underlying cache for maintenance actions.
func (e *Embedder) Cache() cache.Cache { return e.cache }
