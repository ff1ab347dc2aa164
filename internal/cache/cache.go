// Package cache stores embedding vectors so rebuilding a collection does not
// pay for chunks that were already embedded with the same model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// Cache maps a key to an embedding vector.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32) error
	// Clear drops every cached vector and reports how many were removed.
	Clear(ctx context.Context) (int, error)
}

// Key derives the cache key of text embedded with model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu   sync.RWMutex
	vecs map[string][]float32
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{vecs: map[string][]float32{}}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vecs[key]
	return v, ok
}

func (m *MemoryCache) Set(_ context.Context, key string, vec []float32) error {
	m.mu.Lock()
	m.vecs[key] = append([]float32(nil), vec...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Clear(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.vecs)
	m.vecs = map[string][]float32{}
	return n, nil
}
