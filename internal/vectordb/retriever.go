package vectordb

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotReady is returned when a collection has not been built yet.
var ErrNotReady = errors.New("vector database has not been created")

// Retriever answers similarity queries against one collection. The store is
// opened per query so a rebuild is picked up without restarting.
type Retriever struct {
	Dir        string
	Collection string
	Model      string
	K          int
	Embedder   *Embedder
	Stores     StoreFactory
}

func (r *Retriever) Search(ctx context.Context, query string) ([]Match, error) {
	if !Exists(r.Dir) {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, r.Collection)
	}
	vec, err := r.Embedder.EmbedQuery(ctx, r.Model, query)
	if err != nil {
		return nil, err
	}
	stores := r.Stores
	if stores == nil {
		stores = OpenSQLite
	}
	store, err := stores(r.Dir, r.Collection)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Query(ctx, vec, r.K)
}
