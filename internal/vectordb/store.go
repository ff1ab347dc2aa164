package vectordb

import (
	"context"
	"math"
	"sort"
)

// Record is one embedded chunk.
type Record struct {
	ID     string
	Text   string
	Source string
	Page   int
	Vector []float32
}

// Match is a Record scored against a query, higher is closer.
type Match struct {
	Record
	Score float32
}

// Store holds the vectors of a single collection.
type Store interface {
	// Replace drops whatever the collection held and writes records in its place.
	Replace(ctx context.Context, records []Record) error
	Query(ctx context.Context, vec []float32, k int) ([]Match, error)
	Close() error
}

// StoreFactory opens the store of collection rooted at dir.
type StoreFactory func(dir, collection string) (Store, error)

// remoteStore is implemented by stores whose data lives outside the vector
// database directory.
type remoteStore interface {
	Remote() bool
}

func isRemote(s Store) bool {
	r, ok := s.(remoteStore)
	return ok && r.Remote()
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func topK(matches []Match, k int) []Match {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}
