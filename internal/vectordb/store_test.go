package vectordb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	require.InDelta(t, 1, cosine([]float32{1, 2}, []float32{2, 4}), 1e-6)
	require.InDelta(t, 0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	require.Equal(t, float32(0), cosine([]float32{1}, []float32{1, 2}))
	require.Equal(t, float32(0), cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestSQLiteStore_ReplaceAndQuery(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	s, err := OpenSQLite(dir, "policies")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.True(t, Exists(dir))

	require.NoError(t, s.Replace(ctx, []Record{
		{ID: "1", Text: "baggage rules", Vector: keywordVector("baggage")},
		{ID: "2", Text: "refund rules", Vector: keywordVector("refund")},
		{ID: "3", Text: "pets on board", Source: "pets.pdf", Page: 4, Vector: keywordVector("pet")},
	}))

	got, err := s.Query(ctx, keywordVector("pet"), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "3", got[0].ID)
	require.Equal(t, "pets.pdf", got[0].Source)
	require.Equal(t, 4, got[0].Page)
	require.Greater(t, got[0].Score, got[1].Score)

	require.NoError(t, s.Replace(ctx, []Record{{ID: "9", Text: "only", Vector: keywordVector("castle")}}))
	got, err = s.Query(ctx, keywordVector("pet"), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "9", got[0].ID)
}

func TestSQLiteStore_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	a, err := OpenSQLite(dir, "a")
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(dir, "b")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Replace(ctx, []Record{{ID: "1", Text: "a", Vector: []float32{1}}}))
	require.NoError(t, b.Replace(ctx, []Record{{ID: "1", Text: "b", Vector: []float32{1}}}))

	got, err := a.Query(ctx, []float32{1}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].Text)
}

func TestQdrantStore_ReplaceAndQuery(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
		points   int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/points"):
			var body struct {
				Points []map[string]any `json:"points"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			mu.Lock()
			points += len(body.Points)
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			var body map[string]map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.EqualValues(t, 6, body["vectors"]["size"])
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"result":[{"id":"x","score":0.9,"payload":{"chunk_id":"c1","text":"pets allowed","source":"p.pdf","page":2}}]}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	q := NewQdrantStore(srv.URL+"/", "stories")
	require.NoError(t, q.Replace(ctx, []Record{
		{ID: "c1", Text: "pets allowed", Vector: keywordVector("pet")},
		{ID: "c2", Text: "refunds", Vector: keywordVector("refund")},
	}))
	require.Equal(t, 2, points)

	got, err := q.Query(ctx, keywordVector("pet"), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c1", got[0].ID)
	require.Equal(t, "pets allowed", got[0].Text)
	require.Equal(t, 2, got[0].Page)
	require.InDelta(t, 0.9, got[0].Score, 1e-6)

	require.Equal(t, []string{
		"DELETE /collections/stories",
		"PUT /collections/stories",
		"PUT /collections/stories/points",
		"POST /collections/stories/points/search",
	}, requests)
}

func TestQdrantStore_PointIDStable(t *testing.T) {
	q := NewQdrantStore("http://x", "c")
	require.Equal(t, q.pointID("a#0#1"), q.pointID("a#0#1"))
	require.NotEqual(t, q.pointID("a#0#1"), q.pointID("a#0#2"))
}
