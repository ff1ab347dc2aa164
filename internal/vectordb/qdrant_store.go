package vectordb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const qdrantUpsertBatch = 256

// QdrantStore keeps a collection in a Qdrant server through its REST API.
type QdrantStore struct {
	endpoint   string
	collection string
	client     *http.Client
}

func NewQdrantStore(endpoint, collection string) *QdrantStore {
	return &QdrantStore{
		endpoint:   strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		collection: strings.TrimSpace(collection),
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// QdrantFactory returns a StoreFactory that ignores the directory and talks to endpoint.
func QdrantFactory(endpoint string) StoreFactory {
	return func(_ string, collection string) (Store, error) {
		return NewQdrantStore(endpoint, collection), nil
	}
}

func (q *QdrantStore) Replace(ctx context.Context, records []Record) error {
	status, err := q.statusOnly(ctx, http.MethodDelete, "/collections/"+q.collection)
	if err != nil {
		return err
	}
	if status >= 300 && status != http.StatusNotFound {
		return fmt.Errorf("qdrant status %d while dropping collection", status)
	}
	if len(records) == 0 {
		return nil
	}

	createPayload := map[string]any{
		"vectors": map[string]any{
			"size":     len(records[0].Vector),
			"distance": "Cosine",
		},
	}
	if err := q.requestNoDecode(ctx, http.MethodPut, "/collections/"+q.collection, createPayload); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	for start := 0; start < len(records); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(records))
		points := make([]map[string]any, 0, end-start)
		for _, r := range records[start:end] {
			points = append(points, map[string]any{
				"id":     q.pointID(r.ID),
				"vector": r.Vector,
				"payload": map[string]any{
					"chunk_id": r.ID,
					"text":     r.Text,
					"source":   r.Source,
					"page":     r.Page,
				},
			})
		}
		path := fmt.Sprintf("/collections/%s/points?wait=true", q.collection)
		if err := q.requestNoDecode(ctx, http.MethodPut, path, map[string]any{"points": points}); err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float32        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

func (q *QdrantStore) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	payload := map[string]any{
		"vector":       vec,
		"limit":        k,
		"with_payload": true,
	}
	body, status, err := q.requestBytes(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collection), payload)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("qdrant status %d", status)
	}
	var resp qdrantSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, row := range resp.Result {
		m := Match{Score: row.Score}
		m.ID, _ = row.Payload["chunk_id"].(string)
		m.Text, _ = row.Payload["text"].(string)
		m.Source, _ = row.Payload["source"].(string)
		if page, ok := row.Payload["page"].(float64); ok {
			m.Page = int(page)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (q *QdrantStore) Close() error { return nil }

// Remote reports that the collection lives on the Qdrant server.
func (q *QdrantStore) Remote() bool { return true }

// pointID maps a chunk id onto the UUID space Qdrant accepts.
func (q *QdrantStore) pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(q.collection+"/"+chunkID)).String()
}

func (q *QdrantStore) statusOnly(ctx context.Context, method, path string) (int, error) {
	_, statusCode, err := q.requestBytes(ctx, method, path, nil)
	if err != nil {
		return 0, err
	}
	return statusCode, nil
}

func (q *QdrantStore) requestNoDecode(ctx context.Context, method, path string, payload any) error {
	_, statusCode, err := q.requestBytes(ctx, method, path, payload)
	if err != nil {
		return err
	}
	if statusCode >= 300 {
		return fmt.Errorf("qdrant status %d", statusCode)
	}
	return nil
}

func (q *QdrantStore) requestBytes(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, q.endpoint+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return responseBody, resp.StatusCode, nil
}
