package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/comigor/agentgraph-go/internal/vectordb"
)

// Searcher is implemented by vectordb.Retriever.
type Searcher interface {
	Search(ctx context.Context, query string) ([]vectordb.Match, error)
}

// RetrievalTool answers questions from a vector database collection.
type RetrievalTool struct {
	name        string
	description string
	searcher    Searcher
}

func NewRetrievalTool(name, description string, s Searcher) *RetrievalTool {
	return &RetrievalTool{name: name, description: description, searcher: s}
}

// RetrievalToolName derives the tool name from a collection key, e.g.
// stories_rag becomes lookup_stories.
func RetrievalToolName(collectionKey string) string {
	return "lookup_" + strings.TrimSuffix(collectionKey, "_rag")
}

func (t *RetrievalTool) Name() string        { return t.name }
func (t *RetrievalTool) Description() string { return t.description }
func (t *RetrievalTool) Parameters() json.RawMessage {
	return querySchema("What to look up in the documents.")
}

func (t *RetrievalTool) Call(ctx context.Context, args string) (string, error) {
	var in queryArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	matches, err := t.searcher.Search(ctx, in.Query)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No relevant documents found.", nil
	}
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Text
	}
	return strings.Join(texts, "\n\n"), nil
}
