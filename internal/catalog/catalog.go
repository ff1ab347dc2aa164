// Package catalog manages the document collections declared in the tools
// config: their readiness, (re)creation and the shared embedding cache.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/comigor/agentgraph-go/internal/config"
	"github.com/comigor/agentgraph-go/internal/events"
	"github.com/comigor/agentgraph-go/internal/logger"
	"github.com/comigor/agentgraph-go/internal/tools"
	"github.com/comigor/agentgraph-go/internal/vectordb"
)

// ErrMissingAPIKey is returned by build operations when no OpenAI key is configured.
var ErrMissingAPIKey = errors.New(config.APIKeyEnv + " not found in environment variables")

// BuildError is a failed collection build, worded for display.
type BuildError struct {
	Title string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("Error creating %s database: %v", e.Title, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Status describes one collection for the management view.
type Status struct {
	Key          string             `json:"key"`
	Title        string             `json:"title"`
	Created      bool               `json:"created"`
	Path         string             `json:"path"`
	Documents    string             `json:"documents"`
	Collection   string             `json:"collection"`
	ChunkSize    int                `json:"chunk_size"`
	ChunkOverlap int                `json:"chunk_overlap"`
	Model        string             `json:"model"`
	LastBuild    *vectordb.Manifest `json:"last_build,omitempty"`
}

// Overview is the state of every configured collection.
type Overview struct {
	APIKeyReady bool     `json:"api_key_ready"`
	Collections []Status `json:"collections"`
}

// Result is the outcome of one build in a bulk run.
type Result struct {
	Key    string           `json:"key"`
	Title  string           `json:"title"`
	Report *vectordb.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// Catalog builds and inspects collections. The tools config is re-read on
// every call so edits show up without a restart.
type Catalog struct {
	toolsPath   string
	root        string
	apiKeyReady bool
	deps        vectordb.Deps

	// builds run one at a time
	buildMu sync.Mutex
}

// New creates a Catalog. Relative paths in the tools config are resolved against root.
func New(toolsPath, root string, apiKeyReady bool, deps vectordb.Deps) *Catalog {
	if deps.Notifier == nil {
		deps.Notifier = events.Nop{}
	}
	return &Catalog{toolsPath: toolsPath, root: root, apiKeyReady: apiKeyReady, deps: deps}
}

// APIKeyReady reports whether collections can be built.
func (c *Catalog) APIKeyReady() bool { return c.apiKeyReady }

// Tools loads the tools config.
func (c *Catalog) Tools() (*config.ToolsConfig, error) {
	return config.LoadTools(c.toolsPath)
}

// Overview reports the status of every collection.
func (c *Catalog) Overview() (Overview, error) {
	tc, err := c.Tools()
	if err != nil {
		return Overview{APIKeyReady: c.apiKeyReady}, err
	}
	ov := Overview{APIKeyReady: c.apiKeyReady, Collections: make([]Status, 0, len(tc.Collections))}
	for _, key := range tc.Names() {
		cc := tc.Collections[key]
		dir := config.Resolve(c.root, cc.VectorDB)
		st := Status{
			Key:          key,
			Title:        cc.Title,
			Created:      vectordb.Exists(dir),
			Path:         cc.VectorDB,
			Documents:    cc.UnstructuredDocs,
			Collection:   cc.CollectionName,
			ChunkSize:    cc.ChunkSize,
			ChunkOverlap: cc.ChunkOverlap,
			Model:        cc.EmbeddingModel,
		}
		if m, err := vectordb.ReadManifest(dir); err == nil {
			st.LastBuild = &m
		}
		ov.Collections = append(ov.Collections, st)
	}
	return ov, nil
}

// Create builds or rebuilds one collection.
func (c *Catalog) Create(ctx context.Context, key string) (vectordb.Report, error) {
	if !c.apiKeyReady {
		return vectordb.Report{}, ErrMissingAPIKey
	}
	tc, err := c.Tools()
	if err != nil {
		return vectordb.Report{}, err
	}
	cc, err := tc.Collection(key)
	if err != nil {
		return vectordb.Report{}, err
	}
	return c.build(ctx, cc)
}

// CreateAll builds every collection in order. A failed build does not stop
// the ones after it.
func (c *Catalog) CreateAll(ctx context.Context) ([]Result, error) {
	if !c.apiKeyReady {
		return nil, ErrMissingAPIKey
	}
	tc, err := c.Tools()
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(tc.Collections))
	for _, key := range tc.Names() {
		cc := tc.Collections[key]
		res := Result{Key: key, Title: cc.Title}
		rep, err := c.build(ctx, cc)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Report = &rep
		}
		results = append(results, res)
		if ctx.Err() != nil {
			break
		}
	}
	return results, nil
}

func (c *Catalog) build(ctx context.Context, cc config.CollectionConfig) (vectordb.Report, error) {
	if err := cc.Validate(); err != nil {
		return vectordb.Report{}, &BuildError{Title: cc.Title, Err: err}
	}

	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	logger.L.Info("Creating vector database", "collection", cc.CollectionName, "title", cc.Title)
	p := vectordb.NewPreparer(vectordb.Params{
		DocDir:         config.Resolve(c.root, cc.UnstructuredDocs),
		ChunkSize:      cc.ChunkSize,
		ChunkOverlap:   cc.ChunkOverlap,
		EmbeddingModel: cc.EmbeddingModel,
		VectorDBDir:    config.Resolve(c.root, cc.VectorDB),
		CollectionName: cc.CollectionName,
	}, c.deps)
	rep, err := p.Run(ctx)
	if err != nil {
		return rep, &BuildError{Title: cc.Title, Err: err}
	}
	return rep, nil
}

// ClearCache drops every cached embedding.
func (c *Catalog) ClearCache(ctx context.Context) (int, error) {
	if c.deps.Embedder == nil || c.deps.Embedder.Cache() == nil {
		return 0, nil
	}
	n, err := c.deps.Embedder.Cache().Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear embedding cache: %w", err)
	}
	logger.L.Info("Embedding cache cleared", "entries", n)
	if err := c.deps.Notifier.Publish(ctx, events.KeyCleared, map[string]int{"entries": n}); err != nil {
		logger.L.Warn("event publish failed", "key", events.KeyCleared, "error", err)
	}
	return n, nil
}

// RegisterTools adds one retrieval tool per configured collection. Collections
// that are not built yet still get a tool; it reports that they are missing.
func (c *Catalog) RegisterTools(m *tools.ToolManager) error {
	tc, err := c.Tools()
	if err != nil {
		return err
	}
	for _, key := range tc.Names() {
		cc := tc.Collections[key]
		r := &vectordb.Retriever{
			Dir:        config.Resolve(c.root, cc.VectorDB),
			Collection: cc.CollectionName,
			Model:      cc.EmbeddingModel,
			K:          cc.K,
			Embedder:   c.deps.Embedder,
			Stores:     c.deps.Stores,
		}
		desc := cc.Description
		if desc == "" {
			desc = "Search the " + cc.Title + " documents."
		}
		name := tools.RetrievalToolName(key)
		if !m.RegisterTool(tools.NewRetrievalTool(name, desc, r)) {
			logger.L.Warn("Duplicate tool name; skipping", "tool", name)
			continue
		}
		logger.L.Info("Registered retrieval tool", "tool", name, "collection", cc.CollectionName)
	}
	return nil
}
