package vectordb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/comigor/agentgraph-go/internal/events"
	"github.com/comigor/agentgraph-go/internal/logger"
)

var (
	ErrNoDocuments = errors.New("no documents found")
	ErrEmptyCorpus = errors.New("documents produced no chunks")
)

// Params are the inputs of one vector database build.
type Params struct {
	DocDir         string
	ChunkSize      int
	ChunkOverlap   int
	EmbeddingModel string
	VectorDBDir    string
	CollectionName string
}

// Deps are the collaborators a Preparer needs.
type Deps struct {
	Loader   Loader
	Embedder *Embedder
	Stores   StoreFactory
	Notifier events.Notifier
}

// Preparer loads, chunks and embeds a document directory and writes the
// vectors into a collection.
type Preparer struct {
	params Params
	deps   Deps
}

// Report summarises a finished build.
type Report struct {
	Collection string        `json:"collection"`
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Duration   time.Duration `json:"duration"`
}

func NewPreparer(p Params, deps Deps) *Preparer {
	if deps.Loader == nil {
		deps.Loader = RoutingLoader{}
	}
	if deps.Stores == nil {
		deps.Stores = OpenSQLite
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Nop{}
	}
	return &Preparer{params: p, deps: deps}
}

// Run rebuilds the collection from scratch.
func (p *Preparer) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep, err := p.run(ctx)
	rep.Collection = p.params.CollectionName
	rep.Duration = time.Since(start)
	if err != nil {
		logger.L.Error("vector database build failed", "collection", p.params.CollectionName, "error", err)
		p.publish(ctx, events.KeyFailed, map[string]any{"collection": p.params.CollectionName, "error": err.Error()})
		return rep, err
	}
	logger.L.Info("vector database built", "collection", rep.Collection, "documents", rep.Documents, "chunks", rep.Chunks, "duration", rep.Duration)
	p.publish(ctx, events.KeyPrepared, rep)
	return rep, nil
}

func (p *Preparer) run(ctx context.Context) (Report, error) {
	var rep Report
	if p.deps.Embedder == nil {
		return rep, errors.New("no embedder configured")
	}

	logger.L.Info("loading documents", "collection", p.params.CollectionName, "dir", p.params.DocDir)
	docs, err := p.deps.Loader.Load(ctx, p.params.DocDir)
	if err != nil {
		return rep, fmt.Errorf("load documents: %w", err)
	}
	if len(docs) == 0 {
		return rep, fmt.Errorf("%w in %s", ErrNoDocuments, p.params.DocDir)
	}
	rep.Documents = len(docs)

	records := p.chunk(docs)
	if len(records) == 0 {
		return rep, ErrEmptyCorpus
	}
	rep.Chunks = len(records)
	logger.L.Info("documents chunked", "collection", p.params.CollectionName, "documents", len(docs), "chunks", len(records))

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vecs, err := p.deps.Embedder.Embed(ctx, p.params.EmbeddingModel, texts)
	if err != nil {
		return rep, err
	}
	for i := range records {
		records[i].Vector = vecs[i]
	}

	if err := p.write(ctx, records, rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// write builds the collection in a staging directory next to VectorDBDir and
// swaps it into place only once the store and the manifest are complete, so a
// failed or cancelled build never leaves a directory that reads as ready.
func (p *Preparer) write(ctx context.Context, records []Record, rep Report) error {
	target := p.params.VectorDBDir
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}
	staging, err := os.MkdirTemp(filepath.Dir(target), filepath.Base(target)+".build-")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	promoted := false
	defer func() {
		if !promoted {
			_ = os.RemoveAll(staging)
		}
	}()

	store, err := p.deps.Stores(staging, p.params.CollectionName)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := store.Replace(ctx, records); err != nil {
		_ = store.Close()
		if isRemote(store) {
			// The remote collection was dropped before the write failed, so
			// the previous build is gone as well.
			if rmErr := os.RemoveAll(target); rmErr != nil {
				logger.L.Warn("could not invalidate previous build", "dir", target, "error", rmErr)
			}
		}
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	err = writeManifest(staging, Manifest{
		Collection:     p.params.CollectionName,
		EmbeddingModel: p.params.EmbeddingModel,
		ChunkSize:      p.params.ChunkSize,
		ChunkOverlap:   p.params.ChunkOverlap,
		Documents:      rep.Documents,
		Chunks:         rep.Chunks,
		BuiltAt:        time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := promote(staging, target); err != nil {
		return fmt.Errorf("install vector database: %w", err)
	}
	promoted = true
	return nil
}

// promote replaces target with staging. The previous target is restored if
// the final rename fails.
func promote(staging, target string) error {
	var backup string
	if _, err := os.Stat(target); err == nil {
		backup = fmt.Sprintf("%s.old-%d", target, time.Now().UnixNano())
		if err := os.Rename(target, backup); err != nil {
			return err
		}
	}
	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			_ = os.Rename(backup, target)
		}
		return err
	}
	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			logger.L.Warn("could not remove previous build", "dir", backup, "error", err)
		}
	}
	return nil
}

func (p *Preparer) chunk(docs []Document) []Record {
	sp := Splitter{Size: p.params.ChunkSize, Overlap: p.params.ChunkOverlap}
	var records []Record
	for _, d := range docs {
		for i, text := range sp.Split(d.Text) {
			records = append(records, Record{
				ID:     fmt.Sprintf("%s#%d#%d", d.Source, d.Page, i),
				Text:   text,
				Source: d.Source,
				Page:   d.Page,
			})
		}
	}
	return records
}

func (p *Preparer) publish(ctx context.Context, key string, payload any) {
	if err := p.deps.Notifier.Publish(ctx, key, payload); err != nil {
		logger.L.Warn("event publish failed", "key", key, "error", err)
	}
}
