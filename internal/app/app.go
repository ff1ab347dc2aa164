// Package app wires configuration into the running service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/comigor/agentgraph-go/internal/agent"
	"github.com/comigor/agentgraph-go/internal/cache"
	"github.com/comigor/agentgraph-go/internal/catalog"
	"github.com/comigor/agentgraph-go/internal/chatbot"
	"github.com/comigor/agentgraph-go/internal/config"
	"github.com/comigor/agentgraph-go/internal/events"
	"github.com/comigor/agentgraph-go/internal/history"
	"github.com/comigor/agentgraph-go/internal/llm"
	"github.com/comigor/agentgraph-go/internal/logger"
	"github.com/comigor/agentgraph-go/internal/session"
	"github.com/comigor/agentgraph-go/internal/tools"
	"github.com/comigor/agentgraph-go/internal/vectordb"
	"github.com/comigor/agentgraph-go/internal/web"
)

// App holds every long-lived component.
type App struct {
	Catalog  *catalog.Catalog
	Sessions *session.Manager
	Server   *web.Server

	closers []func()
}

// New builds the components described by cfg. Optional backends (redis,
// amqp, object storage) that cannot be reached are logged and replaced by
// their in-process fallbacks.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	root := cfg.Paths.Root

	openaiClient := llm.NewClient(cfg.LLM)
	embedder := vectordb.NewEmbedder(openaiClient, a.embeddingCache(ctx, cfg.EmbeddingCache))

	deps := vectordb.Deps{
		Loader:   a.loader(cfg.Documents),
		Embedder: embedder,
		Stores:   vectordb.OpenSQLite,
		Notifier: a.notifier(cfg.Events),
	}
	switch cfg.VectorStore.Backend {
	case "", "sqlite":
	case "qdrant":
		deps.Stores = vectordb.QdrantFactory(cfg.VectorStore.QdrantEndpoint)
	default:
		return nil, fmt.Errorf("unknown vector_store.backend %q", cfg.VectorStore.Backend)
	}

	toolsPath := config.Resolve(root, cfg.ToolsConfig)
	a.Catalog = catalog.New(toolsPath, root, cfg.APIKeyAvailable(), deps)

	tm := tools.NewToolManager()
	if err := a.Catalog.RegisterTools(tm); err != nil {
		logger.L.Error("Could not load config", "path", toolsPath, "error", err)
	}
	for _, db := range cfg.SQLDatabases {
		t := tools.NewSQLQueryTool(db.Name, db.Description, config.Resolve(root, db.Path))
		if !tm.RegisterTool(t) {
			logger.L.Warn("Duplicate tool name; skipping", "tool", t.Name())
			continue
		}
		logger.L.Info("Registered SQL tool", "tool", t.Name())
	}
	mcpSrc := tools.LoadMCP(ctx, cfg.MCPServers, tm)
	a.closers = append(a.closers, mcpSrc.Close)

	ag := agent.New(openaiClient, cfg.LLM, tm, mcpSrc.Prompts...)
	bot := chatbot.New(ag)

	var recorder session.Recorder
	if cfg.History.Enabled {
		store := history.New(config.Resolve(root, cfg.History.DBPath))
		a.closers = append(a.closers, func() { _ = store.Close() })
		recorder = store
	}
	imagesDir := config.Resolve(root, cfg.Paths.Images)
	a.Sessions = session.NewManager(bot, recorder, imagesDir)

	a.Server = web.NewServer(cfg.Server, web.NewHandler(a.Sessions, a.Catalog, imagesDir))
	return a, nil
}

func (a *App) embeddingCache(ctx context.Context, cfg config.EmbeddingCacheConfig) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryCache()
	}
	client := cache.NewClient(cfg.RedisAddr)
	if err := cache.Ping(ctx, client); err != nil {
		logger.L.Warn("Redis unavailable; caching embeddings in memory", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return cache.NewMemoryCache()
	}
	a.closers = append(a.closers, func() { _ = client.Close() })
	logger.L.Info("Embedding cache connected", "addr", cfg.RedisAddr)
	return cache.NewRedisCache(client, cfg.Prefix, cfg.TTL)
}

func (a *App) notifier(cfg config.EventsConfig) events.Notifier {
	if cfg.AMQPURL == "" {
		return events.Nop{}
	}
	conn, err := events.NewConnection(cfg.AMQPURL)
	if err != nil {
		logger.L.Warn("AMQP unavailable; build events disabled", "error", err)
		return events.Nop{}
	}
	n, err := events.NewAMQPNotifier(conn, cfg.Exchange)
	if err != nil {
		logger.L.Warn("AMQP exchange setup failed; build events disabled", "exchange", cfg.Exchange, "error", err)
		_ = conn.Close()
		return events.Nop{}
	}
	a.closers = append(a.closers, n.Close)
	return n
}

func (a *App) loader(cfg config.DocumentsConfig) vectordb.Loader {
	if cfg.Endpoint == "" {
		return vectordb.RoutingLoader{}
	}
	client, err := vectordb.NewObjectClient(cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.UseSSL)
	if err != nil {
		logger.L.Warn("Object storage client failed; s3:// sources disabled", "endpoint", cfg.Endpoint, "error", err)
		return vectordb.RoutingLoader{}
	}
	return vectordb.RoutingLoader{Object: vectordb.NewObjectLoader(client)}
}

// Prepare builds one collection, or all of them when name is "all".
func (a *App) Prepare(ctx context.Context, name string) error {
	if name != "all" {
		rep, err := a.Catalog.Create(ctx, name)
		if err != nil {
			return err
		}
		logger.L.Info("Collection ready", "collection", rep.Collection, "chunks", rep.Chunks, "duration", rep.Duration)
		return nil
	}
	results, err := a.Catalog.CreateAll(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, r := range results {
		if r.Error != "" {
			errs = append(errs, errors.New(r.Error))
			continue
		}
		logger.L.Info("Collection ready", "collection", r.Report.Collection, "chunks", r.Report.Chunks, "duration", r.Report.Duration)
	}
	return errors.Join(errs...)
}

// Close releases every backend connection in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
