package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/agentgraph-go/internal/catalog"
	"github.com/comigor/agentgraph-go/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "configs", "tools_config.yml"), []byte(`stories_rag:
  unstructured_docs: docs
  vectordb: db
  collection_name: stories
  chunk_size: 100
  chunk_overlap: 10
  embedding_model: test-model
`), 0o644))
	return &config.Config{
		Server:      config.ServerConfig{Host: "127.0.0.1", Port: "0"},
		Paths:       config.PathsConfig{Root: root, Images: "images"},
		ToolsConfig: "configs/tools_config.yml",
		History:     config.HistoryConfig{Enabled: true, DBPath: "history.db"},
		VectorStore: config.VectorStoreConfig{Backend: "sqlite"},
	}
}

func TestNew_WiresComponents(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.NotNil(t, a.Server)
	require.Equal(t, "127.0.0.1:0", a.Server.HTTPServer.Addr)
	require.False(t, a.Catalog.APIKeyReady())

	ov, err := a.Catalog.Overview()
	require.NoError(t, err)
	require.Len(t, ov.Collections, 1)
	require.False(t, ov.Collections[0].Created)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.VectorStore.Backend = "chroma"
	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown vector_store.backend")
}

func TestPrepare_RequiresAPIKey(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	require.ErrorIs(t, a.Prepare(context.Background(), config.Stories), catalog.ErrMissingAPIKey)
	require.ErrorIs(t, a.Prepare(context.Background(), "all"), catalog.ErrMissingAPIKey)
}
