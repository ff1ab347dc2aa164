package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
llm:
  provider: openai
  base_url: https://api.example.com
  api_key: dummy
  model: gpt-4o
  max_turns: 7
server:
  host: 0.0.0.0
  port: "8080"
vector_store:
  backend: qdrant
sql_databases:
  - name: chinook
    path: data/Chinook.db
    description: music store
mcp_servers:
  - type: stdio
    command: ./mock
    args: ["--flag"]
    env:
      FOO: bar
`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

// TestLoad_FromConfigPath verifies that Load reads the file named by CONFIG_PATH.
func TestLoad_FromConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeTemp(t, "cfg.yaml", sampleConfig))
	t.Setenv(APIKeyEnv, "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 7, cfg.LLM.MaxTurns)
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "qdrant", cfg.VectorStore.Backend)
	require.Len(t, cfg.SQLDatabases, 1)
	require.Equal(t, "chinook", cfg.SQLDatabases[0].Name)

	require.Len(t, cfg.MCPServers, 1)
	s := cfg.MCPServers[0]
	require.Equal(t, ClientTypeStdio, s.Type)
	require.Equal(t, "./mock", s.Command)
	require.Equal(t, []string{"--flag"}, s.Args)
	require.Equal(t, "bar", s.Env["foo"])
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeTemp(t, "cfg.yaml", "llm:\n  model: gpt-4o\n"))
	t.Setenv(APIKeyEnv, "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8501", cfg.Server.Port)
	require.Equal(t, 5, cfg.LLM.MaxTurns)
	require.Equal(t, "sqlite", cfg.VectorStore.Backend)
	require.Equal(t, "configs/tools_config.yml", cfg.ToolsConfig)
	require.Equal(t, 7*24*time.Hour, cfg.EmbeddingCache.TTL)
	require.True(t, cfg.History.Enabled)
	require.False(t, cfg.APIKeyAvailable())
}

func TestLoad_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeTemp(t, "cfg.yaml", "llm:\n  model: gpt-4o\n"))
	t.Setenv(APIKeyEnv, "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sk-test", cfg.LLM.APIKey)
	require.True(t, cfg.APIKeyAvailable())
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeTemp(t, "cfg.yaml", "llm: [unterminated"))

	_, err := Load()
	require.Error(t, err)
}
