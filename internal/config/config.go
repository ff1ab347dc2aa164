package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// ClientType selects the transport used to reach an MCP server.
type ClientType string

const (
	ClientTypeSSE            ClientType = "sse"
	ClientTypeStreamableHTTP ClientType = "streamable_http"
	ClientTypeStdio          ClientType = "stdio"
)

// Config holds the application configuration
type Config struct {
	LLM            LLMConfig
	Server         ServerConfig
	Log            LogConfig
	History        HistoryConfig
	Paths          PathsConfig
	ToolsConfig    string               `mapstructure:"tools_config"`
	EmbeddingCache EmbeddingCacheConfig `mapstructure:"embedding_cache"`
	Events         EventsConfig
	Documents      DocumentsConfig
	VectorStore    VectorStoreConfig   `mapstructure:"vector_store"`
	SQLDatabases   []SQLDatabaseConfig `mapstructure:"sql_databases"`
	MCPServers     []MCPServerConfig   `mapstructure:"mcp_servers"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider     string  `mapstructure:"provider"`
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	MaxTurns     int     `mapstructure:"max_turns"`
	Temperature  float32 `mapstructure:"temperature"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HistoryConfig controls persistence of chat transcripts.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

// PathsConfig anchors every relative path found in the tools config.
type PathsConfig struct {
	Root   string `mapstructure:"root"`
	Images string `mapstructure:"images"`
}

// EmbeddingCacheConfig selects the embedding cache. An empty RedisAddr keeps
// the cache in memory.
type EmbeddingCacheConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// EventsConfig configures build notifications. An empty URL disables them.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

// DocumentsConfig holds object storage credentials used when a collection's
// unstructured_docs points at s3://bucket/prefix.
type DocumentsConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// VectorStoreConfig selects where embeddings are written.
type VectorStoreConfig struct {
	Backend        string `mapstructure:"backend"`
	QdrantEndpoint string `mapstructure:"qdrant_endpoint"`
}

// SQLDatabaseConfig exposes a sqlite file to the assistant as a read-only tool.
type SQLDatabaseConfig struct {
	Name        string `mapstructure:"name"`
	Path        string `mapstructure:"path"`
	Description string `mapstructure:"description"`
}

// MCPServerConfig describes one MCP server the agent pulls tools from.
type MCPServerConfig struct {
	Name    string            `mapstructure:"name"`
	Type    ClientType        `mapstructure:"type"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// APIKeyEnv is the environment variable holding the OpenAI credential.
const APIKeyEnv = "OPENAI_API_KEY"

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_turns", 5)
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8501")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", "history.db")
	v.SetDefault("paths.root", ".")
	v.SetDefault("paths.images", "images")
	v.SetDefault("tools_config", "configs/tools_config.yml")
	v.SetDefault("embedding_cache.prefix", "agentgraph:emb:")
	v.SetDefault("embedding_cache.ttl", 7*24*time.Hour)
	v.SetDefault("events.exchange", "agentgraph.events")
	v.SetDefault("vector_store.backend", "sqlite")
	v.SetDefault("vector_store.qdrant_endpoint", "http://localhost:6333")
}

// Load loads the configuration from config.yaml, or from the file named by
// CONFIG_PATH. A .env file in the working directory is applied first.
func Load() (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigType("yaml")
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		v.SetConfigFile(p)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("AGENTGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("llm.api_key", "AGENTGRAPH_LLM_API_KEY", APIKeyEnv); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// APIKeyAvailable reports whether an OpenAI credential is configured.
func (c *Config) APIKeyAvailable() bool {
	return strings.TrimSpace(c.LLM.APIKey) != ""
}
