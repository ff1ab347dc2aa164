package llm

import (
	"github.com/comigor/agentgraph-go/internal/config"
	"github.com/sashabaranov/go-openai"
)

// NewClient creates an OpenAI client. The same client serves chat completions
// and embeddings.
func NewClient(cfg config.LLMConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}
