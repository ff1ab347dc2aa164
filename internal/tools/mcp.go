package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/comigor/agentgraph-go/internal/config"
	"github.com/comigor/agentgraph-go/internal/logger"
)

// MCPClient is the subset of the mcp-go client the tools rely on.
type MCPClient interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// MCPTool forwards calls to a tool hosted on an MCP server.
type MCPTool struct {
	client MCPClient
	tool   mcp.Tool
}

func NewMCPTool(c MCPClient, t mcp.Tool) *MCPTool {
	return &MCPTool{client: c, tool: t}
}

func (t *MCPTool) Name() string        { return t.tool.Name }
func (t *MCPTool) Description() string { return t.tool.Description }

func (t *MCPTool) Parameters() json.RawMessage {
	if len(t.tool.RawInputSchema) > 0 && string(t.tool.RawInputSchema) != "null" {
		return t.tool.RawInputSchema
	}
	schemaBytes, err := json.Marshal(t.tool.InputSchema)
	if err != nil || string(schemaBytes) == "{}" || string(schemaBytes) == "null" {
		logger.L.Warn("Tool from MCP server has an empty or null schema. Using default empty object schema for LLM.", "tool", t.tool.Name)
		return emptySchema
	}
	return schemaBytes
}

func (t *MCPTool) Call(ctx context.Context, args string) (string, error) {
	var toolArgs map[string]any
	if err := json.Unmarshal([]byte(args), &toolArgs); err != nil {
		return "", fmt.Errorf("could not parse arguments for tool %s: %w", t.tool.Name, err)
	}

	logger.L.Debug("Calling MCP tool", "tool", t.tool.Name, "arguments", toolArgs)
	res, err := t.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: t.tool.Name, Arguments: toolArgs},
	})
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", fmt.Errorf("tool %s returned no result", t.tool.Name)
	}

	text := firstText(res.Content)
	if res.IsError {
		logger.L.Warn("MCP tool executed with IsError=true", "tool", t.tool.Name, "content", res.Content)
		if text == "" {
			text = "Tool execution resulted in an error without specific text."
		}
		return "", fmt.Errorf("%s", text)
	}
	if text != "" {
		return text, nil
	}
	resultBytes, err := json.Marshal(res)
	if err != nil {
		return "Tool executed successfully, but result could not be formatted.", nil
	}
	return string(resultBytes), nil
}

func firstText(content []mcp.Content) string {
	for _, item := range content {
		if tc, ok := item.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// MCPSource is what LoadMCP discovered.
type MCPSource struct {
	Clients []*client.Client
	// Prompts holds the first argument-free prompt's assistant text of each server.
	Prompts []string
}

// Close shuts down every MCP client.
func (s *MCPSource) Close() {
	for _, c := range s.Clients {
		if err := c.Close(); err != nil {
			logger.L.Warn("MCP client close error", "error", err)
		}
	}
}

// LoadMCP connects to every configured server and registers its tools on m.
// Servers that fail to start are logged and skipped.
func LoadMCP(ctx context.Context, servers []config.MCPServerConfig, m *ToolManager) *MCPSource {
	src := &MCPSource{}
	for _, serverCfg := range servers {
		mcpC, err := newMCPClient(serverCfg)
		if err != nil {
			logger.L.Error("Failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}
		if mcpC == nil {
			continue
		}

		if serverCfg.Type != config.ClientTypeStdio {
			if err := mcpC.Start(ctx); err != nil {
				logger.L.Error("Failed to start MCP client transport", "name", serverCfg.Name, "error", err)
				_ = mcpC.Close()
				continue
			}
		}

		initResult, err := mcpC.Initialize(ctx, mcp.InitializeRequest{
			Params: mcp.InitializeParams{Capabilities: mcp.ClientCapabilities{}},
		})
		if err != nil {
			logger.L.Error("Failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			_ = mcpC.Close()
			continue
		}
		logger.L.Info("Server initialized", "name", serverCfg.Name)
		src.Clients = append(src.Clients, mcpC)

		if initResult != nil && initResult.Capabilities.Prompts != nil {
			if p := discoverPrompt(ctx, mcpC, serverCfg.Name); p != "" {
				src.Prompts = append(src.Prompts, p)
			}
		}

		serverTools, err := mcpC.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			logger.L.Warn("Failed to list tools for MCP client", "name", serverCfg.Name, "error", err)
			continue
		}
		for _, t := range serverTools.Tools {
			if !m.RegisterTool(NewMCPTool(mcpC, t)) {
				logger.L.Warn("Tool from MCP server already registered. Skipping.", "tool", t.Name, "name", serverCfg.Name)
				continue
			}
			logger.L.Info("Registered tool from MCP server for LLM", "tool", t.Name, "name", serverCfg.Name)
		}
	}

	if len(src.Clients) == 0 && len(servers) > 0 {
		logger.L.Warn("No MCP clients were successfully initialized despite servers configured.", "length", len(servers))
	}
	return src
}

func newMCPClient(serverCfg config.MCPServerConfig) (*client.Client, error) {
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var opts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(serverCfg.Headers))
		}
		return client.NewSSEMCPClient(serverCfg.URL, opts...)
	case config.ClientTypeStreamableHTTP:
		var opts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		return client.NewStreamableHttpClient(serverCfg.URL, opts...)
	case config.ClientTypeStdio:
		var env []string
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	case "":
		logger.L.Warn("MCP server type not specified for entry. Skipping.", "name", serverCfg.Name)
	default:
		logger.L.Warn("Unsupported MCP server type for entry. Skipping.", "type", serverCfg.Type, "name", serverCfg.Name)
	}
	return nil, nil
}

func discoverPrompt(ctx context.Context, c *client.Client, name string) string {
	prompts, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil || prompts == nil {
		logger.L.Warn("Failed to list prompts", "name", name, "error", err)
		return ""
	}
	i := slices.IndexFunc(prompts.Prompts, func(p mcp.Prompt) bool { return len(p.Arguments) == 0 })
	if i == -1 {
		return ""
	}
	prompt, err := c.GetPrompt(ctx, mcp.GetPromptRequest{Params: mcp.GetPromptParams{Name: prompts.Prompts[i].Name}})
	if err != nil || prompt == nil {
		logger.L.Warn("Failed to get prompt", "name", name, "error", err)
		return ""
	}
	j := slices.IndexFunc(prompt.Messages, func(m mcp.PromptMessage) bool { return m.Role == "assistant" })
	if j == -1 {
		return ""
	}
	if content, ok := prompt.Messages[j].Content.(mcp.TextContent); ok {
		logger.L.Info("Discovered system prompt from MCP server", "name", name)
		return content.Text
	}
	return ""
}
