package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// ToolManager manages the available tools
type ToolManager struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewToolManager creates a new ToolManager
func NewToolManager() *ToolManager {
	return &ToolManager{
		tools: make(map[string]Tool),
	}
}

// RegisterTool registers a new tool. It reports false when the name is taken.
func (m *ToolManager) RegisterTool(tool Tool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tools[tool.Name()]; exists {
		return false
	}
	m.tools[tool.Name()] = tool
	return true
}

// GetTool retrieves a tool by name
func (m *ToolManager) GetTool(name string) (Tool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tool, ok := m.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	return tool, nil
}

// List returns all registered tools sorted by name
func (m *ToolManager) List() []Tool {
	m.mu.RLock()
	ts := make([]Tool, 0, len(m.tools))
	for _, t := range m.tools {
		ts = append(ts, t)
	}
	m.mu.RUnlock()
	sort.Slice(ts, func(i, j int) bool { return ts[i].Name() < ts[j].Name() })
	return ts
}

// Definitions renders every tool as an OpenAI function definition.
func (m *ToolManager) Definitions() []openai.Tool {
	list := m.List()
	defs := make([]openai.Tool, 0, len(list))
	for _, t := range list {
		params := t.Parameters()
		if len(params) == 0 || string(params) == "null" {
			params = emptySchema
		}
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}
