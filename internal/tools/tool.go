package tools

import (
	"context"
	"encoding/json"
)

// Tool is the interface for all tools the agent can call.
type Tool interface {
	Name() string
	Description() string
	// Parameters is the JSON schema of the arguments object.
	Parameters() json.RawMessage
	Call(ctx context.Context, args string) (string, error)
}

var emptySchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// queryArgs is the argument object shared by the retrieval and SQL tools.
type queryArgs struct {
	Query string `json:"query"`
}

func querySchema(desc string) json.RawMessage {
	b, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": desc},
		},
		"required": []string{"query"},
	})
	return b
}
