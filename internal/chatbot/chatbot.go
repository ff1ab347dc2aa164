// Package chatbot adapts the tool-calling agent to a pair-based chat history.
package chatbot

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/agentgraph-go/internal/logger"
)

// Exchange is one user prompt and the reply it received. Assistant is empty
// while a reply is still outstanding.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Agent answers a request given the prior conversation.
type Agent interface {
	Process(ctx context.Context, history []openai.ChatCompletionMessage, request string) (string, error)
}

// ChatBot answers prompts on top of an Agent.
type ChatBot struct {
	agent Agent
}

// New creates a ChatBot.
func New(agent Agent) *ChatBot {
	return &ChatBot{agent: agent}
}

// Respond runs prompt against the agent with history as context. It returns
// the cleared input value and history with the new exchange appended. The
// caller's slice is never modified.
func (c *ChatBot) Respond(ctx context.Context, history []Exchange, prompt string) (string, []Exchange, error) {
	answer, err := c.agent.Process(ctx, toMessages(history), prompt)
	if err != nil {
		logger.L.Error("Chatbot failed to respond", "error", err)
		return "", history, fmt.Errorf("agent: %w", err)
	}

	updated := make([]Exchange, 0, len(history)+1)
	updated = append(updated, history...)
	updated = append(updated, Exchange{User: prompt, Assistant: answer})
	return "", updated, nil
}

func toMessages(history []Exchange) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2*len(history))
	for _, ex := range history {
		if ex.User != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: ex.User})
		}
		if ex.Assistant != "" {
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ex.Assistant})
		}
	}
	return msgs
}
