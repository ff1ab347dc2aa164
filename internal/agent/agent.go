package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/agentgraph-go/internal/config"
	"github.com/comigor/agentgraph-go/internal/llm"
	"github.com/comigor/agentgraph-go/internal/logger"
	"github.com/comigor/agentgraph-go/internal/tools"
)

// FSM States
type FSMState stateless.State

var (
	StateReadyToCallLLM FSMState = "ReadyToCallLLM"
	StateExecutingTools FSMState = "ExecutingTools"
	StateDone           FSMState = "Done"  // Terminal: successful completion
	StateError          FSMState = "Error" // Terminal: error state
)

// FSM Triggers
type FSMTrigger stateless.Trigger

var (
	TriggerProcessInput            FSMTrigger = "ProcessInput"
	TriggerLLMRespondedWithContent FSMTrigger = "LLMRespondedWithContent"
	TriggerLLMRequestedTools       FSMTrigger = "LLMRequestedTools"
	TriggerToolsExecutionCompleted FSMTrigger = "ToolsExecutionCompleted"
	TriggerErrorOccurred           FSMTrigger = "ErrorOccurred"
)

// ErrMaxTurns is returned when the model keeps requesting tools past the turn limit.
var ErrMaxTurns = errors.New("exceeded maximum interaction turns")

const defaultSystemPrompt = "You are a helpful AI assistant. Answer general questions, and use the available tools " +
	"to look up airline policies, search the story collections or query the databases when the question needs them. " +
	"Please respond to the user's request accurately and concisely."

const defaultMaxTurns = 5

// Agent is the main agent struct
type Agent struct {
	llmClient    llm.Client
	cfg          config.LLMConfig
	tools        *tools.ToolManager
	extraPrompts []string
	systemPrompt string
	maxTurns     int
}

// New creates a new agent. extraPrompts are appended to the system prompt,
// typically the prompts discovered on MCP servers.
func New(llmClient llm.Client, cfg config.LLMConfig, tm *tools.ToolManager, extraPrompts ...string) *Agent {
	if tm == nil {
		tm = tools.NewToolManager()
	}
	a := &Agent{
		llmClient:    llmClient,
		cfg:          cfg,
		tools:        tm,
		extraPrompts: extraPrompts,
		systemPrompt: defaultSystemPrompt,
		maxTurns:     cfg.MaxTurns,
	}
	if cfg.SystemPrompt != "" {
		a.systemPrompt = cfg.SystemPrompt
	}
	if a.maxTurns <= 0 {
		a.maxTurns = defaultMaxTurns
	}
	return a
}

func (a *Agent) buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(a.systemPrompt)
	for _, p := range a.extraPrompts {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}

// Process answers request given the prior conversation. history must not
// contain a system message; one is prepended here.
// Process uses a Finite State Machine to manage the conversation flow with the LLM and tool calls.
func (a *Agent) Process(ctx context.Context, history []openai.ChatCompletionMessage, request string) (string, error) {
	// FSM context data
	type fsmContext struct {
		messages     []openai.ChatCompletionMessage
		llmResponse  *openai.ChatCompletionResponse
		finalContent string
		lastError    error
		currentTurn  int
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if sp := a.buildSystemPrompt(); sp != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sp})
	}
	messages = append(messages, history...)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: request})

	fsmCtx := &fsmContext{messages: messages}
	toolDefs := a.tools.Definitions()

	fsm := stateless.NewStateMachine(StateReadyToCallLLM)

	// State: ReadyToCallLLM
	// Action: Call LLM with current messages.
	// Transitions:
	//   - On LLMRequestedTools -> StateExecutingTools
	//   - On LLMRespondedWithContent -> StateDone
	//   - On ErrorOccurred -> StateError
	fsm.Configure(StateReadyToCallLLM).
		PermitReentry(TriggerProcessInput).
		OnEntry(func(ctx context.Context, args ...any) error {
			if fsmCtx.currentTurn >= a.maxTurns {
				logger.L.Warn("Max interaction turns reached.", "maxTurns", a.maxTurns)
				fsmCtx.lastError = ErrMaxTurns
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			fsmCtx.currentTurn++
			logger.L.Debug("FSM: Entering StateReadyToCallLLM", "turn", fsmCtx.currentTurn)

			req := openai.ChatCompletionRequest{
				Model:       a.cfg.Model,
				Messages:    fsmCtx.messages,
				Temperature: a.cfg.Temperature,
			}
			if len(toolDefs) > 0 {
				req.Tools = toolDefs
			}
			llmResp, err := a.llmClient.CreateChatCompletion(ctx, req)
			if err != nil {
				logger.L.Error("LLM call failed", "error", err)
				fsmCtx.lastError = err
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}
			fsmCtx.llmResponse = &llmResp
			if len(llmResp.Choices) == 0 {
				fsmCtx.lastError = errors.New("LLM returned no choices")
				return fsm.FireCtx(ctx, TriggerErrorOccurred)
			}

			if len(llmResp.Choices[0].Message.ToolCalls) > 0 {
				return fsm.FireCtx(ctx, TriggerLLMRequestedTools)
			}
			return fsm.FireCtx(ctx, TriggerLLMRespondedWithContent)
		}).
		Permit(TriggerLLMRequestedTools, StateExecutingTools).
		Permit(TriggerLLMRespondedWithContent, StateDone).
		Permit(TriggerErrorOccurred, StateError)

	// State: ExecutingTools
	// Action: Run each requested tool and append its output as a tool message.
	// Tool failures are reported back to the LLM rather than aborting.
	fsm.Configure(StateExecutingTools).
		OnEntry(func(ctx context.Context, args ...any) error {
			logger.L.Debug("FSM: Entering StateExecutingTools")
			llmMessage := fsmCtx.llmResponse.Choices[0].Message
			fsmCtx.messages = append(fsmCtx.messages, llmMessage)

			for _, toolCall := range llmMessage.ToolCalls {
				fsmCtx.messages = append(fsmCtx.messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    a.executeTool(ctx, toolCall),
					ToolCallID: toolCall.ID,
					Name:       toolCall.Function.Name,
				})
			}
			return fsm.FireCtx(ctx, TriggerToolsExecutionCompleted)
		}).
		Permit(TriggerToolsExecutionCompleted, StateReadyToCallLLM).
		Permit(TriggerErrorOccurred, StateError)

	// State: Done
	fsm.Configure(StateDone).
		OnEntry(func(ctx context.Context, args ...any) error {
			logger.L.Debug("FSM: Entering StateDone")
			fsmCtx.finalContent = fsmCtx.llmResponse.Choices[0].Message.Content
			return nil
		})

	// State: Error
	fsm.Configure(StateError).
		OnEntry(func(ctx context.Context, args ...any) error {
			logger.L.Debug("FSM: Entering StateError")
			if fsmCtx.lastError == nil {
				fsmCtx.lastError = errors.New("FSM: reached error state without a specific error")
			}
			return nil
		})

	// Re-entering the initial state runs its OnEntry; every later transition
	// is queued from inside the entry actions and processed before FireCtx returns.
	if err := fsm.FireCtx(ctx, TriggerProcessInput); err != nil {
		logger.L.Error("FSM start failed", "error", err)
		if fsmCtx.lastError != nil {
			return "", fsmCtx.lastError
		}
		return "", fmt.Errorf("FSM start error: %w", err)
	}

	currentState, err := fsm.State(ctx)
	if err != nil {
		return "", fmt.Errorf("FSM internal error: %w", err)
	}

	switch currentState {
	case StateDone:
		return fsmCtx.finalContent, nil
	case StateError:
		return "", fsmCtx.lastError
	}
	if fsmCtx.lastError != nil {
		return "", fsmCtx.lastError
	}
	return "", fmt.Errorf("FSM ended in an unexpected state: %v", currentState)
}

// executeTool runs one tool call and renders its output or failure as text for the LLM.
func (a *Agent) executeTool(ctx context.Context, call openai.ToolCall) string {
	tool, err := a.tools.GetTool(call.Function.Name)
	if err != nil {
		logger.L.Warn("LLM requested unknown tool", "tool", call.Function.Name)
		return "Error: " + err.Error()
	}
	logger.L.Info("Executing tool", "tool", call.Function.Name)
	out, err := tool.Call(ctx, call.Function.Arguments)
	if err != nil {
		logger.L.Warn("Tool execution failed", "tool", call.Function.Name, "error", err)
		return "Error: " + err.Error()
	}
	return out
}
