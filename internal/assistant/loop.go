package assistant

import (
	"context"
	"encoding/json"
	"log/slog"

	"studybench/engine/internal/llm"
)

// DefaultMaxRounds bounds how many tool-calling rounds one run may
// take before the model is forced to answer without tools.
const DefaultMaxRounds = 8

// fallbackReply stands in for the terminal assistant message whenever
// the model returns a null or empty body.
const fallbackReply = "I was unable to come up with an answer here. Please try again or rephrase."

// ToolExecutor runs a single tool call and returns its result payload.
type ToolExecutor interface {
	Execute(ctx context.Context, call llm.ToolCall) (string, error)
}

// NotifyEvent describes a loop milestone surfaced to the UI.
type NotifyEvent struct {
	Kind      string `json:"kind"`
	SessionID string `json:"session_id,omitempty"`
	ToolName  string `json:"tool_name,omitempty"`
	ToolError string `json:"tool_error,omitempty"`
}

const (
	NotifyToolExecuting = "AssistantToolExecuting"
	NotifyToolComplete  = "AssistantToolComplete"
)

type RunConfig struct {
	APIKey    string
	Model     string
	Messages  []llm.ChatMessage
	Tools     []llm.Tool
	Executor  ToolExecutor
	SessionID string
}

type RunResult struct {
	FinalText string
	Messages  []llm.ChatMessage
	Rounds    int
	ToolCalls int
}

// Runner drives the bounded tool-calling loop. Each round sends the
// transcript, executes any requested tools, and appends the results;
// after MaxRounds the model gets one final call with no tools.
type Runner struct {
	Logger    *slog.Logger
	MaxRounds int
	Notify    func(NotifyEvent)
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Logger: logger, MaxRounds: DefaultMaxRounds}
}

func (r *Runner) notify(event NotifyEvent) {
	if r.Notify != nil {
		r.Notify(event)
	}
}

func (r *Runner) Run(ctx context.Context, transport llm.Transport, cfg RunConfig) (RunResult, error) {
	maxRounds := r.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	messages := make([]llm.ChatMessage, len(cfg.Messages))
	copy(messages, cfg.Messages)

	result := RunResult{}
	logger.Info("assistant.agent_start",
		"session_id", cfg.SessionID, "model", cfg.Model,
		"messages", len(messages), "tools", len(cfg.Tools))

	for round := 0; round < maxRounds; round++ {
		result.Rounds = round + 1
		logger.Info("assistant.api_request",
			"session_id", cfg.SessionID, "round", round+1, "messages", len(messages))

		raw, err := transport.Complete(ctx, cfg.APIKey, cfg.Model, messages, cfg.Tools)
		if err != nil {
			result.Messages = messages
			return result, err
		}
		resp := llm.Normalize(raw)
		logger.Info("assistant.api_response",
			"session_id", cfg.SessionID, "round", round+1,
			"shape", resp.Shape.String(), "tool_calls", len(resp.ToolCalls),
			"content_len", len(resp.Content))

		if !resp.HasToolCalls() {
			finalText := resp.Content
			if finalText == "" {
				finalText = fallbackReply
			}
			messages = append(messages, llm.ChatMessage{Role: "assistant", Content: finalText})
			result.FinalText = finalText
			result.Messages = messages
			return result, nil
		}

		// The assistant message carrying the tool calls goes in
		// before any tool result so the transcript stays causal.
		messages = append(messages, llm.ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result.ToolCalls++
			logger.Info("assistant.tool_start",
				"session_id", cfg.SessionID, "tool", call.Function.Name, "call_id", call.ID)
			r.notify(NotifyEvent{Kind: NotifyToolExecuting, SessionID: cfg.SessionID, ToolName: call.Function.Name})

			toolResult, toolErr := cfg.Executor.Execute(ctx, call)
			if toolErr != nil {
				logger.Warn("assistant.tool_error",
					"session_id", cfg.SessionID, "tool", call.Function.Name, "error", toolErr)
				toolResult = errorPayload(toolErr)
				r.notify(NotifyEvent{
					Kind: NotifyToolComplete, SessionID: cfg.SessionID,
					ToolName: call.Function.Name, ToolError: toolErr.Error(),
				})
			} else {
				logger.Info("assistant.tool_complete",
					"session_id", cfg.SessionID, "tool", call.Function.Name, "result_len", len(toolResult))
				r.notify(NotifyEvent{Kind: NotifyToolComplete, SessionID: cfg.SessionID, ToolName: call.Function.Name})
			}

			messages = append(messages, llm.ChatMessage{
				Role:       "tool",
				Content:    toolResult,
				ToolCallID: call.ID,
				ToolName:   call.Function.Name,
			})
		}
	}

	// Round budget exhausted. One last call with no tools forces a
	// plain-text answer from whatever context has accumulated.
	logger.Info("assistant.final_request", "session_id", cfg.SessionID, "rounds", maxRounds)
	raw, err := transport.Complete(ctx, cfg.APIKey, cfg.Model, messages, nil)
	if err != nil {
		result.Messages = messages
		return result, err
	}
	resp := llm.Normalize(raw)
	finalText := resp.Content
	if finalText == "" {
		finalText = fallbackReply
	}
	messages = append(messages, llm.ChatMessage{Role: "assistant", Content: finalText})
	result.FinalText = finalText
	result.Messages = messages
	return result, nil
}

// errorPayload serializes a tool failure so the model can react to it.
func errorPayload(err error) string {
	data, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return `{"error":"tool failed"}`
	}
	return string(data)
}
