package llm

import (
	"bytes"
	"encoding/json"
)

// Shape identifies which provider response layout a raw completion
// payload matched during normalization.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeOpenAI
	ShapeAnthropic
)

func (s Shape) String() string {
	switch s {
	case ShapeOpenAI:
		return "openai"
	case ShapeAnthropic:
		return "anthropic"
	default:
		return "unknown"
	}
}

// NormalizedResponse is the canonical form of a completion response.
// Content is empty when the provider returned no text; tool calls are
// listed in the order the provider issued them.
type NormalizedResponse struct {
	Shape     Shape
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model requested any tool execution.
func (r NormalizedResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// openaiEnvelope matches the chat-completions layout:
// choices[0].message carries content and optional tool_calls.
type openaiEnvelope struct {
	Choices []struct {
		Message struct {
			Content   *string    `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// anthropicEnvelope matches the messages layout: a content array of
// typed blocks where text blocks concatenate and tool_use blocks
// become tool calls.
type anthropicEnvelope struct {
	Content []struct {
		Type  string          `json:"type"`
		Text  string          `json:"text"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	} `json:"content"`
}

// Normalize converts a raw provider response into canonical form. It
// is total: any payload it does not recognize yields an empty response
// tagged ShapeUnknown, never an error. The tool-loop feeds the result
// back into conversation state, so a malformed provider reply must
// degrade to "no answer" rather than abort the run.
func Normalize(raw json.RawMessage) NormalizedResponse {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return NormalizedResponse{Shape: ShapeUnknown}
	}

	var openai openaiEnvelope
	if err := json.Unmarshal(trimmed, &openai); err == nil && len(openai.Choices) > 0 {
		msg := openai.Choices[0].Message
		resp := NormalizedResponse{Shape: ShapeOpenAI}
		if msg.Content != nil {
			resp.Content = *msg.Content
		}
		for _, call := range msg.ToolCalls {
			if call.Function.Name == "" {
				continue
			}
			if call.Type == "" {
				call.Type = "function"
			}
			if call.Function.Arguments == "" {
				call.Function.Arguments = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, call)
		}
		return resp
	}

	var anthropic anthropicEnvelope
	if err := json.Unmarshal(trimmed, &anthropic); err == nil && len(anthropic.Content) > 0 {
		resp := NormalizedResponse{Shape: ShapeAnthropic}
		var text bytes.Buffer
		for _, block := range anthropic.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.Text)
			case "tool_use":
				args := "{}"
				if len(bytes.TrimSpace(block.Input)) > 0 {
					args = string(block.Input)
				}
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{
					ID:   block.ID,
					Type: "function",
					Function: ToolCallFunction{
						Name:      block.Name,
						Arguments: args,
					},
				})
			}
		}
		resp.Content = text.String()
		return resp
	}

	return NormalizedResponse{Shape: ShapeUnknown}
}
