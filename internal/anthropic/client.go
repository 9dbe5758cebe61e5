package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studybench/engine/internal/llm"
)

const defaultBaseURL = "https://api.anthropic.com/v1"
const defaultVersion = "2023-06-01"
const defaultMaxTokens = 4096
const maxErrorBodyBytes = 2048

// Client talks to the Anthropic messages API. Conversation state is
// kept in the canonical transcript format; this client converts it to
// the messages layout on the way out and returns the raw body on the
// way back.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		baseURL: base,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Complete(ctx context.Context, apiKey, model string, messages []llm.ChatMessage, tools []llm.Tool) (json.RawMessage, error) {
	converted, systemPrompt := toAnthropicMessages(messages)
	payload := map[string]any{
		"model":      model,
		"max_tokens": defaultMaxTokens,
		"messages":   converted,
	}
	if systemPrompt != "" {
		payload["system"] = systemPrompt
	}
	if len(tools) > 0 {
		payload["tools"] = toAnthropicTools(tools)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req, apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req, apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return statusError(resp)
}

func (c *Client) applyHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", defaultVersion)
	req.Header.Set("content-type", "application/json")
}

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return llm.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return llm.ErrRateLimited
	case resp.StatusCode >= 500:
		return llm.ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("anthropic error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	default:
		return nil
	}
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// toAnthropicMessages converts the canonical transcript: system
// messages collect into the system prompt, assistant tool calls become
// tool_use blocks, tool results become user tool_result blocks.
func toAnthropicMessages(chat []llm.ChatMessage) ([]anthropicMessage, string) {
	var messages []anthropicMessage
	systemParts := make([]string, 0)
	for _, msg := range chat {
		switch strings.ToLower(strings.TrimSpace(msg.Role)) {
		case "system":
			text := strings.TrimSpace(msg.Content)
			if text != "" {
				systemParts = append(systemParts, text)
			}
		case "tool":
			messages = append(messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})
		default:
			content := []anthropicContent{}
			if msg.Content != "" {
				content = append(content, anthropicContent{Type: "text", Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				input := map[string]any{}
				if call.Function.Arguments != "" {
					_ = json.Unmarshal([]byte(call.Function.Arguments), &input)
				}
				content = append(content, anthropicContent{
					Type:  "tool_use",
					ID:    call.ID,
					Name:  call.Function.Name,
					Input: input,
				})
			}
			messages = append(messages, anthropicMessage{
				Role:    strings.ToLower(strings.TrimSpace(msg.Role)),
				Content: content,
			})
		}
	}
	return messages, strings.Join(systemParts, "\n\n")
}

func toAnthropicTools(tools []llm.Tool) []anthropicTool {
	result := make([]anthropicTool, 0, len(tools))
	for _, tool := range tools {
		result = append(result, anthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}
	return result
}
