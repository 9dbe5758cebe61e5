package openai

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

const defaultBaseURL = "https://api.openai.com/v1"
const maxErrorBodyBytes = 2048

// Client talks to the OpenAI chat-completions API, or any
// OpenAI-compatible endpoint reached through a custom base URL.
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

func (c *Client) completionsEndpoint() string {
	return c.baseURL + "/chat/completions"
}

func (c *Client) applyHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	// OpenRouter asks compatible clients to identify themselves.
	if strings.Contains(c.baseURL, "openrouter.ai") {
		req.Header.Set("HTTP-Referer", "https://studybench.app")
		req.Header.Set("X-Title", "StudyBench")
	}
}

func (c *Client) Complete(ctx context.Context, apiKey, model string, messages []llm.ChatMessage, tools []llm.Tool) (json.RawMessage, error) {
	payload := map[string]any{
		"model":    model,
		"messages": messages,
	}
	if len(tools) > 0 {
		payload["tools"] = tools
		payload["tool_choice"] = "auto"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsEndpoint(), bytes.NewReader(body))
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

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return llm.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return llm.ErrRateLimited
	case resp.StatusCode >= 500:
		return llm.ErrUnavailable
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("openai error: %s - %s", resp.Status, readErrorBody(resp))
	default:
		return nil
	}
}

func readErrorBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return strings.TrimSpace(string(body))
}
