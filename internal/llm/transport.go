package llm

import (
	"context"
	"encoding/json"
)

// Transport sends one completion request to a provider and returns the
// raw response body. Callers run the body through Normalize; a
// Transport never interprets the response shape itself.
type Transport interface {
	Complete(ctx context.Context, apiKey, model string, messages []ChatMessage, tools []Tool) (json.RawMessage, error)
	ValidateKey(ctx context.Context, apiKey string) error
}
