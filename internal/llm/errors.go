package llm

import "errors"

var (
	ErrUnauthorized  = errors.New("llm unauthorized")
	ErrUnavailable   = errors.New("llm unavailable")
	ErrRateLimited   = errors.New("llm rate limited")
	ErrNotConfigured = errors.New("llm not configured")
)
