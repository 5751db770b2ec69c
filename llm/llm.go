// Package llm is the narrow contract the agents and the bus use to reach a language
// model, with adapters for Anthropic and OpenAI and a client guarded by a retry
// manager and circuit breaker.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned when no provider is configured.
	ErrNotConfigured = errors.New("llm: no provider configured")

	// ErrNoJSON is returned when a structured reply contains no JSON value.
	ErrNoJSON = errors.New("llm: reply contains no JSON")
)

// Client sends a single prompt and returns the model's text reply.
type Client interface {
	SendPrompt(ctx context.Context, prompt, correlationID string) (string, error)
}

// SendStructured sends prompt and decodes the first JSON value in the reply as T.
func SendStructured[T any](ctx context.Context, client Client, prompt, correlationID string) (T, error) {
	var out T

	if client == nil {
		return out, ErrNotConfigured
	}

	reply, err := client.SendPrompt(ctx, prompt, correlationID)
	if err != nil {
		return out, err
	}

	raw, err := ExtractJSON(reply)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("llm: decode structured reply: %w", err)
	}
	return out, nil
}

// ExtractJSON returns the first complete JSON object or array in text. Models often
// wrap JSON in prose or markdown fences; both are skipped.
func ExtractJSON(text string) (json.RawMessage, error) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return raw, nil
		}
	}
	return nil, ErrNoJSON
}
