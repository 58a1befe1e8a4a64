// Package llm abstracts over chat completion providers. The OpenAI
// client doubles as the Gemini client via an OpenAI-compatible base
// URL override.
package llm

import (
	"context"

	"github.com/taskpilot-ai/taskpilot/internal/model"
)

// StreamCallback receives incremental text as a completion streams.
type StreamCallback func(chunk string)

// Request is a single completion call: a system prompt plus the
// conversation so far, oldest first.
type Request struct {
	System    string
	Messages  []model.ChatMessage
	MaxTokens int
}

// Client is a chat completion provider.
type Client interface {
	// Complete returns the full assistant response.
	Complete(ctx context.Context, req Request) (string, error)

	// CompleteStream invokes cb for each text chunk and returns the
	// assembled response.
	CompleteStream(ctx context.Context, req Request, cb StreamCallback) (string, error)
}
