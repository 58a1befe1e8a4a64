// Package agent runs a single model turn, with or without tool access.
//
// ToolRuntime drives an OpenAI-compatible model through a function
// calling loop bridged to an MCP tool server. CompletionRuntime is the
// degraded mode used when no tool-capable provider is configured: the
// model answers from conversation context alone.
package agent

import (
	"context"

	"github.com/taskpilot-ai/taskpilot/internal/model"
)

// SubmitRequest describes one agent turn.
type SubmitRequest struct {
	Instructions string
	Messages     []model.ChatMessage
	ToolEndpoint string
	MaxTokens    int
}

// Result is the outcome of a completed turn.
type Result struct {
	Text      string
	ToolCalls []model.ToolCall
}

// Event is a progress notification emitted while a turn runs.
type Event interface{ isEvent() }

// TextDelta carries a chunk of the assistant's response text.
type TextDelta struct {
	Content string
}

// ToolCallStarted fires when the model requests a tool invocation.
type ToolCallStarted struct {
	Tool       string
	Parameters map[string]any
}

// ToolCallFinished fires when a tool invocation returns.
type ToolCallFinished struct {
	Call model.ToolCall
}

func (TextDelta) isEvent()        {}
func (ToolCallStarted) isEvent()  {}
func (ToolCallFinished) isEvent() {}

// EmitFunc receives events during a streaming turn.
type EmitFunc func(Event)

// Runtime executes agent turns.
type Runtime interface {
	Submit(ctx context.Context, req SubmitRequest) (*Result, error)
	SubmitStream(ctx context.Context, req SubmitRequest, emit EmitFunc) (*Result, error)
}

// streamChunkSize is the rune count per TextDelta when a runtime has
// to synthesize a token stream from an already-complete response.
const streamChunkSize = 10

// emitChunks replays text as TextDelta events in small chunks.
func emitChunks(text string, emit EmitFunc) {
	runes := []rune(text)
	for i := 0; i < len(runes); i += streamChunkSize {
		end := i + streamChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		emit(TextDelta{Content: string(runes[i:end])})
	}
}
