package agent

import (
	"context"

	"github.com/taskpilot-ai/taskpilot/internal/llm"
)

// CompletionRuntime answers turns with a plain completion, no tool
// access. Used when only an Anthropic key is configured, or as an
// explicit degraded mode.
type CompletionRuntime struct {
	client llm.Client
}

func NewCompletionRuntime(client llm.Client) *CompletionRuntime {
	return &CompletionRuntime{client: client}
}

func (r *CompletionRuntime) Submit(ctx context.Context, req SubmitRequest) (*Result, error) {
	text, err := r.client.Complete(ctx, llm.Request{
		System:    req.Instructions,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}

func (r *CompletionRuntime) SubmitStream(ctx context.Context, req SubmitRequest, emit EmitFunc) (*Result, error) {
	text, err := r.client.CompleteStream(ctx, llm.Request{
		System:    req.Instructions,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	}, func(chunk string) {
		emit(TextDelta{Content: chunk})
	})
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}
