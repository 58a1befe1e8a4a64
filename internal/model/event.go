package model

import (
	"time"
)

// StreamEventType enumerates the SSE event types emitted during a
// streamed chat turn.
type StreamEventType string

const (
	StreamEventStart    StreamEventType = "start"
	StreamEventThinking StreamEventType = "thinking"
	StreamEventToolCall StreamEventType = "tool_call"
	StreamEventToken    StreamEventType = "token"
	StreamEventError    StreamEventType = "error"
	StreamEventDone     StreamEventType = "done"
)

// StartEvent opens a streamed turn and carries the conversation ID.
type StartEvent struct {
	ConversationID int64 `json:"conversation_id"`
}

// TokenEvent carries one incremental chunk of assistant text.
type TokenEvent struct {
	Content string `json:"content"`
	Index   int    `json:"index"`
}

// ErrorEvent carries a user-safe error description.
type ErrorEvent struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// DoneEvent closes a streamed turn.
type DoneEvent struct {
	ProcessingTimeMs     int64                `json:"processing_time_ms"`
	ConfirmationRequired *ConfirmationRequest `json:"confirmation_required,omitempty"`
}

// TurnEventType classifies audit events published to JetStream.
type TurnEventType string

const (
	TurnEventCompleted     TurnEventType = "turn_completed"
	TurnEventError         TurnEventType = "turn_error"
	TurnEventBulkConfirmed TurnEventType = "bulk_confirmed"
)

// TurnEvent is the audit record published after a chat turn for
// downstream consumers. Best-effort: losing one is acceptable.
type TurnEvent struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	ConversationID   int64         `json:"conversation_id"`
	Type             TurnEventType `json:"type"`
	ToolCallCount    int           `json:"tool_call_count"`
	ProcessingTimeMs int64         `json:"processing_time_ms"`
	Reason           string        `json:"reason,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}
