package model

// ThinkingStepType classifies a step in the agent's reasoning trace.
type ThinkingStepType string

const (
	ThinkingAnalyzing  ThinkingStepType = "analyzing"
	ThinkingPlanning   ThinkingStepType = "planning"
	ThinkingToolCall   ThinkingStepType = "tool_call"
	ThinkingProcessing ThinkingStepType = "processing"
	ThinkingClarifying ThinkingStepType = "clarifying"
)

// ThinkingStep is one entry in the agent's reasoning trace, kept for
// observability and UI transparency, not for control flow.
type ThinkingStep struct {
	Type      ThinkingStepType `json:"type"`
	Content   string           `json:"content"`
	Timestamp float64          `json:"timestamp"` // seconds since turn start
}

// ToolCall records a single tool invocation made by the agent runtime.
type ToolCall struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
	Result     map[string]any `json:"result"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
}

// ConfirmationRequest asks the user to confirm a detected bulk action
// before any task tool is invoked.
type ConfirmationRequest struct {
	Action        string           `json:"action"`
	Message       string           `json:"message"`
	AffectedItems []map[string]any `json:"affected_items"`
	ConfirmToken  string           `json:"confirm_token"`
}

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	ConversationID int64  `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	ConfirmToken   string `json:"confirm_token,omitempty"`
}

// ChatResponse is the structured result of one chat turn.
type ChatResponse struct {
	ConversationID       int64                `json:"conversation_id"`
	Response             string               `json:"response"`
	ToolCalls            []ToolCall           `json:"tool_calls"`
	ThinkingSteps        []ThinkingStep       `json:"thinking_steps"`
	ConfirmationRequired *ConfirmationRequest `json:"confirmation_required,omitempty"`
	ProcessingTimeMs     int64                `json:"processing_time_ms"`
}

// HistoryMessage is the API view of a persisted chat message.
type HistoryMessage struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}
