// Package orchestrator coordinates a single chat turn: reasoning trace,
// bulk-operation gating, agent runtime invocation, and the streaming
// event fan-out.
package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/agent"
	"github.com/taskpilot-ai/taskpilot/internal/guard"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/nats"
	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

const genericErrorResponse = "I encountered an error processing your request. Please try again."

// TurnInput is everything needed to run one stateless turn.
type TurnInput struct {
	UserID         string
	ConversationID int64
	Message        string
	History        []model.ChatMessage
	ConfirmToken   string
}

// TurnResult is the structured outcome of a turn. Err carries the
// internal failure detail; Response is always user-safe.
type TurnResult struct {
	Response             string
	ToolCalls            []model.ToolCall
	ThinkingSteps        []model.ThinkingStep
	ConfirmationRequired *model.ConfirmationRequest
	ProcessingTimeMs     int64
	Err                  string
}

// Event is a progress notification emitted during a streaming turn.
type Event interface{ isTurnEvent() }

// Thinking carries one reasoning step as it is recorded.
type Thinking struct {
	Step model.ThinkingStep
}

// ToolCallUpdate carries a completed tool invocation.
type ToolCallUpdate struct {
	Call model.ToolCall
}

// Token carries a chunk of response text.
type Token struct {
	Content string
}

func (Thinking) isTurnEvent()       {}
func (ToolCallUpdate) isTurnEvent() {}
func (Token) isTurnEvent()          {}

// EmitFunc receives events during a streaming turn.
type EmitFunc func(Event)

// Orchestrator runs chat turns. Each call is stateless given its
// inputs; the only shared state is the confirmation guard.
type Orchestrator struct {
	runtime   agent.Runtime
	guard     *guard.Guard
	tasks     *service.TaskService
	events    *nats.Publisher
	mcpURL    string
	maxTokens int
	logger    *logger.Logger
}

func New(runtime agent.Runtime, g *guard.Guard, tasks *service.TaskService, events *nats.Publisher, mcpURL string, maxTokens int, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		runtime:   runtime,
		guard:     g,
		tasks:     tasks,
		events:    events,
		mcpURL:    mcpURL,
		maxTokens: maxTokens,
		logger:    log,
	}
}

// RunTurn executes one turn without streaming.
func (o *Orchestrator) RunTurn(ctx context.Context, in TurnInput) *TurnResult {
	return o.run(ctx, in, nil)
}

// RunTurnStream executes one turn, emitting thinking steps, tool calls,
// and text chunks as they happen. Response text that never streamed as
// deltas is replayed as token events before returning, and text that
// did stream is not re-emitted.
func (o *Orchestrator) RunTurnStream(ctx context.Context, in TurnInput, emit EmitFunc) *TurnResult {
	return o.run(ctx, in, emit)
}

type turn struct {
	o      *Orchestrator
	in     TurnInput
	start  time.Time
	emit   EmitFunc
	stream textStream
	result *TurnResult
	log    *logger.Logger
}

func (o *Orchestrator) run(ctx context.Context, in TurnInput, emit EmitFunc) *TurnResult {
	t := &turn{
		o:      o,
		in:     in,
		start:  time.Now(),
		emit:   emit,
		result: &TurnResult{},
		log:    o.logger.With(zap.String("user_id", in.UserID), zap.Int64("conversation_id", in.ConversationID)),
	}

	outcome := t.execute(ctx)

	t.result.ProcessingTimeMs = time.Since(t.start).Milliseconds()
	metrics.RecordChatTurn(outcome, time.Since(t.start).Seconds())

	if emit != nil {
		if rest := t.stream.finalize(t.result.Response); rest != "" {
			emitTokenChunks(rest, emit)
		}
	}
	return t.result
}

func (t *turn) execute(ctx context.Context) string {
	t.addThinking(model.ThinkingAnalyzing, fmt.Sprintf("Analyzing user request: %q", preview(t.in.Message)))

	if t.in.ConfirmToken != "" {
		return t.confirmedExecution(ctx)
	}
	if action, ok := t.o.guard.Detect(t.in.Message); ok {
		return t.requestConfirmation(ctx, action)
	}
	return t.normalExecution(ctx)
}

// requestConfirmation is the terminal no-token path for a detected bulk
// action: nothing executes, the user gets a warning plus a fresh
// single-use token.
func (t *turn) requestConfirmation(ctx context.Context, action guard.Action) string {
	t.addThinking(model.ThinkingClarifying, fmt.Sprintf("Detected bulk operation: %s. Requesting confirmation.", action))

	affected := t.affectedTasks(ctx, action)
	if len(affected) == 0 {
		t.result.Response = "You don't have any tasks to perform this action on."
		return "noop"
	}

	token, err := t.o.guard.RequestConfirmation(t.in.UserID, action)
	if err != nil {
		return t.fail(err)
	}

	items := make([]map[string]any, 0, len(affected))
	for _, task := range affected {
		items = append(items, map[string]any{"id": task.ID, "title": task.Title})
	}

	desc := guard.Describe(action)
	t.result.Response = fmt.Sprintf("You're about to %s your tasks. Please confirm this action.", desc)
	t.result.ConfirmationRequired = &model.ConfirmationRequest{
		Action:        string(action),
		Message:       fmt.Sprintf("Are you sure you want to %s?", desc),
		AffectedItems: items,
		ConfirmToken:  token,
	}

	metrics.RecordConfirmation(string(action), "requested")
	t.log.Info("bulk confirmation requested",
		zap.String("action", string(action)),
		zap.Int("affected", len(affected)))
	return "confirmation_requested"
}

// affectedTasks estimates what a bulk action would touch. Best-effort:
// a listing failure means zero affected items and the turn
// short-circuits with "nothing to do".
func (t *turn) affectedTasks(ctx context.Context, action guard.Action) []model.Task {
	filter := model.TaskFilterAll
	if action == guard.ActionCompleteAll {
		filter = model.TaskFilterPending
	}
	resp, err := t.o.tasks.List(ctx, t.in.UserID, filter, 0)
	if err != nil {
		t.log.Warn("bulk affected-count lookup failed", zap.Error(err))
		return nil
	}
	return resp.Tasks
}

// confirmedExecution redeems the supplied token and, on success, hands
// the runtime a broad instruction for the bulk action. A token that
// fails redemption is an explicit user-visible rejection; no task data
// is touched.
func (t *turn) confirmedExecution(ctx context.Context) string {
	action, err := t.o.guard.Redeem(t.in.ConfirmToken, t.in.UserID)
	if err != nil {
		t.result.Response = "Invalid confirmation token."
		t.result.Err = err.Error()
		metrics.RecordConfirmation("unknown", "rejected")
		t.log.Warn("confirmation token rejected", zap.Error(err))
		return "confirmation_rejected"
	}

	t.addThinking(model.ThinkingProcessing, fmt.Sprintf("Executing confirmed bulk operation: %s", action))
	metrics.RecordConfirmation(string(action), "redeemed")

	result, err := t.submit(ctx, agent.SubmitRequest{
		Instructions: systemPrompt,
		Messages:     []model.ChatMessage{{Role: string(model.RoleUser), Content: bulkInstruction(string(action))}},
		ToolEndpoint: t.o.toolEndpoint(t.in.UserID),
		MaxTokens:    t.o.maxTokens,
	})
	if err != nil {
		t.result.Response = "Failed to execute bulk operation. Please try again."
		t.result.Err = err.Error()
		t.log.Error("bulk operation failed", zap.String("action", string(action)), zap.Error(err))
		t.publishEvent(ctx, model.TurnEventError, err.Error())
		return "error"
	}

	t.result.Response = result.Text
	t.result.ToolCalls = result.ToolCalls
	t.publishEvent(ctx, model.TurnEventBulkConfirmed, string(action))
	return "bulk_confirmed"
}

func (t *turn) normalExecution(ctx context.Context) string {
	t.addThinking(model.ThinkingPlanning, "Connecting to tool server and preparing agent")

	messages := make([]model.ChatMessage, 0, len(t.in.History)+1)
	messages = append(messages, t.in.History...)
	messages = append(messages, model.ChatMessage{Role: string(model.RoleUser), Content: t.in.Message})

	result, err := t.submit(ctx, agent.SubmitRequest{
		Instructions: systemPrompt,
		Messages:     messages,
		ToolEndpoint: t.o.toolEndpoint(t.in.UserID),
		MaxTokens:    t.o.maxTokens,
	})
	if err != nil {
		return t.fail(err)
	}

	t.addThinking(model.ThinkingProcessing, "Agent completed execution")
	t.result.Response = result.Text
	t.result.ToolCalls = result.ToolCalls
	t.publishEvent(ctx, model.TurnEventCompleted, "")
	return "completed"
}

// fail converts any runtime error into the generic user-safe response,
// preserving the reasoning trace accumulated so far.
func (t *turn) fail(err error) string {
	t.result.Response = genericErrorResponse
	t.result.Err = err.Error()
	t.log.Error("chat turn failed", zap.Error(err))
	t.publishEvent(context.Background(), model.TurnEventError, err.Error())
	return "error"
}

func (t *turn) submit(ctx context.Context, req agent.SubmitRequest) (*agent.Result, error) {
	if t.emit == nil {
		return t.o.runtime.Submit(ctx, req)
	}
	return t.o.runtime.SubmitStream(ctx, req, func(ev agent.Event) {
		switch e := ev.(type) {
		case agent.TextDelta:
			if t.stream.delta() {
				t.emit(Token{Content: e.Content})
			}
		case agent.ToolCallStarted:
			t.addThinking(model.ThinkingToolCall, fmt.Sprintf("Calling tool: %s", e.Tool))
		case agent.ToolCallFinished:
			t.emit(ToolCallUpdate{Call: e.Call})
		}
	})
}

func (t *turn) addThinking(typ model.ThinkingStepType, content string) {
	step := model.ThinkingStep{
		Type:      typ,
		Content:   content,
		Timestamp: time.Since(t.start).Seconds(),
	}
	t.result.ThinkingSteps = append(t.result.ThinkingSteps, step)
	if t.emit != nil {
		t.emit(Thinking{Step: step})
	}
}

func (t *turn) publishEvent(ctx context.Context, typ model.TurnEventType, reason string) {
	t.o.events.PublishTurnEvent(ctx, model.TurnEvent{
		UserID:           t.in.UserID,
		ConversationID:   t.in.ConversationID,
		Type:             typ,
		ToolCallCount:    len(t.result.ToolCalls),
		ProcessingTimeMs: time.Since(t.start).Milliseconds(),
		Reason:           reason,
	})
}

// toolEndpoint appends the user identity to the MCP URL so the tool
// server scopes every operation to that user.
func (o *Orchestrator) toolEndpoint(userID string) string {
	return o.mcpURL + "?user_id=" + url.QueryEscape(userID)
}

func preview(message string) string {
	runes := []rune(message)
	if len(runes) <= 100 {
		return message
	}
	return string(runes[:100]) + "..."
}

// emitTokenChunks replays response text as token events in small
// chunks, mirroring how a streamed response would have arrived.
func emitTokenChunks(text string, emit EmitFunc) {
	const chunkSize = 10
	runes := []rune(text)
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		emit(Token{Content: string(runes[i:end])})
	}
}
