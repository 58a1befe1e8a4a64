package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/taskpilot-ai/taskpilot/internal/agent"
	"github.com/taskpilot-ai/taskpilot/internal/guard"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// fakeRuntime records submissions and returns a canned result.
type fakeRuntime struct {
	requests []agent.SubmitRequest
	text     string
	calls    []model.ToolCall
	err      error

	// streamDeltas, when set, are emitted as incremental text chunks
	// during SubmitStream before returning.
	streamDeltas []string
}

func (f *fakeRuntime) Submit(ctx context.Context, req agent.SubmitRequest) (*agent.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Result{Text: f.text, ToolCalls: f.calls}, nil
}

func (f *fakeRuntime) SubmitStream(ctx context.Context, req agent.SubmitRequest, emit agent.EmitFunc) (*agent.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	for _, d := range f.streamDeltas {
		emit(agent.TextDelta{Content: d})
	}
	for _, c := range f.calls {
		emit(agent.ToolCallFinished{Call: c})
	}
	return &agent.Result{Text: f.text, ToolCalls: f.calls}, nil
}

type testEnv struct {
	orch    *Orchestrator
	runtime *fakeRuntime
	tasks   *service.TaskService
	guard   *guard.Guard
}

func newTestEnv(t *testing.T, runtime *fakeRuntime) *testEnv {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	log := logger.NewNop()
	tasks := service.NewTaskService(repo, log)
	g := guard.New(5 * time.Minute)

	return &testEnv{
		orch:    New(runtime, g, tasks, nil, "http://localhost:8081/mcp", 1024, log),
		runtime: runtime,
		tasks:   tasks,
		guard:   g,
	}
}

func (e *testEnv) seedTasks(t *testing.T, userID string, titles ...string) {
	t.Helper()
	for _, title := range titles {
		if _, err := e.tasks.Create(context.Background(), userID, &model.CreateTaskRequest{Title: title}); err != nil {
			t.Fatalf("failed to seed task %q: %v", title, err)
		}
	}
}

func (e *testEnv) taskCount(t *testing.T, userID string) int {
	t.Helper()
	resp, err := e.tasks.List(context.Background(), userID, model.TaskFilterAll, 0)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	return resp.Total
}

// ─── Normal execution ────────────────────────────────────────────────────────

func TestRunTurn_NormalExecution(t *testing.T) {
	rt := &fakeRuntime{text: "Here are your tasks."}
	env := newTestEnv(t, rt)

	result := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:  "user-1",
		Message: "Show me my tasks",
		History: []model.ChatMessage{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "Hello!"},
		},
	})

	if result.Response != "Here are your tasks." {
		t.Errorf("Response = %q", result.Response)
	}
	if result.ConfirmationRequired != nil {
		t.Error("unexpected confirmation request")
	}
	if result.Err != "" {
		t.Errorf("unexpected error: %s", result.Err)
	}
	if len(rt.requests) != 1 {
		t.Fatalf("runtime calls = %d, want 1", len(rt.requests))
	}

	req := rt.requests[0]
	if req.Instructions == "" {
		t.Error("expected system instructions")
	}
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want history + current", len(req.Messages))
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" || last.Content != "Show me my tasks" {
		t.Errorf("last message = %+v", last)
	}
	if !strings.Contains(req.ToolEndpoint, "user_id=user-1") {
		t.Errorf("tool endpoint %q missing user scope", req.ToolEndpoint)
	}
	if len(result.ThinkingSteps) == 0 {
		t.Error("expected reasoning steps")
	}
}

func TestRunTurn_RuntimeErrorIsUserSafe(t *testing.T) {
	rt := &fakeRuntime{err: errors.New("connection refused")}
	env := newTestEnv(t, rt)

	result := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:  "user-1",
		Message: "Show me my tasks",
	})

	if result.Response != genericErrorResponse {
		t.Errorf("Response = %q, want generic error text", result.Response)
	}
	if result.Err == "" {
		t.Error("expected internal error detail")
	}
	if strings.Contains(result.Response, "connection refused") {
		t.Error("raw error leaked into user-facing response")
	}
	if len(result.ThinkingSteps) == 0 {
		t.Error("reasoning steps accumulated before the failure should be preserved")
	}
}

// ─── Bulk confirmation short-circuit ─────────────────────────────────────────

func TestRunTurn_BulkDetectionRequestsConfirmation(t *testing.T) {
	rt := &fakeRuntime{text: "should never run"}
	env := newTestEnv(t, rt)
	env.seedTasks(t, "user-1", "task one", "task two", "task three")

	result := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:  "user-1",
		Message: "Delete all my tasks",
	})

	if result.ConfirmationRequired == nil {
		t.Fatal("expected confirmation request")
	}
	cr := result.ConfirmationRequired
	if cr.Action != "delete_all" {
		t.Errorf("action = %q, want delete_all", cr.Action)
	}
	if cr.ConfirmToken == "" {
		t.Error("expected a confirmation token")
	}
	if len(cr.AffectedItems) != 3 {
		t.Errorf("affected items = %d, want 3", len(cr.AffectedItems))
	}
	if result.Response != "You're about to delete all your tasks. Please confirm this action." {
		t.Errorf("Response = %q", result.Response)
	}

	// The terminal confirmation state performs no agent work and
	// touches no task data.
	if len(rt.requests) != 0 {
		t.Errorf("runtime calls = %d, want 0", len(rt.requests))
	}
	if got := env.taskCount(t, "user-1"); got != 3 {
		t.Errorf("task count = %d, want 3 untouched", got)
	}
}

func TestRunTurn_BulkWithNoTasksShortCircuits(t *testing.T) {
	rt := &fakeRuntime{}
	env := newTestEnv(t, rt)

	result := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:  "user-1",
		Message: "delete all tasks",
	})

	if result.Response != "You don't have any tasks to perform this action on." {
		t.Errorf("Response = %q", result.Response)
	}
	if result.ConfirmationRequired != nil {
		t.Error("unexpected confirmation request for empty task list")
	}
	if len(rt.requests) != 0 {
		t.Errorf("runtime calls = %d, want 0", len(rt.requests))
	}
}

func TestRunTurn_CompleteAllCountsOnlyPending(t *testing.T) {
	rt := &fakeRuntime{}
	env := newTestEnv(t, rt)
	env.seedTasks(t, "user-1", "pending one")

	created, err := env.tasks.Create(context.Background(), "user-1", &model.CreateTaskRequest{Title: "done already"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := env.tasks.Toggle(context.Background(), created.ID, "user-1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	result := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:  "user-1",
		Message: "complete all tasks",
	})

	if result.ConfirmationRequired == nil {
		t.Fatal("expected confirmation request")
	}
	if len(result.ConfirmationRequired.AffectedItems) != 1 {
		t.Errorf("affected items = %d, want only the pending task", len(result.ConfirmationRequired.AffectedItems))
	}
	if result.ConfirmationRequired.Action != "complete_all" {
		t.Errorf("action = %q, want complete_all", result.ConfirmationRequired.Action)
	}
}

// ─── Confirmed execution ─────────────────────────────────────────────────────

func TestRunTurn_ConfirmedBulkExecution(t *testing.T) {
	rt := &fakeRuntime{text: "All 3 tasks deleted."}
	env := newTestEnv(t, rt)
	env.seedTasks(t, "user-1", "a", "b", "c")

	first := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:  "user-1",
		Message: "Delete all my tasks",
	})
	if first.ConfirmationRequired == nil {
		t.Fatal("expected confirmation request")
	}
	token := first.ConfirmationRequired.ConfirmToken

	second := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:       "user-1",
		Message:      "yes, do it",
		ConfirmToken: token,
	})

	if second.Response != "All 3 tasks deleted." {
		t.Errorf("Response = %q", second.Response)
	}
	if len(rt.requests) != 1 {
		t.Fatalf("runtime calls = %d, want 1", len(rt.requests))
	}
	msg := rt.requests[0].Messages
	if len(msg) != 1 || !strings.Contains(msg[0].Content, "Delete all tasks") {
		t.Errorf("bulk instruction = %+v", msg)
	}

	// The token is consumed: replaying it is rejected without any
	// further runtime work.
	third := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:       "user-1",
		Message:      "yes, do it again",
		ConfirmToken: token,
	})
	if third.Response != "Invalid confirmation token." {
		t.Errorf("replay Response = %q", third.Response)
	}
	if third.Err == "" {
		t.Error("expected internal error detail on replay")
	}
	if len(rt.requests) != 1 {
		t.Errorf("runtime calls after replay = %d, want still 1", len(rt.requests))
	}
}

func TestRunTurn_ForeignTokenRejected(t *testing.T) {
	rt := &fakeRuntime{text: "should never run"}
	env := newTestEnv(t, rt)
	env.seedTasks(t, "user-1", "a")

	first := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:  "user-1",
		Message: "delete all tasks",
	})
	token := first.ConfirmationRequired.ConfirmToken

	result := env.orch.RunTurn(context.Background(), TurnInput{
		UserID:       "user-2",
		Message:      "confirm",
		ConfirmToken: token,
	})

	if result.Response != "Invalid confirmation token." {
		t.Errorf("Response = %q", result.Response)
	}
	if len(rt.requests) != 0 {
		t.Errorf("runtime calls = %d, want 0", len(rt.requests))
	}
	if got := env.taskCount(t, "user-1"); got != 1 {
		t.Errorf("task count = %d, want 1 untouched", got)
	}
}

// ─── Streaming ───────────────────────────────────────────────────────────────

func collectEvents(result **TurnResult, env *testEnv, in TurnInput) (tokens []string, thinking, toolCalls int) {
	*result = env.orch.RunTurnStream(context.Background(), in, func(ev Event) {
		switch e := ev.(type) {
		case Token:
			tokens = append(tokens, e.Content)
		case Thinking:
			thinking++
		case ToolCallUpdate:
			toolCalls++
		}
	})
	return
}

func TestRunTurnStream_ReplaysUnstreamedText(t *testing.T) {
	// Runtime returns text without emitting deltas; the orchestrator
	// must replay it as token events.
	rt := &fakeRuntime{text: "Hello! I created your task."}
	env := newTestEnv(t, rt)

	var result *TurnResult
	tokens, thinking, _ := collectEvents(&result, env, TurnInput{
		UserID:  "user-1",
		Message: "add a task to buy milk",
	})

	if got := strings.Join(tokens, ""); got != result.Response {
		t.Errorf("streamed tokens %q != response %q", got, result.Response)
	}
	if thinking == 0 {
		t.Error("expected thinking events")
	}
}

func TestRunTurnStream_DoesNotDuplicateStreamedText(t *testing.T) {
	rt := &fakeRuntime{
		text:         "Hello world",
		streamDeltas: []string{"Hello ", "world"},
	}
	env := newTestEnv(t, rt)

	var result *TurnResult
	tokens, _, _ := collectEvents(&result, env, TurnInput{
		UserID:  "user-1",
		Message: "hi",
	})

	if got := strings.Join(tokens, ""); got != "Hello world" {
		t.Errorf("streamed tokens = %q, want text exactly once", got)
	}
}

func TestRunTurnStream_ConfirmationArrivesAsTokens(t *testing.T) {
	rt := &fakeRuntime{}
	env := newTestEnv(t, rt)
	env.seedTasks(t, "user-1", "a", "b")

	var result *TurnResult
	tokens, _, _ := collectEvents(&result, env, TurnInput{
		UserID:  "user-1",
		Message: "delete all tasks",
	})

	if result.ConfirmationRequired == nil {
		t.Fatal("expected confirmation request")
	}
	if got := strings.Join(tokens, ""); got != result.Response {
		t.Errorf("streamed tokens %q != response %q", got, result.Response)
	}
}

func TestRunTurnStream_ForwardsToolCalls(t *testing.T) {
	rt := &fakeRuntime{
		text: "Done.",
		calls: []model.ToolCall{
			{Tool: "create_task", Parameters: map[string]any{"title": "x"}},
		},
	}
	env := newTestEnv(t, rt)

	var result *TurnResult
	_, _, toolCalls := collectEvents(&result, env, TurnInput{
		UserID:  "user-1",
		Message: "add a task",
	})

	if toolCalls != 1 {
		t.Errorf("tool call events = %d, want 1", toolCalls)
	}
	if len(result.ToolCalls) != 1 {
		t.Errorf("result tool calls = %d, want 1", len(result.ToolCalls))
	}
}
