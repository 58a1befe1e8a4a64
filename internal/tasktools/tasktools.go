// Package tasktools exposes task CRUD operations as MCP tools.
//
// Each tool follows the same pattern:
// - A struct with the task service injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// User identity arrives out of band: the agent runner appends a
// user_id query parameter to the MCP endpoint URL, and the HTTP
// context function stores it on the request context. Tools never
// accept a user id as an argument, so one user's agent can never
// address another user's tasks.
package tasktools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskpilot-ai/taskpilot/internal/model"
)

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID stores the caller's user id on the context. Wired as the
// server's HTTP context function.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// userID extracts the caller's user id, set by the HTTP transport.
func userID(ctx context.Context) (string, error) {
	id, _ := ctx.Value(userIDKey).(string)
	if id == "" {
		return "", errors.New("user_id is required for task operations")
	}
	return id, nil
}

// jsonResult marshals a tool response payload as a text result.
func jsonResult(payload map[string]any) *mcp.CallToolResult {
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// taskFields flattens a task into the response payload shared by the
// mutating tools.
func taskFields(payload map[string]any, t *model.Task) map[string]any {
	payload["task_id"] = t.ID
	payload["title"] = t.Title
	payload["description"] = t.Description
	payload["completed"] = t.Completed
	payload["created_at"] = t.CreatedAt.Format(time.RFC3339)
	payload["updated_at"] = t.UpdatedAt.Format(time.RFC3339)
	return payload
}

// intArg extracts an integer argument, returning defaultVal if the key
// is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int64) int64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int64(v)
}
