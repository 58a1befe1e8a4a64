package tasktools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/internal/store"
)

// DeleteTool handles the delete_task MCP tool.
type DeleteTool struct {
	tasks *service.TaskService
}

func NewDeleteTool(tasks *service.TaskService) *DeleteTool {
	return &DeleteTool{tasks: tasks}
}

func (t *DeleteTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_task",
		mcp.WithDescription(
			"Permanently remove a task. This cannot be undone.",
		),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("The id of the task to delete"),
		),
	)
}

func (t *DeleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, err := userID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	taskID := intArg(req, "task_id", 0)
	if taskID == 0 {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	err = t.tasks.Delete(ctx, taskID, uid)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Task %d not found or access denied", taskID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to delete task: %v", err)), nil
	}

	return jsonResult(map[string]any{
		"status":  "deleted",
		"task_id": taskID,
	}), nil
}
