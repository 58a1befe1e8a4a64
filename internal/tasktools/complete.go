package tasktools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/internal/store"
)

// CompleteTool handles the complete_task MCP tool.
type CompleteTool struct {
	tasks *service.TaskService
}

func NewCompleteTool(tasks *service.TaskService) *CompleteTool {
	return &CompleteTool{tasks: tasks}
}

func (t *CompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("complete_task",
		mcp.WithDescription(
			"Toggle a task's completion status: incomplete becomes complete and "+
				"complete becomes incomplete. Use this to mark tasks done or reopen them.",
		),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("The id of the task to toggle"),
		),
	)
}

func (t *CompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, err := userID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	taskID := intArg(req, "task_id", 0)
	if taskID == 0 {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	task, err := t.tasks.Toggle(ctx, taskID, uid)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Task %d not found or access denied", taskID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to toggle task: %v", err)), nil
	}

	status := "completed"
	if !task.Completed {
		status = "reopened"
	}
	return jsonResult(taskFields(map[string]any{"status": status}, task)), nil
}
