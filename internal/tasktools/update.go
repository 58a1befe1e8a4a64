package tasktools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/internal/store"
)

// UpdateTool handles the update_task MCP tool.
type UpdateTool struct {
	tasks *service.TaskService
}

func NewUpdateTool(tasks *service.TaskService) *UpdateTool {
	return &UpdateTool{tasks: tasks}
}

func (t *UpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("update_task",
		mcp.WithDescription(
			"Update fields of an existing task. Only the provided fields change.",
		),
		mcp.WithNumber("task_id",
			mcp.Required(),
			mcp.Description("The id of the task to update"),
		),
		mcp.WithString("title",
			mcp.Description("New task title (1-200 characters)"),
		),
		mcp.WithString("description",
			mcp.Description("New description (max 1000 characters)"),
		),
		mcp.WithBoolean("completed",
			mcp.Description("New completion status"),
		),
	)
}

func (t *UpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, err := userID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	taskID := intArg(req, "task_id", 0)
	if taskID == 0 {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	update := &model.UpdateTaskRequest{}
	args := req.GetArguments()
	if v, ok := args["title"].(string); ok {
		update.Title = &v
	}
	if v, ok := args["description"].(string); ok {
		update.Description = &v
	}
	if v, ok := args["completed"].(bool); ok {
		update.Completed = &v
	}

	task, err := t.tasks.Update(ctx, taskID, uid, update)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Task %d not found or access denied", taskID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update task: %v", err)), nil
	}

	return jsonResult(taskFields(map[string]any{"status": "updated"}, task)), nil
}
