package tasktools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/service"
)

// CreateTool handles the create_task MCP tool.
type CreateTool struct {
	tasks *service.TaskService
}

func NewCreateTool(tasks *service.TaskService) *CreateTool {
	return &CreateTool{tasks: tasks}
}

func (t *CreateTool) Definition() mcp.Tool {
	return mcp.NewTool("create_task",
		mcp.WithDescription(
			"Create a new task for the current user. The task starts as incomplete. "+
				"The user is identified automatically from the session context.",
		),
		mcp.WithString("title",
			mcp.Required(),
			mcp.Description("The task title (required, 1-200 characters)"),
		),
		mcp.WithString("description",
			mcp.Description("Optional detailed description (max 1000 characters)"),
		),
	)
}

func (t *CreateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, err := userID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	title := req.GetString("title", "")
	if title == "" {
		return mcp.NewToolResultError("'title' is required"), nil
	}

	task, err := t.tasks.Create(ctx, uid, &model.CreateTaskRequest{
		Title:       title,
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create task: %v", err)), nil
	}

	return jsonResult(taskFields(map[string]any{"status": "created"}, task)), nil
}
