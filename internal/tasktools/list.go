package tasktools

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/service"
)

// ListTool handles the list_tasks MCP tool.
type ListTool struct {
	tasks *service.TaskService
}

func NewListTool(tasks *service.TaskService) *ListTool {
	return &ListTool{tasks: tasks}
}

func (t *ListTool) Definition() mcp.Tool {
	return mcp.NewTool("list_tasks",
		mcp.WithDescription(
			"List the current user's tasks, optionally filtered by completion status.",
		),
		mcp.WithString("status",
			mcp.Description("Filter by 'all', 'pending', or 'completed' (default: all)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of tasks to return (default 100, max 100)"),
		),
	)
}

func (t *ListTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, err := userID(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	filter := model.TaskFilter(req.GetString("status", string(model.TaskFilterAll)))
	switch filter {
	case model.TaskFilterAll, model.TaskFilterPending, model.TaskFilterCompleted:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown status filter %q", filter)), nil
	}

	resp, err := t.tasks.List(ctx, uid, filter, int(intArg(req, "limit", 100)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}

	items := make([]map[string]any, 0, len(resp.Tasks))
	for i := range resp.Tasks {
		task := &resp.Tasks[i]
		items = append(items, map[string]any{
			"id":          task.ID,
			"title":       task.Title,
			"description": task.Description,
			"completed":   task.Completed,
			"created_at":  task.CreatedAt.Format(time.RFC3339),
			"updated_at":  task.UpdatedAt.Format(time.RFC3339),
		})
	}

	return jsonResult(map[string]any{
		"status":          "ok",
		"tasks":           items,
		"count":           resp.Total,
		"pending_count":   resp.PendingCount,
		"completed_count": resp.CompletedCount,
	}), nil
}
