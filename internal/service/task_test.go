package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

func newTaskService(t *testing.T) *TaskService {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return NewTaskService(repo, logger.NewNop())
}

func TestTaskCreate_Validation(t *testing.T) {
	svc := newTaskService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  model.CreateTaskRequest
	}{
		{"empty title", model.CreateTaskRequest{Title: ""}},
		{"whitespace title", model.CreateTaskRequest{Title: "   "}},
		{"title too long", model.CreateTaskRequest{Title: strings.Repeat("x", 201)}},
		{"description too long", model.CreateTaskRequest{Title: "ok", Description: strings.Repeat("x", 1001)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, "user-1", &tc.req); !errors.Is(err, ErrInvalidTask) {
				t.Errorf("err = %v, want ErrInvalidTask", err)
			}
		})
	}
}

func TestTaskUpdate_OnlyProvidedFields(t *testing.T) {
	svc := newTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, "user-1", &model.CreateTaskRequest{
		Title:       "original",
		Description: "keep me",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	title := "renamed"
	updated, err := svc.Update(ctx, task.ID, "user-1", &model.UpdateTaskRequest{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Title != "renamed" {
		t.Errorf("title = %q", updated.Title)
	}
	if updated.Description != "keep me" {
		t.Errorf("description = %q, want untouched", updated.Description)
	}
	if updated.Completed {
		t.Error("completed flipped by title-only update")
	}
}

func TestTaskUpdate_ValidatesNewValues(t *testing.T) {
	svc := newTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, "user-1", &model.CreateTaskRequest{Title: "fine"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	bad := strings.Repeat("x", 201)
	if _, err := svc.Update(ctx, task.ID, "user-1", &model.UpdateTaskRequest{Title: &bad}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("err = %v, want ErrInvalidTask", err)
	}
}

func TestTaskToggle(t *testing.T) {
	svc := newTaskService(t)
	ctx := context.Background()

	task, err := svc.Create(ctx, "user-1", &model.CreateTaskRequest{Title: "flip me"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	toggled, err := svc.Toggle(ctx, task.ID, "user-1")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !toggled.Completed {
		t.Error("first toggle should complete the task")
	}

	toggled, err = svc.Toggle(ctx, task.ID, "user-1")
	if err != nil {
		t.Fatalf("Toggle again: %v", err)
	}
	if toggled.Completed {
		t.Error("second toggle should reopen the task")
	}
}

func TestTaskList_LimitBounds(t *testing.T) {
	svc := newTaskService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-1", &model.CreateTaskRequest{Title: "one"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Out-of-range limits fall back to the default cap.
	for _, limit := range []int{0, -5, 500} {
		resp, err := svc.List(ctx, "user-1", model.TaskFilterAll, limit)
		if err != nil {
			t.Fatalf("List(limit=%d): %v", limit, err)
		}
		if resp.Total != 1 {
			t.Errorf("List(limit=%d) total = %d, want 1", limit, resp.Total)
		}
	}
}
