package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/taskpilot-ai/taskpilot/internal/middleware"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/service"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

// newTaskRouter builds a chi router around the task handler with a stub
// auth layer that injects the given user id.
func newTaskRouter(t *testing.T) (http.Handler, *service.TaskService) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	svc := service.NewTaskService(repo, logger.NewNop())
	h := NewTaskHandler(svc, logger.NewNop())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			userID := req.Header.Get("X-Test-User")
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Put("/{id}", h.Update)
		r.Patch("/{id}/toggle", h.Toggle)
		r.Delete("/{id}", h.Delete)
	})
	return r, svc
}

func doJSON(t *testing.T, router http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-Test-User", userID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTasksAPI_CreateAndGet(t *testing.T) {
	router, _ := newTaskRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", "user-1", model.CreateTaskRequest{
		Title:       "buy milk",
		Description: "two liters",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var task model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &task); err != nil {
		t.Fatalf("failed to decode task: %v", err)
	}
	if task.ID == 0 || task.Title != "buy milk" {
		t.Errorf("task = %+v", task)
	}

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", task.ID), "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}
}

func TestTasksAPI_CreateRequiresTitle(t *testing.T) {
	router, _ := newTaskRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/tasks", "user-1", model.CreateTaskRequest{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestTasksAPI_ListWithFilter(t *testing.T) {
	router, svc := newTaskRouter(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "user-1", &model.CreateTaskRequest{Title: "pending"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	done, err := svc.Create(ctx, "user-1", &model.CreateTaskRequest{Title: "done"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := svc.Toggle(ctx, done.ID, "user-1"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/tasks?status=pending", "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp model.ListTasksResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 1 || resp.PendingCount != 1 || resp.CompletedCount != 0 {
		t.Errorf("resp = %+v", resp)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/v1/tasks?status=bogus", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus filter status = %d, want 400", rec.Code)
	}
}

func TestTasksAPI_UpdateAndToggle(t *testing.T) {
	router, svc := newTaskRouter(t)

	task, err := svc.Create(context.Background(), "user-1", &model.CreateTaskRequest{Title: "original"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	title := "renamed"
	rec := doJSON(t, router, http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d", task.ID), "user-1",
		model.UpdateTaskRequest{Title: &title})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPatch, fmt.Sprintf("/api/v1/tasks/%d/toggle", task.ID), "user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d", rec.Code)
	}
	var toggled model.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &toggled); err != nil {
		t.Fatalf("failed to decode task: %v", err)
	}
	if !toggled.Completed || toggled.Title != "renamed" {
		t.Errorf("task = %+v", toggled)
	}
}

func TestTasksAPI_DeleteAndIsolation(t *testing.T) {
	router, svc := newTaskRouter(t)

	task, err := svc.Create(context.Background(), "user-1", &model.CreateTaskRequest{Title: "private"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Another user cannot see or remove it.
	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", task.ID), "user-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user get status = %d, want 404", rec.Code)
	}
	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", task.ID), "user-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user delete status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", task.ID), "user-1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", task.ID), "user-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestTasksAPI_InvalidID(t *testing.T) {
	router, _ := newTaskRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/tasks/abc", "user-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
