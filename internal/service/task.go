package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

const (
	maxTaskTitleLength       = 200
	maxTaskDescriptionLength = 1000
)

// ErrInvalidTask is returned when task input fails validation.
var ErrInvalidTask = errors.New("invalid task")

// TaskService handles task CRUD. It backs both the REST handlers and
// the MCP task tools.
type TaskService struct {
	repo   store.Repository
	logger *logger.Logger
}

// NewTaskService creates a new task service.
func NewTaskService(repo store.Repository, log *logger.Logger) *TaskService {
	return &TaskService{
		repo:   repo,
		logger: log,
	}
}

// Create creates a task for a user.
func (s *TaskService) Create(ctx context.Context, userID string, req *model.CreateTaskRequest) (*model.Task, error) {
	if err := validateTitle(req.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(req.Description); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &model.Task{
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	s.logger.Info("task created",
		zap.Int64("task_id", task.ID),
		zap.String("user_id", userID),
	)
	return task, nil
}

// Get fetches a single task, enforcing ownership.
func (s *TaskService) Get(ctx context.Context, taskID int64, userID string) (*model.Task, error) {
	return s.repo.GetTask(ctx, taskID, userID)
}

// List returns the user's tasks, newest first, with status counters.
func (s *TaskService) List(ctx context.Context, userID string, filter model.TaskFilter, limit int) (*model.ListTasksResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	tasks, err := s.repo.ListTasks(ctx, userID, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	var pending, completed int
	for _, t := range tasks {
		if t.Completed {
			completed++
		} else {
			pending++
		}
	}

	return &model.ListTasksResponse{
		Tasks:          tasks,
		Total:          len(tasks),
		PendingCount:   pending,
		CompletedCount: completed,
	}, nil
}

// Update applies the non-nil fields of req to an existing task.
func (s *TaskService) Update(ctx context.Context, taskID int64, userID string, req *model.UpdateTaskRequest) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		if err := validateTitle(*req.Title); err != nil {
			return nil, err
		}
		task.Title = *req.Title
	}
	if req.Description != nil {
		if err := validateDescription(*req.Description); err != nil {
			return nil, err
		}
		task.Description = *req.Description
	}
	if req.Completed != nil {
		task.Completed = *req.Completed
	}
	task.UpdatedAt = time.Now().UTC()

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// Toggle flips a task's completion status.
func (s *TaskService) Toggle(ctx context.Context, taskID int64, userID string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, taskID, userID)
	if err != nil {
		return nil, err
	}
	task.Completed = !task.Completed
	task.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("toggle task: %w", err)
	}
	return task, nil
}

// Delete removes a task permanently.
func (s *TaskService) Delete(ctx context.Context, taskID int64, userID string) error {
	if err := s.repo.DeleteTask(ctx, taskID, userID); err != nil {
		return err
	}
	s.logger.Info("task deleted",
		zap.Int64("task_id", taskID),
		zap.String("user_id", userID),
	)
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if utf8.RuneCountInString(title) > maxTaskTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidTask, maxTaskTitleLength)
	}
	return nil
}

func validateDescription(desc string) error {
	if utf8.RuneCountInString(desc) > maxTaskDescriptionLength {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidTask, maxTaskDescriptionLength)
	}
	return nil
}
