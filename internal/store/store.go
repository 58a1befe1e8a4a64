// Package store provides relational persistence for tasks,
// conversations and messages. Every query is hard-filtered by user ID:
// a conversation or task ID is never trusted on its own.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/taskpilot-ai/taskpilot/internal/model"
)

// ErrNotFound is returned when a row does not exist or belongs to a
// different user. Callers cannot distinguish the two cases.
var ErrNotFound = errors.New("not found")

// Repository defines the persistence operations used by the services
// and the MCP tools.
type Repository interface {
	// Tasks
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, taskID int64, userID string) (*model.Task, error)
	ListTasks(ctx context.Context, userID string, filter model.TaskFilter, limit int) ([]model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, taskID int64, userID string) error

	// Conversations
	CreateConversation(ctx context.Context, conv *model.Conversation) error
	GetConversation(ctx context.Context, conversationID int64, userID string) (*model.Conversation, error)
	LatestConversation(ctx context.Context, userID string) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID string, limit int) ([]model.Conversation, error)
	UpdateConversationTitle(ctx context.Context, conversationID int64, userID, title string, updatedAt time.Time) error
	TouchConversation(ctx context.Context, conversationID int64, userID string, updatedAt time.Time) error
	DeleteConversation(ctx context.Context, conversationID int64, userID string) error

	// Messages
	InsertMessage(ctx context.Context, msg *model.Message) error
	RecentMessages(ctx context.Context, conversationID int64, userID string, limit int) ([]model.Message, error)
	FullHistory(ctx context.Context, conversationID int64, userID string) ([]model.Message, error)
	CountMessages(ctx context.Context, conversationID int64, userID string) (int, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
