// Package service provides business logic over the store.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
	"github.com/taskpilot-ai/taskpilot/pkg/metrics"
)

// ConversationService handles conversation and message operations.
type ConversationService struct {
	repo   store.Repository
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(repo store.Repository, log *logger.Logger) *ConversationService {
	return &ConversationService{
		repo:   repo,
		logger: log,
	}
}

// Create creates a new conversation for a user.
func (s *ConversationService) Create(ctx context.Context, userID, title string) (*model.Conversation, error) {
	now := time.Now().UTC()
	conv := &model.Conversation{
		UserID:    userID,
		Title:     truncateRunes(title, model.MaxTitleLength),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	s.logger.Info("conversation created",
		zap.Int64("conversation_id", conv.ID),
		zap.String("user_id", userID),
	)
	return conv, nil
}

// GetOrCreateDefault returns the user's most recently updated
// conversation, creating one if none exists. Used when a chat request
// does not name a conversation.
func (s *ConversationService) GetOrCreateDefault(ctx context.Context, userID string) (*model.Conversation, error) {
	conv, err := s.repo.LatestConversation(ctx, userID)
	if err == nil {
		return conv, nil
	}
	if err != store.ErrNotFound {
		return nil, fmt.Errorf("latest conversation: %w", err)
	}
	return s.Create(ctx, userID, "")
}

// Get fetches a conversation, enforcing ownership.
func (s *ConversationService) Get(ctx context.Context, conversationID int64, userID string) (*model.Conversation, error) {
	return s.repo.GetConversation(ctx, conversationID, userID)
}

// List returns the user's conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, userID string, limit int) ([]model.Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListConversations(ctx, userID, limit)
}

// UpdateTitle renames a conversation.
func (s *ConversationService) UpdateTitle(ctx context.Context, conversationID int64, userID, title string) error {
	return s.repo.UpdateConversationTitle(ctx, conversationID, userID,
		truncateRunes(title, model.MaxTitleLength), time.Now().UTC())
}

// Delete removes a conversation and cascades to all its messages.
func (s *ConversationService) Delete(ctx context.Context, conversationID int64, userID string) error {
	if err := s.repo.DeleteConversation(ctx, conversationID, userID); err != nil {
		return err
	}
	s.logger.Info("conversation deleted",
		zap.Int64("conversation_id", conversationID),
		zap.String("user_id", userID),
	)
	return nil
}

// Append stores a new message on a conversation. Content beyond the
// 4000-character cap is truncated, not rejected. The conversation's
// updated timestamp is bumped, and the first user message of an
// untitled conversation donates its first 100 characters as the title.
func (s *ConversationService) Append(ctx context.Context, conv *model.Conversation, role model.Role, content string) (*model.Message, error) {
	content = truncateRunes(content, model.MaxMessageLength)
	now := time.Now().UTC()

	msg := &model.Message{
		ConversationID: conv.ID,
		UserID:         conv.UserID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}

	if role == model.RoleUser && conv.Title == "" {
		count, err := s.repo.CountMessages(ctx, conv.ID, conv.UserID)
		if err != nil {
			return nil, fmt.Errorf("count messages: %w", err)
		}
		if count == 0 {
			title := truncateRunes(content, model.DerivedTitleLength)
			if err := s.repo.UpdateConversationTitle(ctx, conv.ID, conv.UserID, title, now); err != nil {
				return nil, fmt.Errorf("derive title: %w", err)
			}
			conv.Title = title
		}
	}

	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if err := s.repo.TouchConversation(ctx, conv.ID, conv.UserID, now); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	conv.UpdatedAt = now

	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	return msg, nil
}

// Recent returns the most recent messages of a conversation in
// chronological order, bounded by limit. The store fetches newest-first
// on its index; the slice is reversed here because the agent prompt
// needs oldest-first.
func (s *ConversationService) Recent(ctx context.Context, conversationID int64, userID string, limit int) ([]model.Message, error) {
	msgs, err := s.repo.RecentMessages(ctx, conversationID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// FullHistory returns every message of a conversation in chronological
// order.
func (s *ConversationService) FullHistory(ctx context.Context, conversationID int64, userID string) ([]model.Message, error) {
	return s.repo.FullHistory(ctx, conversationID, userID)
}

// MessageCount returns the number of messages in a conversation.
func (s *ConversationService) MessageCount(ctx context.Context, conversationID int64, userID string) (int, error) {
	return s.repo.CountMessages(ctx, conversationID, userID)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
