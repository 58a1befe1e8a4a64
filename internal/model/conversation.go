// Package model defines data structures for the task chat platform.
package model

import (
	"time"
)

// MaxTitleLength is the cap on conversation titles. Derived titles are
// cut to the first 100 characters of the first user message.
const (
	MaxTitleLength     = 200
	DerivedTitleLength = 100
)

// Conversation is a chat thread owned by exactly one user. It is never
// visible to, or mutable by, any other user ID. UpdatedAt is bumped on
// every appended message.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateConversationRequest is the request to create a new conversation.
type CreateConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// UpdateConversationRequest is the request to rename a conversation.
type UpdateConversationRequest struct {
	Title string `json:"title"`
}

// ConversationResponse is the API view of a conversation.
type ConversationResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	Total         int                    `json:"total"`
}
