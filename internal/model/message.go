package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MaxMessageLength is the hard cap on stored message content. Longer
// content is truncated to the first MaxMessageLength characters, not
// rejected.
const MaxMessageLength = 4000

// Message is a single entry in a conversation's history. Messages are
// immutable once created and ordered by (created_at, id) for
// deterministic chronological replay. The user ID is denormalized from
// the owning conversation so isolation checks never trust a
// conversation ID alone.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessage is the role/content pair handed to the agent runtime as
// conversational context.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
