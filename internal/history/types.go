package history

import (
	"context"
	"time"
)

// TurnRecord is a single user or assistant turn within a conversation.
type TurnRecord struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionRecord summarizes one dispatched function within a conversation.
type ActionRecord struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
}

// Conversation is the audit record written when a voice session ends.
type Conversation struct {
	ID       string         `json:"id"`
	Date     time.Time      `json:"date"`
	Duration time.Duration  `json:"duration"`
	Turns    []TurnRecord   `json:"messages"`
	Actions  []ActionRecord `json:"actions"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Store persists and retrieves conversation history.
type Store interface {
	SaveConversation(ctx context.Context, conv Conversation) error
	List(ctx context.Context, page, limit int, actionType string) ([]Conversation, Pagination, error)
	Clear(ctx context.Context) error
	Close() error
}
