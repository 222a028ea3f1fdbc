package history

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process history store for local/dev use.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations []Conversation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveConversation(_ context.Context, conv Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.Date.IsZero() {
		conv.Date = time.Now().UTC()
	}
	conv = redactConversation(conv)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append(s.conversations, conv)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, page, limit int, actionType string) ([]Conversation, Pagination, error) {
	s.mu.RLock()
	matched := filterByAction(s.conversations, actionType)
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})
	return paginate(matched, page, limit)
}

func (s *InMemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = nil
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

func filterByAction(conversations []Conversation, actionType string) []Conversation {
	out := make([]Conversation, 0, len(conversations))
	for _, c := range conversations {
		if actionType == "" || hasActionType(c, actionType) {
			out = append(out, c)
		}
	}
	return out
}

func hasActionType(c Conversation, actionType string) bool {
	for _, a := range c.Actions {
		if strings.Contains(a.Type, actionType) {
			return true
		}
	}
	return false
}

func paginate(conversations []Conversation, page, limit int) ([]Conversation, Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	total := len(conversations)
	totalPages := (total + limit - 1) / limit

	start := (page - 1) * limit
	if start >= total {
		return []Conversation{}, Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return conversations[start:end], Pagination{Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}
