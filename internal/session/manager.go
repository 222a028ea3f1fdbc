package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicedeskhq/voicedesk/internal/logging"
)

var ErrNotFound = errors.New("session not found")

type entry struct {
	mu sync.Mutex
	s  *Session
}

// Manager owns the live sessions, keyed by connection id. The map lock only
// guards lookup, insert and remove; every entry carries its own mutex so one
// session's mutations never contend with another's.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func NewManager() *Manager {
	return &Manager{entries: make(map[string]*entry)}
}

// Create allocates a session for the connection. A connection that already has
// a live session gets it replaced (last-write-wins): only the owning
// connection calls Create, so a second start means the client restarted its
// session and the stale one is logged and dropped.
func (m *Manager) Create(connectionID string, cfg Config) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		CreatedAt:    now,
		UpdatedAt:    now,
		Status:       StatusIdle,
		Config:       cfg,
	}

	m.mu.Lock()
	prior, existed := m.entries[connectionID]
	m.entries[connectionID] = &entry{s: s}
	m.mu.Unlock()

	if existed {
		prior.mu.Lock()
		priorID := prior.s.ID
		prior.mu.Unlock()
		logging.Warn(logging.Fields{
			"connection_id":    connectionID,
			"replaced_session": priorID,
			"session_id":       s.ID,
		}, "session replaced by new start")
	}
	return clone(s)
}

// Get returns a snapshot of the connection's session.
func (m *Manager) Get(connectionID string) (*Session, error) {
	e := m.lookup(connectionID)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return clone(e.s), nil
}

// SetStatus moves the session along a legal edge. Illegal transitions and
// absent sessions are no-ops.
func (m *Manager) SetStatus(connectionID string, status Status) {
	e := m.lookup(connectionID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !CanTransition(e.s.Status, status) {
		logging.Debug(logging.Fields{
			"session_id": e.s.ID,
			"from":       e.s.Status,
			"to":         status,
		}, "ignoring invalid status transition")
		return
	}
	e.s.Status = status
	e.s.UpdatedAt = time.Now().UTC()
}

// AppendMessage records a conversation message; returns nil if the session is
// absent.
func (m *Manager) AppendMessage(connectionID, content string, role Role) *Message {
	e := m.lookup(connectionID)
	if e == nil {
		return nil
	}
	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.Messages = append(e.s.Messages, msg)
	e.s.UpdatedAt = msg.Timestamp
	out := msg
	return &out
}

// SetTranscript stores the most recent finalized transcript text.
func (m *Manager) SetTranscript(connectionID, text string) {
	e := m.lookup(connectionID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.TranscriptBuffer = text
	e.s.UpdatedAt = time.Now().UTC()
}

// AddAction records a pending dispatch; returns nil if the session is absent.
func (m *Manager) AddAction(connectionID, actionType, name string, args map[string]string) *Action {
	e := m.lookup(connectionID)
	if e == nil {
		return nil
	}
	a := Action{
		ID:        uuid.NewString(),
		Type:      actionType,
		Name:      name,
		Arguments: args,
		Status:    ActionPending,
		Timestamp: time.Now().UTC(),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.s.Actions = append(e.s.Actions, a)
	e.s.UpdatedAt = a.Timestamp
	out := a
	return &out
}

// ResolveAction sets an action's terminal status and result. Resolving an
// already-terminal action, or an unknown id, is a no-op.
func (m *Manager) ResolveAction(connectionID, actionID string, status ActionStatus, result any, errText string) {
	e := m.lookup(connectionID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.s.Actions {
		a := &e.s.Actions[i]
		if a.ID != actionID {
			continue
		}
		if a.Status != ActionPending {
			return
		}
		a.Status = status
		a.Result = result
		a.Error = errText
		a.CompletedAt = time.Now().UTC()
		e.s.UpdatedAt = a.CompletedAt
		return
	}
}

// End removes the session and returns its final state for audit logging.
func (m *Manager) End(connectionID string) (*Session, error) {
	m.mu.Lock()
	e, ok := m.entries[connectionID]
	if ok {
		delete(m.entries, connectionID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	e.s.EndedAt = time.Now().UTC()
	e.s.Status = StatusIdle
	final := clone(e.s)
	e.mu.Unlock()

	logging.Info(logging.Fields{
		"session_id":  final.ID,
		"duration_ms": final.EndedAt.Sub(final.CreatedAt).Milliseconds(),
		"messages":    len(final.Messages),
		"actions":     len(final.Actions),
	}, "voice session ended")
	return final, nil
}

// ActiveCount reports the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Manager) lookup(connectionID string) *entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entries[connectionID]
}

func clone(s *Session) *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	c.Actions = append([]Action(nil), s.Actions...)
	return &c
}
