package session

import "time"

// Status is the session-level state machine position.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusProcessing Status = "processing"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
)

// transitions lists the legal status edges. Error is reachable from anywhere;
// a fresh start recovers an errored session back to listening.
var transitions = map[Status][]Status{
	StatusIdle:       {StatusListening, StatusError},
	StatusListening:  {StatusListening, StatusProcessing, StatusIdle, StatusError},
	StatusProcessing: {StatusSpeaking, StatusIdle, StatusError},
	StatusSpeaking:   {StatusIdle, StatusProcessing, StatusError},
	StatusError:      {StatusListening, StatusIdle},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one immutable conversation entry, ordered by append.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ActionStatus tracks a dispatched operation's lifecycle.
type ActionStatus string

const (
	ActionPending ActionStatus = "pending"
	ActionSuccess ActionStatus = "success"
	ActionFailed  ActionStatus = "failed"
)

// Action records one dispatched side-effecting operation and its outcome.
// It is created pending and transitions exactly once to success or failed.
type Action struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Name        string            `json:"name"`
	Arguments   map[string]string `json:"arguments"`
	Status      ActionStatus      `json:"status"`
	Result      any               `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	CompletedAt time.Time         `json:"completedAt,omitzero"`
}

// Config holds per-session voice preferences.
type Config struct {
	Voice    string `json:"voice"`
	Language string `json:"language"`
}

// Session is the per-connection mutable state for one voice interaction.
type Session struct {
	ID               string    `json:"id"`
	ConnectionID     string    `json:"connectionId"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	EndedAt          time.Time `json:"endedAt,omitzero"`
	Status           Status    `json:"status"`
	TranscriptBuffer string    `json:"transcriptBuffer"`
	Messages         []Message `json:"messages"`
	Actions          []Action  `json:"actions"`
	Config           Config    `json:"config"`
}
