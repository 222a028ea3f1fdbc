// Package settings holds the user-facing preferences and usage counters.
package settings

import (
	"sync"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/intent"
	"github.com/voicedeskhq/voicedesk/internal/logging"
)

// VoiceSettings configures speech output.
type VoiceSettings struct {
	Speed float64 `json:"speed"`
	Type  string  `json:"type"`
}

// Settings is the full preference document returned to clients.
type Settings struct {
	Voice         VoiceSettings `json:"voice"`
	Notifications bool          `json:"notifications"`
	SoundEffects  bool          `json:"soundEffects"`
	AutoListen    bool          `json:"autoListen"`
	Theme         string        `json:"theme"`
}

// Update carries a partial settings change; nil fields are left untouched.
type Update struct {
	Voice         *VoiceUpdate `json:"voice"`
	Notifications *bool        `json:"notifications"`
	SoundEffects  *bool        `json:"soundEffects"`
	AutoListen    *bool        `json:"autoListen"`
	Theme         *string      `json:"theme"`
}

type VoiceUpdate struct {
	Speed *float64 `json:"speed"`
	Type  *string  `json:"type"`
}

// Stats reports usage counters for the settings facade.
type Stats struct {
	TotalCommands   int64     `json:"totalCommands"`
	TasksCreated    int64     `json:"tasksCreated"`
	EventsScheduled int64     `json:"eventsScheduled"`
	MessagesSent    int64     `json:"messagesSent"`
	NotesCreated    int64     `json:"notesCreated"`
	LastUsed        time.Time `json:"lastUsed,omitzero"`
}

func defaults(defaultVoice string) Settings {
	if defaultVoice == "" {
		defaultVoice = "aura-asteria-en"
	}
	return Settings{
		Voice:         VoiceSettings{Speed: 1.0, Type: defaultVoice},
		Notifications: true,
		SoundEffects:  true,
		AutoListen:    false,
		Theme:         "dark",
	}
}

// Store keeps settings and stats in process memory.
type Store struct {
	mu           sync.RWMutex
	defaultVoice string
	current      Settings
	stats        Stats
}

func NewStore(defaultVoice string) *Store {
	return &Store{
		defaultVoice: defaultVoice,
		current:      defaults(defaultVoice),
	}
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply merges the update into the current settings and returns the result.
func (s *Store) Apply(u Update) Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Voice != nil {
		if u.Voice.Speed != nil {
			s.current.Voice.Speed = *u.Voice.Speed
		}
		if u.Voice.Type != nil {
			s.current.Voice.Type = *u.Voice.Type
		}
	}
	if u.Notifications != nil {
		s.current.Notifications = *u.Notifications
	}
	if u.SoundEffects != nil {
		s.current.SoundEffects = *u.SoundEffects
	}
	if u.AutoListen != nil {
		s.current.AutoListen = *u.AutoListen
	}
	if u.Theme != nil {
		s.current.Theme = *u.Theme
	}
	logging.Info(logging.Fields{"theme": s.current.Theme, "voice": s.current.Voice.Type}, "settings updated")
	return s.current
}

// Reset restores defaults and returns them. Stats are kept.
func (s *Store) Reset() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = defaults(s.defaultVoice)
	logging.Info(nil, "settings reset to defaults")
	return s.current
}

// RecordCommand bumps the usage counters after a dispatched function call.
func (s *Store) RecordCommand(action intent.ActionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalCommands++
	s.stats.LastUsed = time.Now().UTC()
	switch action {
	case intent.ActionCreateTrelloCard:
		s.stats.TasksCreated++
	case intent.ActionCreateCalendarEvent:
		s.stats.EventsScheduled++
	case intent.ActionSendSlackMessage:
		s.stats.MessagesSent++
	case intent.ActionCreateNotionNote:
		s.stats.NotesCreated++
	}
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
