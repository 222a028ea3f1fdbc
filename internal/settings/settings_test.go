package settings

import (
	"testing"

	"github.com/voicedeskhq/voicedesk/internal/intent"
)

func TestDefaults(t *testing.T) {
	s := NewStore("")
	got := s.Get()
	if got.Voice.Type != "aura-asteria-en" || got.Voice.Speed != 1.0 {
		t.Fatalf("voice defaults = %+v", got.Voice)
	}
	if !got.Notifications || !got.SoundEffects || got.AutoListen {
		t.Fatalf("toggle defaults = %+v", got)
	}
	if got.Theme != "dark" {
		t.Fatalf("theme = %q", got.Theme)
	}
}

func TestApplyPartialUpdate(t *testing.T) {
	s := NewStore("aura-asteria-en")
	speed := 1.2
	theme := "light"
	got := s.Apply(Update{
		Voice: &VoiceUpdate{Speed: &speed},
		Theme: &theme,
	})
	if got.Voice.Speed != 1.2 {
		t.Fatalf("speed = %v", got.Voice.Speed)
	}
	if got.Voice.Type != "aura-asteria-en" {
		t.Fatalf("voice type should be untouched, got %q", got.Voice.Type)
	}
	if got.Theme != "light" {
		t.Fatalf("theme = %q", got.Theme)
	}
	if !got.Notifications {
		t.Fatalf("notifications should be untouched")
	}
}

func TestResetKeepsStats(t *testing.T) {
	s := NewStore("aura-luna-en")
	theme := "light"
	s.Apply(Update{Theme: &theme})
	s.RecordCommand(intent.ActionCreateTrelloCard)

	got := s.Reset()
	if got.Theme != "dark" || got.Voice.Type != "aura-luna-en" {
		t.Fatalf("reset settings = %+v", got)
	}
	if s.Stats().TotalCommands != 1 {
		t.Fatalf("stats should survive reset")
	}
}

func TestRecordCommandCounters(t *testing.T) {
	s := NewStore("")
	s.RecordCommand(intent.ActionCreateTrelloCard)
	s.RecordCommand(intent.ActionCreateCalendarEvent)
	s.RecordCommand(intent.ActionSendSlackMessage)
	s.RecordCommand(intent.ActionCreateNotionNote)
	s.RecordCommand(intent.ActionGetTodaysEvents)

	st := s.Stats()
	if st.TotalCommands != 5 {
		t.Fatalf("total = %d", st.TotalCommands)
	}
	if st.TasksCreated != 1 || st.EventsScheduled != 1 || st.MessagesSent != 1 || st.NotesCreated != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if st.LastUsed.IsZero() {
		t.Fatalf("lastUsed not set")
	}
}
