package registry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/intent"
)

func newTestRegistry() *Registry {
	set := integrations.NewSet(
		integrations.TrelloConfig{},
		integrations.CalendarConfig{},
		integrations.NotionConfig{},
		integrations.SlackConfig{},
	)
	return New(set, nil, 0)
}

func TestExecuteCreateTrelloCard(t *testing.T) {
	reg := newTestRegistry()
	res := reg.Execute(context.Background(), intent.ActionCreateTrelloCard, map[string]string{
		"title": "buy milk", "priority": "medium",
	})
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	card, ok := res.Data.(integrations.Card)
	if !ok {
		t.Fatalf("result data = %T, want Card", res.Data)
	}
	if card.Title != "buy milk" {
		t.Fatalf("card title = %q", card.Title)
	}
	if !strings.HasPrefix(card.ID, "card_") {
		t.Fatalf("card id = %q", card.ID)
	}
}

func TestExecuteCreateCalendarEvent(t *testing.T) {
	reg := newTestRegistry()
	res := reg.Execute(context.Background(), intent.ActionCreateCalendarEvent, map[string]string{
		"title": "Lunch with Dana", "date": "friday", "start_time": "12:30 pm",
	})
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	ev, ok := res.Data.(integrations.CalendarEvent)
	if !ok {
		t.Fatalf("result data = %T, want CalendarEvent", res.Data)
	}
	if ev.Title != "Lunch with Dana" {
		t.Fatalf("event title = %q", ev.Title)
	}
	start, err := time.Parse(time.RFC3339, ev.Start)
	if err != nil {
		t.Fatalf("event start %q: %v", ev.Start, err)
	}
	if start.Weekday() != time.Friday {
		t.Fatalf("event day = %s, want Friday", start.Weekday())
	}
	if start.Hour() != 12 || start.Minute() != 30 {
		t.Fatalf("event time = %02d:%02d, want 12:30", start.Hour(), start.Minute())
	}
}

func TestAnalyzedEventTimeReachesCalendar(t *testing.T) {
	reg := newTestRegistry()
	it := intent.NewRecognizer().Analyze("schedule a meeting tomorrow at 3pm")
	if it.Function != intent.ActionCreateCalendarEvent {
		t.Fatalf("function = %q", it.Function)
	}

	res := reg.Execute(context.Background(), it.Function, it.Arguments)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	ev := res.Data.(integrations.CalendarEvent)
	start, err := time.Parse(time.RFC3339, ev.Start)
	if err != nil {
		t.Fatalf("event start %q: %v", ev.Start, err)
	}
	if start.Hour() != 15 {
		t.Fatalf("event hour = %d, want 15", start.Hour())
	}
	wantDay := time.Now().AddDate(0, 0, 1)
	if start.Year() != wantDay.Year() || start.YearDay() != wantDay.YearDay() {
		t.Fatalf("event day = %s, want tomorrow", start.Format("2006-01-02"))
	}
}

func TestExecuteGetTodaysEvents(t *testing.T) {
	reg := newTestRegistry()
	res := reg.Execute(context.Background(), intent.ActionGetTodaysEvents, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	events, ok := res.Data.([]integrations.CalendarEvent)
	if !ok {
		t.Fatalf("result data = %T, want []CalendarEvent", res.Data)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
}

func TestExecuteGetPendingTasks(t *testing.T) {
	reg := newTestRegistry()
	res := reg.Execute(context.Background(), intent.ActionGetPendingTasks, nil)
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	if _, ok := res.Data.([]integrations.Card); !ok {
		t.Fatalf("result data = %T, want []Card", res.Data)
	}
}

func TestExecuteSendSlackMessage(t *testing.T) {
	reg := newTestRegistry()
	res := reg.Execute(context.Background(), intent.ActionSendSlackMessage, map[string]string{
		"message": "the build is green",
	})
	if !res.Success {
		t.Fatalf("dispatch failed: %s", res.Error)
	}
	msg, ok := res.Data.(integrations.PostedMessage)
	if !ok {
		t.Fatalf("result data = %T, want PostedMessage", res.Data)
	}
	if msg.Channel != "general" {
		t.Fatalf("channel = %q, want default general", msg.Channel)
	}
}

func TestExecuteUnknownFunction(t *testing.T) {
	reg := newTestRegistry()
	res := reg.Execute(context.Background(), intent.ActionType("reboot_the_moon"), nil)
	if res.Success {
		t.Fatalf("expected failure for unknown function")
	}
	if !strings.Contains(res.Error, "unknown function") {
		t.Fatalf("error = %q", res.Error)
	}
}

func TestResolveEventStart(t *testing.T) {
	// a Wednesday
	now := time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

	got := resolveEventStart("tomorrow", "3pm", now)
	want := time.Date(2026, 3, 5, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("tomorrow 3pm = %v, want %v", got, want)
	}

	got = resolveEventStart("wednesday", "10am", now)
	// same weekday rolls a full week forward
	want = time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("next wednesday = %v, want %v", got, want)
	}

	got = resolveEventStart("", "", now)
	if !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("fallback = %v, want an hour from now", got)
	}

	got = resolveEventStart("friday", "", now)
	if got.Weekday() != time.Friday || got.Hour() != 9 {
		t.Fatalf("friday default = %v, want Friday 09:00", got)
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{"3pm", 15, 0, true},
		{"3 pm", 15, 0, true},
		{"12:30 pm", 12, 30, true},
		{"12 am", 0, 0, true},
		{"15:00", 15, 0, true},
		{"", 0, 0, false},
		{"soonish", 0, 0, false},
		{"25:00", 0, 0, false},
	}
	for _, tc := range cases {
		h, m, ok := parseClock(tc.in)
		if ok != tc.wantOK {
			t.Fatalf("parseClock(%q) ok = %v, want %v", tc.in, ok, tc.wantOK)
		}
		if ok && (h != tc.h || m != tc.m) {
			t.Fatalf("parseClock(%q) = %d:%02d, want %d:%02d", tc.in, h, m, tc.h, tc.m)
		}
	}
}
