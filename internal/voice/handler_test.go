package voice

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/history"
	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/intent"
	"github.com/voicedeskhq/voicedesk/internal/protocol"
	"github.com/voicedeskhq/voicedesk/internal/registry"
	"github.com/voicedeskhq/voicedesk/internal/session"
	"github.com/voicedeskhq/voicedesk/internal/settings"
	"github.com/voicedeskhq/voicedesk/internal/transcribe"
)

// scriptAdapter lets tests inject transcription events directly.
type scriptAdapter struct {
	events chan transcribe.Event
}

func newScriptAdapter() *scriptAdapter {
	return &scriptAdapter{events: make(chan transcribe.Event, 16)}
}

func (a *scriptAdapter) Mode() string { return "demo" }

func (a *scriptAdapter) Start(_ context.Context, _ string) (transcribe.Stream, <-chan transcribe.Event, error) {
	return &scriptStream{}, a.events, nil
}

type scriptStream struct {
	chunks int
}

func (s *scriptStream) SendAudio(_ context.Context, _ string) error {
	s.chunks++
	return nil
}

func (s *scriptStream) Close() error { return nil }

type fixture struct {
	handler  *Handler
	sessions *session.Manager
	adapter  *scriptAdapter
	store    *history.InMemoryStore
	inbound  chan []byte
	outbound chan any
	cancel   context.CancelFunc
	done     chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	providers := integrations.NewSet(
		integrations.TrelloConfig{},
		integrations.CalendarConfig{},
		integrations.NotionConfig{},
		integrations.SlackConfig{},
	)
	return newFixtureWith(t, registry.New(providers, nil, 0))
}

func newFixtureWith(t *testing.T, dispatch Dispatcher) *fixture {
	t.Helper()
	sessions := session.NewManager()
	adapter := newScriptAdapter()
	store := history.NewInMemoryStore()
	h := NewHandler(Options{
		Sessions:      sessions,
		Recognizer:    intent.NewRecognizer(),
		Registry:      dispatch,
		Adapter:       adapter,
		History:       store,
		Stats:         settings.NewStore(""),
		SpeakingDwell: 30 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		handler:  h,
		sessions: sessions,
		adapter:  adapter,
		store:    store,
		inbound:  make(chan []byte, 16),
		outbound: make(chan any, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go func() {
		h.RunConnection(ctx, "conn-test", f.inbound, f.outbound)
		close(f.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(2 * time.Second):
			t.Errorf("RunConnection did not return")
		}
	})
	return f
}

func (f *fixture) next(t *testing.T) any {
	t.Helper()
	select {
	case msg := <-f.outbound:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound message")
		return nil
	}
}

func (f *fixture) expectStatus(t *testing.T, want string) {
	t.Helper()
	msg := f.next(t)
	st, ok := msg.(protocol.Status)
	if !ok {
		t.Fatalf("got %T %+v, want Status %q", msg, msg, want)
	}
	if st.Status != want {
		t.Fatalf("status = %q, want %q", st.Status, want)
	}
}

func TestStartEmitsReadyAndListening(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:start","config":{"voice":"aura-luna-en"}}`)

	msg := f.next(t)
	ready, ok := msg.(protocol.Ready)
	if !ok {
		t.Fatalf("got %T, want Ready", msg)
	}
	if ready.SessionID == "" || ready.Mode != "demo" {
		t.Fatalf("ready = %+v", ready)
	}
	if !strings.Contains(ready.Message, "demo mode") {
		t.Fatalf("ready message = %q", ready.Message)
	}
	f.expectStatus(t, "listening")

	s, err := f.sessions.Get("conn-test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Config.Voice != "aura-luna-en" {
		t.Fatalf("session config = %+v", s.Config)
	}
}

func TestTextCommandFullFlow(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:start"}`)
	f.next(t) // ready
	f.expectStatus(t, "listening")

	f.inbound <- []byte(`{"type":"voice:text","text":"add a task to buy groceries"}`)
	f.expectStatus(t, "processing")

	msg := f.next(t)
	call, ok := msg.(protocol.FunctionCall)
	if !ok {
		t.Fatalf("got %T, want FunctionCall", msg)
	}
	if call.Function != "create_trello_card" || call.Arguments["title"] != "buy groceries" {
		t.Fatalf("function call = %+v", call)
	}

	msg = f.next(t)
	result, ok := msg.(protocol.FunctionResult)
	if !ok {
		t.Fatalf("got %T, want FunctionResult", msg)
	}
	if !result.Success {
		t.Fatalf("function result = %+v", result)
	}

	msg = f.next(t)
	resp, ok := msg.(protocol.Response)
	if !ok {
		t.Fatalf("got %T, want Response", msg)
	}
	if !strings.Contains(resp.Text, `"buy groceries"`) {
		t.Fatalf("response = %q", resp.Text)
	}

	f.expectStatus(t, "speaking")
	f.expectStatus(t, "idle")

	s, err := f.sessions.Get("conn-test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(s.Messages) != 2 {
		t.Fatalf("messages = %d, want user+assistant", len(s.Messages))
	}
	if len(s.Actions) != 1 || s.Actions[0].Status != session.ActionSuccess {
		t.Fatalf("actions = %+v", s.Actions)
	}
}

func TestTranscriptEventsDriveProcessing(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:start"}`)
	f.next(t) // ready
	f.expectStatus(t, "listening")

	f.adapter.events <- transcribe.Event{Type: transcribe.EventPartial, Text: "what's on"}
	msg := f.next(t)
	tr, ok := msg.(protocol.Transcript)
	if !ok || tr.IsFinal {
		t.Fatalf("got %T %+v, want partial transcript", msg, msg)
	}

	f.adapter.events <- transcribe.Event{Type: transcribe.EventFinal, Text: "what's on my calendar today"}
	msg = f.next(t)
	tr, ok = msg.(protocol.Transcript)
	if !ok || !tr.IsFinal {
		t.Fatalf("got %T %+v, want final transcript", msg, msg)
	}

	f.adapter.events <- transcribe.Event{Type: transcribe.EventUtteranceEnd}
	f.expectStatus(t, "processing")

	msg = f.next(t)
	call, ok := msg.(protocol.FunctionCall)
	if !ok {
		t.Fatalf("got %T, want FunctionCall", msg)
	}
	if call.Function != "get_todays_events" {
		t.Fatalf("function = %q", call.Function)
	}
	f.next(t) // function result
	resp := f.next(t).(protocol.Response)
	if !strings.Contains(resp.Text, "3 events") {
		t.Fatalf("response = %q", resp.Text)
	}
	f.expectStatus(t, "speaking")
}

func TestUtteranceEndWithoutTranscriptIsSilent(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:start"}`)
	f.next(t) // ready
	f.expectStatus(t, "listening")

	f.adapter.events <- transcribe.Event{Type: transcribe.EventUtteranceEnd}
	select {
	case msg := <-f.outbound:
		t.Fatalf("unexpected message %T %+v", msg, msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestGeneralResponseWhenNoIntent(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:start"}`)
	f.next(t) // ready
	f.expectStatus(t, "listening")

	f.inbound <- []byte(`{"type":"voice:text","text":"hello there"}`)
	f.expectStatus(t, "processing")
	resp := f.next(t).(protocol.Response)
	if !strings.Contains(resp.Text, "Hello! I'm VoiceDesk") {
		t.Fatalf("response = %q", resp.Text)
	}
	if resp.Function != "" {
		t.Fatalf("general response should carry no function, got %q", resp.Function)
	}
	f.expectStatus(t, "speaking")
}

func TestStopReturnsIdle(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:start"}`)
	f.next(t) // ready
	f.expectStatus(t, "listening")

	f.inbound <- []byte(`{"type":"voice:stop"}`)
	f.expectStatus(t, "idle")

	s, err := f.sessions.Get("conn-test")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.Status != session.StatusIdle {
		t.Fatalf("status = %q", s.Status)
	}
}

func TestInvalidMessageEmitsError(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:teleport"}`)
	msg := f.next(t)
	ev, ok := msg.(protocol.ErrorEvent)
	if !ok {
		t.Fatalf("got %T, want ErrorEvent", msg)
	}
	if ev.Message != "Invalid message" {
		t.Fatalf("error event = %+v", ev)
	}
}

func TestAudioWithoutSessionIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:audio","chunk":"AAAA"}`)
	select {
	case msg := <-f.outbound:
		t.Fatalf("unexpected message %T %+v", msg, msg)
	case <-time.After(100 * time.Millisecond):
	}
}

// endingDispatcher tears the session down while the dispatch is in flight,
// the way a disconnect races a slow provider call.
type endingDispatcher struct {
	sessions *session.Manager
}

func (d *endingDispatcher) Execute(_ context.Context, _ intent.ActionType, _ map[string]string) registry.Result {
	_, _ = d.sessions.End("conn-test")
	return registry.Result{Success: true, Data: integrations.Card{ID: "card_9", Title: "stale"}}
}

func TestSessionEndDuringDispatchDropsResult(t *testing.T) {
	disp := &endingDispatcher{}
	f := newFixtureWith(t, disp)
	disp.sessions = f.sessions

	f.inbound <- []byte(`{"type":"voice:start"}`)
	f.next(t) // ready
	f.expectStatus(t, "listening")

	f.inbound <- []byte(`{"type":"voice:text","text":"add a task to buy groceries"}`)
	f.expectStatus(t, "processing")

	msg := f.next(t)
	if _, ok := msg.(protocol.FunctionCall); !ok {
		t.Fatalf("got %T, want FunctionCall", msg)
	}

	// The session ended mid-dispatch, so no result, response or speaking
	// status may follow.
	select {
	case msg := <-f.outbound:
		t.Fatalf("late result should be dropped, got %T %+v", msg, msg)
	case <-time.After(150 * time.Millisecond):
	}

	close(f.inbound)
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("RunConnection did not return after inbound closed")
	}
	conversations, _, err := f.store.List(context.Background(), 1, 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, conv := range conversations {
		for _, a := range conv.Actions {
			if a.Success {
				t.Fatalf("stale dispatch must not be recorded as resolved: %+v", a)
			}
		}
	}
}

func TestDisconnectSavesConversation(t *testing.T) {
	f := newFixture(t)
	f.inbound <- []byte(`{"type":"voice:start"}`)
	f.next(t) // ready
	f.expectStatus(t, "listening")

	f.inbound <- []byte(`{"type":"voice:text","text":"remind me to call the dentist"}`)
	f.expectStatus(t, "processing")
	f.next(t) // function call
	f.next(t) // function result
	f.next(t) // response
	f.expectStatus(t, "speaking")

	close(f.inbound)
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("RunConnection did not return after inbound closed")
	}

	conversations, pg, err := f.store.List(context.Background(), 1, 10, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if pg.Total != 1 {
		t.Fatalf("saved %d conversations, want 1", pg.Total)
	}
	conv := conversations[0]
	if len(conv.Turns) != 2 {
		t.Fatalf("turns = %d", len(conv.Turns))
	}
	if len(conv.Actions) != 1 || conv.Actions[0].Type != "create_trello_card" || !conv.Actions[0].Success {
		t.Fatalf("actions = %+v", conv.Actions)
	}
	if _, err := f.sessions.Get("conn-test"); err == nil {
		t.Fatalf("session should be removed after disconnect")
	}
}
