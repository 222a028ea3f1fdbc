package transcribe

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

var demoCommands = []string{
	"add a task to buy groceries",
	"schedule a meeting tomorrow at 2pm",
	"take a note about the project deadline",
	"send a message to the team about the update",
}

// DemoAdapter simulates transcription without any upstream service. After
// the configured dwell of incoming audio it emits exactly one final
// transcript, then an utterance end, then stays silent for the rest of the
// session. The command is picked by hashing the connection id so a given
// connection always hears the same thing.
type DemoAdapter struct {
	dwell time.Duration
}

func NewDemoAdapter(dwell time.Duration) *DemoAdapter {
	if dwell <= 0 {
		dwell = 2 * time.Second
	}
	return &DemoAdapter{dwell: dwell}
}

func (a *DemoAdapter) Mode() string { return "demo" }

func (a *DemoAdapter) Start(_ context.Context, connectionID string) (Stream, <-chan Event, error) {
	events := make(chan Event, 16)
	s := &demoStream{
		events:  events,
		dwell:   a.dwell,
		command: pickDemoCommand(connectionID),
	}
	return s, events, nil
}

func pickDemoCommand(connectionID string) string {
	h := fnv.New32a()
	h.Write([]byte(connectionID))
	return demoCommands[int(h.Sum32())%len(demoCommands)]
}

type demoStream struct {
	mu      sync.Mutex
	events  chan Event
	dwell   time.Duration
	command string
	started time.Time
	fired   bool
	closed  bool
	timer   *time.Timer
}

func (s *demoStream) SendAudio(_ context.Context, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.fired {
		return nil
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}
	if time.Since(s.started) >= s.dwell && s.timer == nil {
		s.timer = time.AfterFunc(500*time.Millisecond, s.emit)
	}
	return nil
}

func (s *demoStream) emit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.fired {
		return
	}
	s.fired = true
	now := time.Now().UnixMilli()
	s.events <- Event{Type: EventFinal, Text: s.command, Timestamp: now}
	s.events <- Event{Type: EventUtteranceEnd, Timestamp: now}
}

func (s *demoStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.events)
	return nil
}
