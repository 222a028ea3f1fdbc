// Package transcribe streams speech-to-text events for voice sessions.
// The Deepgram adapter talks to the realtime listen API; the demo adapter
// stands in when no API key is configured and emits one canned command per
// session so the rest of the pipeline can be exercised without credentials.
package transcribe

import "context"

type EventType string

const (
	EventPartial      EventType = "partial"
	EventFinal        EventType = "final"
	EventUtteranceEnd EventType = "utterance_end"
	EventError        EventType = "error"
)

type Event struct {
	Type      EventType
	Text      string
	Detail    string
	Timestamp int64
}

// Stream accepts audio for one session.
type Stream interface {
	SendAudio(ctx context.Context, chunkBase64 string) error
	Close() error
}

// Adapter opens a transcription stream per connection.
type Adapter interface {
	Start(ctx context.Context, connectionID string) (Stream, <-chan Event, error)
	Mode() string
}
