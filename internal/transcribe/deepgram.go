package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicedeskhq/voicedesk/internal/logging"
	"github.com/voicedeskhq/voicedesk/internal/reliability"
)

type DeepgramConfig struct {
	APIKey      string
	WSBaseURL   string
	Model       string
	Language    string
	SampleRate  int
	UtteranceMS int
}

// DeepgramAdapter streams audio to the Deepgram realtime listen API.
type DeepgramAdapter struct {
	cfg DeepgramConfig
}

func NewDeepgramAdapter(cfg DeepgramConfig) *DeepgramAdapter {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://api.deepgram.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "nova-2"
	}
	if strings.TrimSpace(cfg.Language) == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.UtteranceMS <= 0 {
		cfg.UtteranceMS = 1500
	}
	return &DeepgramAdapter{cfg: cfg}
}

func (a *DeepgramAdapter) Mode() string { return "live" }

func (a *DeepgramAdapter) Start(ctx context.Context, connectionID string) (Stream, <-chan Event, error) {
	u, err := url.Parse(strings.TrimRight(a.cfg.WSBaseURL, "/") + "/v1/listen")
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	q.Set("model", a.cfg.Model)
	q.Set("language", a.cfg.Language)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", strconv.Itoa(a.cfg.UtteranceMS))
	q.Set("vad_events", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(a.cfg.SampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Token "+a.cfg.APIKey)

	var conn *websocket.Conn
	for attempt := 0; ; attempt++ {
		var resp *http.Response
		conn, resp, err = websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
		if err == nil {
			break
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		if attempt >= 2 || !reliability.RetryableStatus(status) {
			return nil, nil, fmt.Errorf("dial deepgram websocket: %w", err)
		}
		wait := reliability.Backoff(attempt, 250*time.Millisecond, 2*time.Second)
		logging.Warn(logging.Fields{
			"connection_id": connectionID,
			"status":        status,
			"retry_in":      wait.String(),
		}, "deepgram dial failed, retrying")
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	logging.Info(logging.Fields{"connection_id": connectionID}, "deepgram connection opened")

	events := make(chan Event, 256)
	s := &deepgramStream{conn: conn, events: events, connectionID: connectionID}
	go s.readLoop()
	return s, events, nil
}

type deepgramStream struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	closeOnce    sync.Once
	events       chan Event
	connectionID string
}

func (s *deepgramStream) SendAudio(_ context.Context, chunkBase64 string) error {
	audio, err := base64.StdEncoding.DecodeString(chunkBase64)
	if err != nil {
		return fmt.Errorf("decode audio chunk: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (s *deepgramStream) readLoop() {
	defer s.safeClose()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			logging.Info(logging.Fields{"connection_id": s.connectionID}, "deepgram connection closed")
			return
		}
		var raw struct {
			Type    string `json:"type"`
			IsFinal bool   `json:"is_final"`
			Channel struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channel"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		switch raw.Type {
		case "Results":
			if len(raw.Channel.Alternatives) == 0 {
				continue
			}
			text := raw.Channel.Alternatives[0].Transcript
			if text == "" {
				continue
			}
			typ := EventPartial
			if raw.IsFinal {
				typ = EventFinal
			}
			s.events <- Event{Type: typ, Text: text, Timestamp: time.Now().UnixMilli()}
		case "UtteranceEnd":
			s.events <- Event{Type: EventUtteranceEnd, Timestamp: time.Now().UnixMilli()}
		case "SpeechStarted", "Metadata", "":
			// control events, nothing to surface
		default:
			s.events <- Event{Type: EventError, Detail: raw.Description, Timestamp: time.Now().UnixMilli()}
		}
	}
}

func (s *deepgramStream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		s.writeMu.Unlock()
		retErr = s.conn.Close()
		close(s.events)
	})
	return retErr
}

func (s *deepgramStream) safeClose() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
		close(s.events)
	})
}
