package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/voicedeskhq/voicedesk/internal/logging"
)

const slackBaseURL = "https://slack.com/api"

// Channel is a Slack channel the bot can post to.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"isPrivate"`
}

// PostedMessage is the result of sending a Slack message.
type PostedMessage struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
	Text      string `json:"text"`
}

// AuthInfo identifies the bot and workspace behind the configured token.
type AuthInfo struct {
	User string `json:"user"`
	Team string `json:"team"`
}

type SlackConfig struct {
	BotToken       string
	DefaultChannel string
}

func (c SlackConfig) configured() bool { return c.BotToken != "" }

type slackBackend interface {
	authTest(ctx context.Context) (AuthInfo, error)
	postMessage(ctx context.Context, channel, text string) (PostedMessage, error)
	channels(ctx context.Context) ([]Channel, error)
}

// Slack is the messaging capability provider.
type Slack struct {
	mu  sync.RWMutex
	cfg SlackConfig
	be  slackBackend
}

func NewSlack(cfg SlackConfig) *Slack {
	if cfg.DefaultChannel == "" {
		cfg.DefaultChannel = "general"
	}
	s := &Slack{cfg: cfg}
	s.be = pickSlackBackend(cfg)
	if !cfg.configured() {
		logging.Warn(logging.Fields{"provider": s.Name()}, "slack not configured, using mock data")
	}
	return s
}

func pickSlackBackend(cfg SlackConfig) slackBackend {
	if cfg.configured() {
		return &slackLive{cfg: cfg, http: newHTTPClient()}
	}
	return &slackMock{}
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) IsConfigured() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.configured()
}

func (s *Slack) Status(ctx context.Context) Status {
	if !s.IsConfigured() {
		return Status{Configured: false, Connected: false, Message: "Slack bot token not configured"}
	}
	if _, err := s.AuthTest(ctx); err != nil {
		return Status{Configured: true, Connected: false, Message: err.Error()}
	}
	return Status{Configured: true, Connected: true, LastSync: nowUTC()}
}

func (s *Slack) Connect(ctx context.Context, credentials map[string]string) error {
	s.mu.Lock()
	if v := credentials["botToken"]; v != "" {
		s.cfg.BotToken = v
	}
	if v := credentials["defaultChannel"]; v != "" {
		s.cfg.DefaultChannel = v
	}
	s.be = pickSlackBackend(s.cfg)
	s.mu.Unlock()

	info, err := s.AuthTest(ctx)
	if err != nil {
		return err
	}
	logging.Info(logging.Fields{"provider": s.Name(), "team": info.Team}, "slack connected")
	return nil
}

func (s *Slack) Disconnect(_ context.Context) error {
	s.mu.Lock()
	s.cfg.BotToken = ""
	s.be = pickSlackBackend(s.cfg)
	s.mu.Unlock()
	logging.Info(logging.Fields{"provider": s.Name()}, "slack disconnected")
	return nil
}

func (s *Slack) Test(ctx context.Context) TestResult {
	if !s.IsConfigured() {
		return TestResult{Success: false, Message: "Slack not configured"}
	}
	info, err := s.AuthTest(ctx)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("Connected as %s in %s.", info.User, info.Team)}
}

func (s *Slack) AuthTest(ctx context.Context) (AuthInfo, error) {
	s.mu.RLock()
	be := s.be
	s.mu.RUnlock()
	return be.authTest(ctx)
}

// SendMessage posts text to the named channel, falling back to the
// configured default channel when channel is empty.
func (s *Slack) SendMessage(ctx context.Context, channel, text string) (PostedMessage, error) {
	if text == "" {
		return PostedMessage{}, fmt.Errorf("message text is required")
	}
	s.mu.RLock()
	be, def := s.be, s.cfg.DefaultChannel
	s.mu.RUnlock()
	if channel == "" {
		channel = def
	}
	channel = strings.TrimPrefix(channel, "#")
	return be.postMessage(ctx, channel, text)
}

func (s *Slack) Channels(ctx context.Context) ([]Channel, error) {
	s.mu.RLock()
	be := s.be
	s.mu.RUnlock()
	return be.channels(ctx)
}

// --- live backend ---

type slackLive struct {
	cfg  SlackConfig
	http *http.Client
}

func (l *slackLive) call(ctx context.Context, method string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, slackBaseURL+"/"+method, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+l.cfg.BotToken)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	res, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("slack response: %w", err)
	}

	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !envelope.OK {
		return fmt.Errorf("slack API error: %s", envelope.Error)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (l *slackLive) authTest(ctx context.Context) (AuthInfo, error) {
	var raw struct {
		User string `json:"user"`
		Team string `json:"team"`
	}
	if err := l.call(ctx, "auth.test", nil, &raw); err != nil {
		return AuthInfo{}, err
	}
	return AuthInfo{User: raw.User, Team: raw.Team}, nil
}

func (l *slackLive) postMessage(ctx context.Context, channel, text string) (PostedMessage, error) {
	payload := map[string]string{"channel": channel, "text": text}
	var raw struct {
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	}
	if err := l.call(ctx, "chat.postMessage", payload, &raw); err != nil {
		return PostedMessage{}, err
	}
	logging.Info(logging.Fields{"channel": raw.Channel}, "slack message sent")
	return PostedMessage{Channel: raw.Channel, Timestamp: raw.TS, Text: text}, nil
}

func (l *slackLive) channels(ctx context.Context) ([]Channel, error) {
	var raw struct {
		Channels []struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			IsPrivate bool   `json:"is_private"`
		} `json:"channels"`
	}
	if err := l.call(ctx, "conversations.list", map[string]string{"types": "public_channel"}, &raw); err != nil {
		return nil, err
	}
	channels := make([]Channel, 0, len(raw.Channels))
	for _, c := range raw.Channels {
		channels = append(channels, Channel{ID: c.ID, Name: c.Name, IsPrivate: c.IsPrivate})
	}
	return channels, nil
}

// --- mock backend ---

type slackMock struct{}

func (m *slackMock) authTest(_ context.Context) (AuthInfo, error) {
	return AuthInfo{User: "VoiceDesk Bot", Team: "Demo Team"}, nil
}

func (m *slackMock) postMessage(_ context.Context, channel, text string) (PostedMessage, error) {
	return PostedMessage{
		Channel:   channel,
		Timestamp: fmt.Sprintf("%d.000100", nowUTC().Unix()),
		Text:      text,
	}, nil
}

func (m *slackMock) channels(_ context.Context) ([]Channel, error) {
	return []Channel{
		{ID: "C001", Name: "general"},
		{ID: "C002", Name: "random"},
		{ID: "C003", Name: "dev-team"},
	}, nil
}
