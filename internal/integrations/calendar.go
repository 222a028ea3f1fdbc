package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/logging"
)

const (
	calendarBaseURL = "https://www.googleapis.com/calendar/v3"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
)

// CalendarEvent is a normalized calendar entry.
type CalendarEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	HTMLLink    string `json:"htmlLink,omitempty"`
}

// EventRequest is the input for event creation.
type EventRequest struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

type CalendarConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string
}

func (c CalendarConfig) configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

type calendarBackend interface {
	createEvent(ctx context.Context, calendarID string, req EventRequest) (CalendarEvent, error)
	events(ctx context.Context, calendarID string, day time.Time) ([]CalendarEvent, error)
}

// Calendar is the scheduling capability provider.
type Calendar struct {
	mu  sync.RWMutex
	cfg CalendarConfig
	be  calendarBackend
}

func NewCalendar(cfg CalendarConfig) *Calendar {
	if cfg.CalendarID == "" {
		cfg.CalendarID = "primary"
	}
	c := &Calendar{cfg: cfg}
	c.be = pickCalendarBackend(cfg)
	if !cfg.configured() {
		logging.Warn(logging.Fields{"provider": c.Name()}, "google calendar not configured, using mock data")
	}
	return c
}

func pickCalendarBackend(cfg CalendarConfig) calendarBackend {
	if cfg.configured() {
		return &calendarLive{cfg: cfg, http: newHTTPClient()}
	}
	return &calendarMock{}
}

func (c *Calendar) Name() string { return "calendar" }

func (c *Calendar) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.configured()
}

func (c *Calendar) Status(ctx context.Context) Status {
	if !c.IsConfigured() {
		return Status{Configured: false, Connected: false, Message: "Google Calendar credentials not configured"}
	}
	if _, err := c.TodaysEvents(ctx); err != nil {
		return Status{Configured: true, Connected: false, Message: err.Error()}
	}
	return Status{Configured: true, Connected: true, LastSync: nowUTC()}
}

func (c *Calendar) Connect(ctx context.Context, credentials map[string]string) error {
	c.mu.Lock()
	if v := credentials["clientId"]; v != "" {
		c.cfg.ClientID = v
	}
	if v := credentials["clientSecret"]; v != "" {
		c.cfg.ClientSecret = v
	}
	if v := credentials["refreshToken"]; v != "" {
		c.cfg.RefreshToken = v
	}
	c.be = pickCalendarBackend(c.cfg)
	c.mu.Unlock()

	if _, err := c.TodaysEvents(ctx); err != nil {
		return err
	}
	logging.Info(logging.Fields{"provider": c.Name()}, "google calendar connected")
	return nil
}

func (c *Calendar) Disconnect(_ context.Context) error {
	c.mu.Lock()
	c.cfg.RefreshToken = ""
	c.be = pickCalendarBackend(c.cfg)
	c.mu.Unlock()
	logging.Info(logging.Fields{"provider": c.Name()}, "google calendar disconnected")
	return nil
}

func (c *Calendar) Test(ctx context.Context) TestResult {
	if !c.IsConfigured() {
		return TestResult{Success: false, Message: "Google Calendar not configured"}
	}
	events, err := c.TodaysEvents(ctx)
	if err != nil {
		return TestResult{Success: false, Message: err.Error()}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("Connected! Found %d events today.", len(events))}
}

// CreateEvent adds an event; a missing end defaults to one hour after start.
func (c *Calendar) CreateEvent(ctx context.Context, req EventRequest) (CalendarEvent, error) {
	if req.Summary == "" {
		return CalendarEvent{}, fmt.Errorf("event summary is required")
	}
	if req.End.IsZero() {
		req.End = req.Start.Add(time.Hour)
	}
	c.mu.RLock()
	be, calID := c.be, c.cfg.CalendarID
	c.mu.RUnlock()
	return be.createEvent(ctx, calID, req)
}

// Events returns the events for the given day.
func (c *Calendar) Events(ctx context.Context, day time.Time) ([]CalendarEvent, error) {
	c.mu.RLock()
	be, calID := c.be, c.cfg.CalendarID
	c.mu.RUnlock()
	return be.events(ctx, calID, day)
}

func (c *Calendar) TodaysEvents(ctx context.Context) ([]CalendarEvent, error) {
	return c.Events(ctx, time.Now())
}

// --- live backend ---

type calendarLive struct {
	cfg  CalendarConfig
	http *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func (l *calendarLive) token(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.accessToken != "" && time.Now().Before(l.tokenExpiry) {
		return l.accessToken, nil
	}

	form := url.Values{}
	form.Set("client_id", l.cfg.ClientID)
	form.Set("client_secret", l.cfg.ClientSecret)
	form.Set("refresh_token", l.cfg.RefreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := l.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh google token: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("failed to authenticate with Google")
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode google token: %w", err)
	}
	l.accessToken = tok.AccessToken
	l.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return l.accessToken, nil
}

func (l *calendarLive) request(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	token, err := l.token(ctx)
	if err != nil {
		return err
	}

	u := calendarBaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	res, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("calendar request: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("calendar response: %w", err)
	}
	if res.StatusCode >= 400 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("%s", apiErr.Error.Message)
		}
		return fmt.Errorf("calendar API error: %s", res.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type gcalTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

func (t gcalTime) value() string {
	if t.DateTime != "" {
		return t.DateTime
	}
	return t.Date
}

func (l *calendarLive) createEvent(ctx context.Context, calendarID string, req EventRequest) (CalendarEvent, error) {
	payload := map[string]any{
		"summary":     req.Summary,
		"description": req.Description,
		"location":    req.Location,
		"start":       gcalTime{DateTime: req.Start.Format(time.RFC3339)},
		"end":         gcalTime{DateTime: req.End.Format(time.RFC3339)},
	}

	var raw struct {
		ID       string   `json:"id"`
		Summary  string   `json:"summary"`
		Start    gcalTime `json:"start"`
		End      gcalTime `json:"end"`
		HTMLLink string   `json:"htmlLink"`
	}
	endpoint := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := l.request(ctx, http.MethodPost, endpoint, nil, payload, &raw); err != nil {
		return CalendarEvent{}, err
	}
	logging.Info(logging.Fields{"event_id": raw.ID, "summary": raw.Summary}, "calendar event created")
	return CalendarEvent{
		ID:       raw.ID,
		Title:    raw.Summary,
		Start:    raw.Start.value(),
		End:      raw.End.value(),
		HTMLLink: raw.HTMLLink,
	}, nil
}

func (l *calendarLive) events(ctx context.Context, calendarID string, day time.Time) ([]CalendarEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24*time.Hour - time.Nanosecond)

	q := url.Values{}
	q.Set("timeMin", start.Format(time.RFC3339))
	q.Set("timeMax", end.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")

	var raw struct {
		Items []struct {
			ID          string   `json:"id"`
			Summary     string   `json:"summary"`
			Start       gcalTime `json:"start"`
			End         gcalTime `json:"end"`
			Location    string   `json:"location"`
			Description string   `json:"description"`
		} `json:"items"`
	}
	endpoint := "/calendars/" + url.PathEscape(calendarID) + "/events"
	if err := l.request(ctx, http.MethodGet, endpoint, q, nil, &raw); err != nil {
		return nil, err
	}

	events := make([]CalendarEvent, 0, len(raw.Items))
	for _, it := range raw.Items {
		events = append(events, CalendarEvent{
			ID:          it.ID,
			Title:       it.Summary,
			Start:       it.Start.value(),
			End:         it.End.value(),
			Location:    it.Location,
			Description: it.Description,
		})
	}
	return events, nil
}

// --- mock backend ---

type calendarMock struct {
	seq atomic.Int64
}

func (m *calendarMock) createEvent(_ context.Context, _ string, req EventRequest) (CalendarEvent, error) {
	id := fmt.Sprintf("event_%d", m.seq.Add(1))
	return CalendarEvent{
		ID:       id,
		Title:    req.Summary,
		Start:    req.Start.Format(time.RFC3339),
		End:      req.End.Format(time.RFC3339),
		HTMLLink: "https://calendar.google.com/calendar/event?eid=example",
	}, nil
}

func (m *calendarMock) events(_ context.Context, _ string, day time.Time) ([]CalendarEvent, error) {
	at := func(h, min int) string {
		return time.Date(day.Year(), day.Month(), day.Day(), h, min, 0, 0, day.Location()).Format(time.RFC3339)
	}
	return []CalendarEvent{
		{ID: "event1", Title: "Team Standup", Start: at(10, 0), End: at(10, 30)},
		{ID: "event2", Title: "Lunch with John", Start: at(13, 0), End: at(14, 0)},
		{ID: "event3", Title: "Project Review", Start: at(16, 0), End: at(17, 0)},
	}, nil
}
