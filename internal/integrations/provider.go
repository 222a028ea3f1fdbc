// Package integrations adapts the four productivity services behind a
// uniform provider surface. Every service has a live backend that talks to
// the real API and a mock backend that returns deterministic data, so the
// whole pipeline is exercisable without credentials. The backend is chosen
// once at construction and swapped only by Connect/Disconnect.
package integrations

import (
	"context"
	"net/http"
	"time"
)

// Status describes a provider's connectivity for the integrations facade.
type Status struct {
	Connected  bool      `json:"connected"`
	Configured bool      `json:"configured"`
	Message    string    `json:"message,omitempty"`
	LastSync   time.Time `json:"lastSync,omitzero"`
}

// TestResult is the outcome of a connectivity probe.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Provider is the uniform surface each integration exposes to the facade.
type Provider interface {
	Name() string
	IsConfigured() bool
	Status(ctx context.Context) Status
	Connect(ctx context.Context, credentials map[string]string) error
	Disconnect(ctx context.Context) error
	Test(ctx context.Context) TestResult
}

// Set groups the four capability providers handed to the registry and facade.
type Set struct {
	Trello   *Trello
	Calendar *Calendar
	Notion   *Notion
	Slack    *Slack
}

// NewSet builds all four providers from their configs.
func NewSet(trello TrelloConfig, calendar CalendarConfig, notion NotionConfig, slack SlackConfig) *Set {
	return &Set{
		Trello:   NewTrello(trello),
		Calendar: NewCalendar(calendar),
		Notion:   NewNotion(notion),
		Slack:    NewSlack(slack),
	}
}

// All returns the providers in facade display order.
func (s *Set) All() []Provider {
	return []Provider{s.Trello, s.Calendar, s.Notion, s.Slack}
}

// ByName resolves a provider from its facade route name.
func (s *Set) ByName(name string) (Provider, bool) {
	for _, p := range s.All() {
		if p.Name() == name {
			return p, true
		}
	}
	return nil, false
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
