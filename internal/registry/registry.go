// Package registry dispatches recognized intents to the capability
// providers. Each action type maps to exactly one handler; unknown types
// and provider failures come back as a failed Result rather than an error,
// so the voice loop always has something to report to the client.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/intent"
	"github.com/voicedeskhq/voicedesk/internal/logging"
	"github.com/voicedeskhq/voicedesk/internal/observability"
)

// Result is the outcome of a dispatched function call.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Registry routes action types to provider calls.
type Registry struct {
	providers *integrations.Set
	metrics   *observability.Metrics
	timeout   time.Duration
}

func New(providers *integrations.Set, metrics *observability.Metrics, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Registry{providers: providers, metrics: metrics, timeout: timeout}
}

// Execute runs the handler for the given action type. The returned Result
// is always usable; a failed dispatch sets Success=false and Error.
func (r *Registry) Execute(ctx context.Context, action intent.ActionType, args map[string]string) Result {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	var res Result
	switch action {
	case intent.ActionCreateTrelloCard:
		res = r.createTrelloCard(ctx, args)
	case intent.ActionCreateCalendarEvent:
		res = r.createCalendarEvent(ctx, args)
	case intent.ActionCreateNotionNote:
		res = r.createNotionNote(ctx, args)
	case intent.ActionSendSlackMessage:
		res = r.sendSlackMessage(ctx, args)
	case intent.ActionGetTodaysEvents:
		res = r.getTodaysEvents(ctx)
	case intent.ActionGetPendingTasks:
		res = r.getPendingTasks(ctx)
	default:
		res = Result{Success: false, Error: fmt.Sprintf("unknown function: %s", action)}
	}

	if r.metrics != nil {
		r.metrics.FunctionDispatch.WithLabelValues(string(action), outcomeLabel(res)).Inc()
		r.metrics.ObserveDispatchLatency(time.Since(started))
	}
	if !res.Success {
		logging.Warn(logging.Fields{"function": string(action), "error": res.Error}, "function dispatch failed")
	}
	return res
}

func outcomeLabel(res Result) string {
	if res.Success {
		return "success"
	}
	return "failure"
}

func (r *Registry) createTrelloCard(ctx context.Context, args map[string]string) Result {
	name := args["title"]
	if name == "" {
		name = "Untitled task"
	}
	desc := "Created via voice command"
	if p := args["priority"]; p != "" {
		desc = fmt.Sprintf("Created via voice command (priority: %s)", p)
	}
	card, err := r.providers.Trello.CreateCard(ctx, integrations.CardRequest{Name: name, Description: desc})
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: card}
}

func (r *Registry) createCalendarEvent(ctx context.Context, args map[string]string) Result {
	title := args["title"]
	if title == "" {
		title = "Event"
	}
	start := resolveEventStart(args["date"], args["start_time"], time.Now())
	ev, err := r.providers.Calendar.CreateEvent(ctx, integrations.EventRequest{
		Summary:     title,
		Description: "Created via voice command",
		Start:       start,
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: ev}
}

func (r *Registry) createNotionNote(ctx context.Context, args map[string]string) Result {
	title := args["title"]
	if title == "" {
		title = "Voice note"
	}
	page, err := r.providers.Notion.CreatePage(ctx, integrations.PageRequest{
		Title:   title,
		Content: args["content"],
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: page}
}

func (r *Registry) sendSlackMessage(ctx context.Context, args map[string]string) Result {
	msg, err := r.providers.Slack.SendMessage(ctx, args["channel"], args["message"])
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: msg}
}

func (r *Registry) getTodaysEvents(ctx context.Context) Result {
	events, err := r.providers.Calendar.TodaysEvents(ctx)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: events}
}

func (r *Registry) getPendingTasks(ctx context.Context) Result {
	cards, err := r.providers.Trello.Cards(ctx, 10)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Data: cards}
}

// resolveEventStart turns the extracted date and time phrases into a
// concrete start. Unparseable phrases fall back to one hour from now.
func resolveEventStart(datePhrase, timePhrase string, now time.Time) time.Time {
	day := now
	switch strings.ToLower(strings.TrimSpace(datePhrase)) {
	case "", "today":
	case "tomorrow":
		day = now.AddDate(0, 0, 1)
	default:
		if wd, ok := parseWeekday(datePhrase); ok {
			day = nextWeekday(now, wd)
		}
	}

	hour, minute, ok := parseClock(timePhrase)
	if !ok {
		next := now.Add(time.Hour)
		if !sameDay(day, now) {
			return time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, now.Location())
		}
		return next
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekday(s string) (time.Weekday, bool) {
	wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	return wd, ok
}

// nextWeekday returns the next occurrence of wd strictly after today when
// today is already that weekday.
func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return now.AddDate(0, 0, days)
}

// parseClock understands "3pm", "3 pm", "12:30 pm", "15:00".
func parseClock(s string) (hour, minute int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, 0, false
	}

	meridiem := ""
	for _, suffix := range []string{"am", "pm"} {
		if strings.HasSuffix(s, suffix) {
			meridiem = suffix
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
			break
		}
	}

	hh, mm, found := strings.Cut(s, ":")
	h, err := strconv.Atoi(strings.TrimSpace(hh))
	if err != nil {
		return 0, 0, false
	}
	m := 0
	if found {
		if m, err = strconv.Atoi(strings.TrimSpace(mm)); err != nil {
			return 0, 0, false
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	if meridiem == "pm" && h < 12 {
		h += 12
	}
	if meridiem == "am" && h == 12 {
		h = 0
	}
	return h, m, true
}
