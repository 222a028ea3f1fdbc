// Package intent maps a finalized utterance to a structured action.
//
// Recognition is deterministic pattern matching: an ordered list of command
// families, each with case-insensitive substring triggers and an argument
// extractor. The first matching family wins, so the slice order is the
// documented tie-break between overlapping trigger sets.
package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// ActionType enumerates the supported dispatchable operations.
type ActionType string

const (
	ActionCreateTrelloCard    ActionType = "create_trello_card"
	ActionCreateCalendarEvent ActionType = "create_calendar_event"
	ActionCreateNotionNote    ActionType = "create_notion_note"
	ActionSendSlackMessage    ActionType = "send_slack_message"
	ActionGetTodaysEvents     ActionType = "get_todays_events"
	ActionGetPendingTasks     ActionType = "get_pending_tasks"
)

// Intent is the transient result of analyzing one utterance. Function is
// empty when no command family matched.
type Intent struct {
	Function  ActionType        `json:"function"`
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

type family struct {
	action   ActionType
	name     string
	triggers []string
	extract  func(text string) map[string]string
}

var (
	taskPattern    = regexp.MustCompile(`(?i)(?:add a task|create a task|add task|remind me to|todo|new task)\s*(?:to\s*)?(.+)`)
	notePattern    = regexp.MustCompile(`(?i)(?:write down|jot down|note|remember|save)\s*(?:that\s*)?(.+)`)
	messagePattern = regexp.MustCompile(`(?i)(?:send a message|send|message|tell|slack|notify)\s*(?:to\s*)?(?:my team|the team|them|everyone)?\s*(?:that\s*)?(.+)`)
	timePattern    = regexp.MustCompile(`(?i)(?:at|for)\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)?)`)
	dayPattern     = regexp.MustCompile(`(?i)\b(today|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	eventNoise     = regexp.MustCompile(`(?i)\b(schedule|meeting|appointment|calendar|event)\b`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// Recognizer evaluates command families in a fixed priority order.
type Recognizer struct {
	families []family
}

func NewRecognizer() *Recognizer {
	return &Recognizer{families: []family{
		{
			action:   ActionCreateTrelloCard,
			name:     "Create Task",
			triggers: []string{"add a task", "create a task", "add task", "remind me", "todo", "new task"},
			extract:  extractTaskArgs,
		},
		{
			action:   ActionCreateCalendarEvent,
			name:     "Schedule Event",
			triggers: []string{"schedule", "meeting", "appointment"},
			extract:  extractEventArgs,
		},
		{
			action:   ActionCreateNotionNote,
			name:     "Create Note",
			triggers: []string{"note", "write down", "remember", "save", "jot down"},
			extract:  extractNoteArgs,
		},
		{
			action:   ActionSendSlackMessage,
			name:     "Send Message",
			triggers: []string{"send a message", "tell my team", "message", "slack", "notify"},
			extract:  extractMessageArgs,
		},
		{
			action:   ActionGetTodaysEvents,
			name:     "Get Events",
			triggers: []string{"what's on", "my schedule", "events today", "calendar today", "my calendar"},
			extract:  func(string) map[string]string { return map[string]string{} },
		},
		{
			action:   ActionGetPendingTasks,
			name:     "Get Tasks",
			triggers: []string{"pending tasks", "my tasks", "todo list", "task list"},
			extract:  func(string) map[string]string { return map[string]string{} },
		},
	}}
}

// FamilyOrder exposes the evaluation priority so tests can assert tie-breaks.
func (r *Recognizer) FamilyOrder() []ActionType {
	order := make([]ActionType, 0, len(r.families))
	for _, f := range r.families {
		order = append(order, f.action)
	}
	return order
}

// Analyze matches an utterance against the command families. The zero Intent
// (empty Function) means no family matched and the caller should fall back to
// small talk.
func (r *Recognizer) Analyze(text string) Intent {
	lower := strings.ToLower(text)
	for _, f := range r.families {
		if !matchesAny(lower, f.triggers) {
			continue
		}
		return Intent{
			Function:  f.action,
			Name:      f.name,
			Arguments: f.extract(text),
		}
	}
	return Intent{}
}

func matchesAny(lower string, triggers []string) bool {
	for _, trigger := range triggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

func extractTaskArgs(text string) map[string]string {
	title := text
	if m := taskPattern.FindStringSubmatch(text); m != nil {
		title = strings.TrimSpace(m[1])
	}
	lower := strings.ToLower(text)
	priority := "medium"
	if strings.Contains(lower, "urgent") || strings.Contains(lower, "high priority") {
		priority = "high"
	}
	return map[string]string{
		"title":       title,
		"description": "",
		"priority":    priority,
	}
}

func extractEventArgs(text string) map[string]string {
	startTime := "9:00 AM"
	if m := timePattern.FindStringSubmatch(text); m != nil {
		startTime = strings.TrimSpace(m[1])
	}
	date := "today"
	if m := dayPattern.FindStringSubmatch(text); m != nil {
		date = strings.ToLower(m[1])
	}

	title := eventNoise.ReplaceAllString(text, "")
	title = timePattern.ReplaceAllString(title, "")
	title = dayPattern.ReplaceAllString(title, "")
	title = strings.TrimSpace(spaceRun.ReplaceAllString(title, " "))
	title = strings.Trim(title, " ,.")

	if len(title) < 3 {
		lower := strings.ToLower(text)
		switch {
		case strings.Contains(lower, "meeting"):
			title = "Meeting"
		case strings.Contains(lower, "appointment"):
			title = "Appointment"
		default:
			title = "Event"
		}
	} else {
		title = capitalize(title)
	}

	return map[string]string{
		"title":       title,
		"start_time":  startTime,
		"date":        date,
		"description": "",
	}
}

func extractNoteArgs(text string) map[string]string {
	content := text
	if m := notePattern.FindStringSubmatch(text); m != nil {
		content = strings.TrimSpace(m[1])
	}
	title := content
	if r := []rune(title); len(r) > 50 {
		title = string(r[:50])
	}
	return map[string]string{
		"title":   title,
		"content": content,
	}
}

func extractMessageArgs(text string) map[string]string {
	message := text
	if m := messagePattern.FindStringSubmatch(text); m != nil {
		message = strings.TrimSpace(m[1])
	}
	return map[string]string{
		"message": message,
		"channel": "general",
	}
}

func capitalize(s string) string {
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
