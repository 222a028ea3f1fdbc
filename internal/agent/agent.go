// Package agent turns dispatch outcomes and free-form utterances into the
// assistant's spoken replies.
package agent

import (
	"fmt"
	"strings"

	"github.com/voicedeskhq/voicedesk/internal/integrations"
	"github.com/voicedeskhq/voicedesk/internal/intent"
	"github.com/voicedeskhq/voicedesk/internal/registry"
)

// Respond builds the reply for a completed function dispatch.
func Respond(it intent.Intent, res registry.Result) string {
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "Please try again."
		}
		return fmt.Sprintf("I'm sorry, I couldn't complete that action. %s", reason)
	}

	switch it.Function {
	case intent.ActionCreateTrelloCard:
		return fmt.Sprintf("Done! I've created a task %q in your Trello board. Is there anything else you'd like me to do?", it.Arguments["title"])

	case intent.ActionCreateCalendarEvent:
		date := it.Arguments["date"]
		if date == "" {
			date = "today"
		}
		when := it.Arguments["start_time"]
		if when == "" {
			when = "the scheduled time"
		}
		return fmt.Sprintf("I've added %q to your calendar for %s at %s. Would you like to add any details?", it.Arguments["title"], date, when)

	case intent.ActionCreateNotionNote:
		return fmt.Sprintf("I've saved that note for you. The title is %q. Anything else?", it.Arguments["title"])

	case intent.ActionSendSlackMessage:
		return "Your message has been sent to the team. Is there anything else you need?"

	case intent.ActionGetTodaysEvents:
		return formatEvents(res.Data)

	case intent.ActionGetPendingTasks:
		return formatTasks(res.Data)

	default:
		return "I've completed that action for you. What else can I help with?"
	}
}

func formatEvents(data any) string {
	events, _ := data.([]integrations.CalendarEvent)
	if len(events) == 0 {
		return "You don't have any events scheduled for today. Would you like to add one?"
	}
	titles := make([]string, 0, len(events))
	for _, e := range events {
		titles = append(titles, e.Title)
	}
	return fmt.Sprintf("You have %d events today. %s. Would you like more details?", len(events), strings.Join(titles, ", "))
}

func formatTasks(data any) string {
	cards, _ := data.([]integrations.Card)
	if len(cards) == 0 {
		return "You don't have any pending tasks. Great job staying on top of things!"
	}
	top := cards
	if len(top) > 3 {
		top = top[:3]
	}
	names := make([]string, 0, len(top))
	for _, c := range top {
		names = append(names, c.Title)
	}
	return fmt.Sprintf("You have %d pending tasks. The top ones are: %s.", len(cards), strings.Join(names, ", "))
}

var greetings = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"}

// General handles utterances that matched no function family.
func General(text string) string {
	lower := strings.ToLower(text)

	for _, g := range greetings {
		if strings.Contains(lower, g) {
			return "Hello! I'm VoiceDesk, your personal assistant. I can help you create tasks, schedule events, take notes, or send messages. What would you like to do?"
		}
	}
	if strings.Contains(lower, "thank") {
		return "You're welcome! Is there anything else I can help you with?"
	}
	if strings.Contains(lower, "help") {
		return "I can help you with: creating tasks in Trello, scheduling events in Google Calendar, taking notes in Notion, and sending messages via Slack. Just tell me what you'd like to do!"
	}
	return "I heard you! You can ask me to create tasks, schedule events, take notes, or send messages. How can I help?"
}
