package history

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
)

// redactPII masks emails, card numbers and phone numbers in a transcript
// turn. Conversation history is readable by anyone with API access, so
// raw contact details never reach the store.
func redactPII(input string) string {
	out := emailPattern.ReplaceAllString(input, "[REDACTED_EMAIL]")
	// Cards first so long digit runs are not matched as phone numbers.
	out = cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	out = phonePattern.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

func redactConversation(conv Conversation) Conversation {
	turns := make([]TurnRecord, len(conv.Turns))
	for i, t := range conv.Turns {
		t.Content = redactPII(t.Content)
		turns[i] = t
	}
	conv.Turns = turns
	return conv
}
