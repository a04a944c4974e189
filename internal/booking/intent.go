package booking

import "strings"

// Intent is the classification of one inbound utterance.
type Intent int

const (
	IntentGeneral Intent = iota
	IntentGreeting
	IntentBooking
	IntentQuestion
	IntentConfirmYes
	IntentConfirmNo
	// IntentUndecided is an answer to the confirmation prompt that is
	// neither yes nor no.
	IntentUndecided
)

func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentBooking:
		return "booking"
	case IntentQuestion:
		return "question"
	case IntentConfirmYes:
		return "confirm_yes"
	case IntentConfirmNo:
		return "confirm_no"
	case IntentUndecided:
		return "undecided"
	}
	return "general"
}

// Keyword lists are matched as substrings of the lower-cased utterance.
var (
	affirmativeKeywords = []string{"yes", "confirm", "correct", "right", "yep", "yeah"}
	negativeKeywords    = []string{"no", "cancel", "wrong", "nope"}
	greetingKeywords    = []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "greetings"}
	bookingKeywords     = []string{"book", "appointment", "schedule", "reservation", "need", "want to see", "visit", "consultation"}
	questionKeywords    = []string{"what", "how", "when", "where", "who", "why", "tell me", "explain"}
	documentKeywords    = []string{"pdf", "file", "upload", "document"}
	manualKeywords      = []string{"manual", "type", "enter"}
)

// greetingTurns is how many prior history entries still count as the start
// of a conversation.
const greetingTurns = 2

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// DetectIntent classifies an utterance given the session and the number of
// messages already in the conversation history. Rules apply in priority order.
func DetectIntent(s *Session, utterance string, historyLen int) Intent {
	lower := strings.ToLower(utterance)

	if s.AwaitingConfirmation() {
		switch {
		case containsAny(lower, affirmativeKeywords):
			return IntentConfirmYes
		case containsAny(lower, negativeKeywords):
			return IntentConfirmNo
		default:
			return IntentUndecided
		}
	}

	if historyLen <= greetingTurns && containsAny(lower, greetingKeywords) {
		return IntentGreeting
	}
	if containsAny(lower, bookingKeywords) {
		return IntentBooking
	}
	if s.InProgress() && !s.Complete() {
		return IntentBooking
	}
	if containsAny(lower, questionKeywords) {
		return IntentQuestion
	}
	return IntentGeneral
}
