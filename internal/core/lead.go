package core

import "strings"

// exitWords end the session from any lead state. Matched as whole words so
// "non-stop shopping" does not end a conversation.
var exitWords = map[string]struct{}{
	"exit": {}, "bye": {}, "goodbye": {}, "quit": {},
	"end": {}, "stop": {}, "finish": {}, "leave": {},
}

var confirmWords = map[string]struct{}{
	"confirm": {}, "confirmed": {}, "yes": {}, "correct": {},
}

// Hyphens stay inside tokens so "non-stop" is not the word "stop".
func tokenize(message string) []string {
	return strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '\'' || r == '-')
	})
}

// IsExitMessage reports whether the user asked to end the conversation.
func IsExitMessage(message string) bool {
	for _, word := range tokenize(message) {
		if _, ok := exitWords[word]; ok {
			return true
		}
	}
	return false
}

// isConfirmMessage reports whether the user accepted the collected details.
// Only consulted while the lead is in the confirming state.
func isConfirmMessage(message string) bool {
	for _, word := range tokenize(message) {
		if _, ok := confirmWords[word]; ok {
			return true
		}
	}
	return false
}
