// Package llm abstracts the chat-completion backend.
package llm

import "context"

// FallbackResponse is returned to the user when the backend fails after a retry.
const FallbackResponse = "I'm sorry, I'm having trouble responding right now. Could you say that again in a moment?"

// Message is one prior exchange half in a conversation history.
type Message struct {
	Role    string // "user" or "model"
	Content string
}

// Client generates chat responses.
type Client interface {
	// Generate produces a reply given a system instruction, prior history,
	// and the final user content (which may embed a retrieved context block).
	Generate(ctx context.Context, system string, history []Message, user string) (string, error)
	Close() error
}
