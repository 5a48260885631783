// Package memory stores conversation turns and retrieves the ones relevant
// to a new message, blending vector similarity with recency.
package memory

import "context"

// Embedder converts text to a vector for similarity search.
// The Gemini LLM client implements this; tests use a deterministic fake.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
