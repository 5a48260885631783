package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// Stub is a deterministic offline Client for development and tests.
// Replies echo the user content; embeddings are hash-derived unit vectors,
// so identical text always lands in the same place.
type Stub struct {
	dimensions int
}

func NewStub() *Stub {
	return &Stub{dimensions: 384}
}

func (s *Stub) Close() error { return nil }

func (s *Stub) Generate(ctx context.Context, system string, history []Message, user string) (string, error) {
	return fmt.Sprintf("Thanks for your message. You said: %s", user), nil
}

// Embed creates a deterministic embedding from a text hash.
func (s *Stub) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	embedding := make([]float32, s.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	var norm float32
	for _, v := range embedding {
		norm += v * v
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i, v := range embedding {
			embedding[i] = v / norm
		}
	}
	return embedding, nil
}
