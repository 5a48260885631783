package memory

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/veloria/leadchat/internal/store"
)

// Service composes the persistent store and the embedding index.
//
// Store appends a turn and indexes its embedding; the turn survives even when
// embedding fails. Retrieve blends similarity hits with the most recent turns
// and degrades to recency-only when the embedding side is unavailable.
type Service struct {
	store    *store.SQLiteStore
	index    *Index
	embedder Embedder
	cache    *ristretto.Cache
	recentN  int
}

func NewService(st *store.SQLiteStore, ix *Index, emb Embedder, recentN int) (*Service, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     16 << 20, // embeddings are small, this is plenty
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Service{
		store:    st,
		index:    ix,
		embedder: emb,
		cache:    cache,
		recentN:  recentN,
	}, nil
}

// Store appends a turn and inserts its embedding record. A storage failure is
// returned to the caller; an embedding failure only costs that turn its index
// entry, retrieval falls back to recency for it.
func (s *Service) Store(ctx context.Context, userID, message, response, sessionID string) error {
	return s.StoreWithContext(ctx, userID, message, response, "", sessionID)
}

// StoreWithContext is Store with a free-text context note on the turn
// (e.g. "follow_up" for scheduler-generated exchanges).
func (s *Service) StoreWithContext(ctx context.Context, userID, message, response, contextNote, sessionID string) error {
	turn := &store.Turn{
		UserID:        userID,
		UserMessage:   message,
		AgentResponse: response,
		Context:       contextNote,
		SessionID:     sessionID,
	}
	if err := s.store.AppendTurn(turn); err != nil {
		return fmt.Errorf("failed to store turn: %w", err)
	}

	text := formatExchange(message, response)
	embedding, err := s.embed(ctx, text)
	if err != nil {
		log.Printf("Embedding failed for turn %s (user %s), stored without index entry: %v", turn.ID, userID, err)
		return nil
	}
	if err := s.index.Add(ctx, userID, turn.ID, embedding, text); err != nil {
		log.Printf("Index insert failed for turn %s (user %s): %v", turn.ID, userID, err)
	}
	return nil
}

// Retrieve returns up to topK turns for a user, most relevant first:
// similarity-ranked hits, then recent turns as tie-break, deduplicated by
// turn identity.
func (s *Service) Retrieve(ctx context.Context, userID, query string, topK int) ([]store.Turn, error) {
	recent, err := s.store.GetRecentTurns(userID, s.recentN)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent turns: %w", err)
	}

	var ordered []store.Turn
	seen := make(map[string]bool)

	embedding, err := s.embed(ctx, query)
	if err != nil {
		log.Printf("Query embedding failed for user %s, using recency only: %v", userID, err)
	} else {
		hits, err := s.index.Search(ctx, userID, embedding, topK)
		if err != nil {
			log.Printf("Index search failed for user %s, using recency only: %v", userID, err)
		} else if len(hits) > 0 {
			ids := make([]string, 0, len(hits))
			for _, hit := range hits {
				ids = append(ids, hit.TurnID)
			}
			byID, err := s.store.GetTurnsByIDs(userID, ids)
			if err != nil {
				return nil, fmt.Errorf("failed to hydrate retrieved turns: %w", err)
			}
			for _, hit := range hits {
				turn, ok := byID[hit.TurnID]
				if !ok || seen[turn.ID] {
					continue // index entry with no surviving turn
				}
				seen[turn.ID] = true
				ordered = append(ordered, turn)
			}
		}
	}

	for _, turn := range recent {
		if seen[turn.ID] {
			continue
		}
		seen[turn.ID] = true
		ordered = append(ordered, turn)
	}

	if len(ordered) > topK {
		ordered = ordered[:topK]
	}
	return ordered, nil
}

// History returns a user's turns in chronological order.
func (s *Service) History(userID string, limit int) ([]store.Turn, error) {
	return s.store.GetTurnsByUserID(userID, limit, 0)
}

// ClearUser deletes all turns and embedding records for a user and returns
// how many turns were removed.
func (s *Service) ClearUser(userID string) (int64, error) {
	deleted, err := s.store.DeleteTurnsByUserID(userID)
	if err != nil {
		return 0, err
	}
	if err := s.index.ClearUser(userID); err != nil {
		log.Printf("Failed to clear index for user %s: %v", userID, err)
	}
	return deleted, nil
}

// RetrieveDocuments returns up to limit company document snippets relevant
// to the query. Empty on any embedding-side failure.
func (s *Service) RetrieveDocuments(ctx context.Context, query string, limit int) []string {
	embedding, err := s.embed(ctx, query)
	if err != nil {
		log.Printf("Document query embedding failed: %v", err)
		return nil
	}
	docs, err := s.index.SearchDocuments(ctx, embedding, limit)
	if err != nil {
		log.Printf("Document search failed: %v", err)
		return nil
	}
	return docs
}

// IngestDocumentsFromFile embeds each paragraph of the file into the shared
// documents namespace and returns how many were ingested.
func (s *Service) IngestDocumentsFromFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open document file %s: %w", path, err)
	}
	defer f.Close()

	var paragraphs []string
	var current strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if current.Len() > 0 {
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
			continue
		}
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read document file: %w", err)
	}
	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	count := 0
	for i, p := range paragraphs {
		embedding, err := s.embed(ctx, p)
		if err != nil {
			log.Printf("Failed to embed document paragraph %d (%.50s...): %v. Skipping.", i+1, p, err)
			continue
		}
		if err := s.index.AddDocument(ctx, uuid.NewString(), embedding, p); err != nil {
			log.Printf("Failed to index document paragraph %d: %v. Skipping.", i+1, err)
			continue
		}
		count++
	}
	return count, nil
}

// embed runs the embedder behind a cache keyed by the exact text, so repeated
// queries and follow-up nudges do not re-hit the embedding backend.
func (s *Service) embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := s.cache.Get(text); ok {
		if embedding, ok := cached.([]float32); ok {
			return embedding, nil
		}
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.cache.Set(text, embedding, int64(len(embedding)*4))
	return embedding, nil
}

func formatExchange(message, response string) string {
	return fmt.Sprintf("User: %s\nAgent: %s", message, response)
}
