package memory

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

const documentsCollection = "documents"

// Index wraps chromem-go, an embedded vector database. Each user gets their
// own collection so similarity search can never cross user boundaries; a
// shared "documents" collection holds company/product material.
type Index struct {
	db *chromem.DB
	mu sync.Mutex // guards collection creation
}

// NewIndex opens an on-disk index at dir, or an in-memory one when dir is empty.
func NewIndex(dir string) (*Index, error) {
	if dir == "" {
		return &Index{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding index at %s: %w", dir, err)
	}
	return &Index{db: db}, nil
}

func userCollectionName(userID string) string {
	return "user_" + userID
}

func (ix *Index) collection(name string) (*chromem.Collection, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, err := ix.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}
	return col, nil
}

// Result is one similarity hit against a user's collection.
type Result struct {
	TurnID     string
	Similarity float32
}

// Add inserts an embedding record referencing a stored turn.
func (ix *Index) Add(ctx context.Context, userID, turnID string, embedding []float32, text string) error {
	col, err := ix.collection(userCollectionName(userID))
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        turnID,
		Content:   text,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id": userID,
			"type":    "turn",
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add embedding record: %w", err)
	}
	return nil
}

// Search returns up to limit turn references ordered by similarity,
// highest first.
func (ix *Index) Search(ctx context.Context, userID string, embedding []float32, limit int) ([]Result, error) {
	col, err := ix.collection(userCollectionName(userID))
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	hits, err := col.QueryEmbedding(ctx, embedding, limit, map[string]string{"user_id": userID}, nil)
	if err != nil {
		return nil, fmt.Errorf("query embedding index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{TurnID: hit.ID, Similarity: hit.Similarity})
	}
	return results, nil
}

// Count returns the number of embedding records stored for a user.
func (ix *Index) Count(userID string) int {
	col, err := ix.collection(userCollectionName(userID))
	if err != nil {
		return 0
	}
	return col.Count()
}

// ClearUser drops all embedding records for a user.
func (ix *Index) ClearUser(userID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.db.DeleteCollection(userCollectionName(userID)); err != nil {
		return fmt.Errorf("delete collection for user %s: %w", userID, err)
	}
	return nil
}

// AddDocument inserts company/product material into the shared namespace.
func (ix *Index) AddDocument(ctx context.Context, docID string, embedding []float32, content string) error {
	col, err := ix.collection(documentsCollection)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        docID,
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]string{"type": "document"},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// SearchDocuments returns up to limit document snippets by similarity.
func (ix *Index) SearchDocuments(ctx context.Context, embedding []float32, limit int) ([]string, error) {
	col, err := ix.collection(documentsCollection)
	if err != nil {
		return nil, err
	}

	if n := col.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	hits, err := col.QueryEmbedding(ctx, embedding, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	contents := make([]string, 0, len(hits))
	for _, hit := range hits {
		contents = append(contents, hit.Content)
	}
	return contents, nil
}
