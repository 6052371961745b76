package kb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// ChromemStore implements KB over an embedded chromem database persisted
// to disk. Embeddings use the OpenAI embeddings API, so indexing and
// retrieval need OPENAI_API_KEY.
type ChromemStore struct {
	db            *chromem.DB
	collection    string
	embeddingFunc chromem.EmbeddingFunc

	mu  sync.Mutex
	col *chromem.Collection
}

// NewChromemStore opens (or creates) the store at path.
func NewChromemStore(path, collection, openAIKey string) (*ChromemStore, error) {
	if openAIKey == "" {
		return nil, fmt.Errorf("kb: OpenAI API key is required for embeddings")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil && filepath.Dir(path) != "." {
		return nil, fmt.Errorf("kb: creating persist directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("kb: opening database at %s: %w", path, err)
	}

	return &ChromemStore{
		db:            db,
		collection:    collection,
		embeddingFunc: chromem.NewEmbeddingFuncOpenAI(openAIKey, chromem.EmbeddingModelOpenAI3Small),
	}, nil
}

func (s *ChromemStore) getCollection() (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.col != nil {
		return s.col, nil
	}
	col, err := s.db.GetOrCreateCollection(s.collection, nil, s.embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("kb: collection %q: %w", s.collection, err)
	}
	s.col = col
	return col, nil
}

// Index adds documents to the store. IDs are derived from the source
// name and chunk index, so re-indexing the same source overwrites.
func (s *ChromemStore) Index(ctx context.Context, source string, chunks []string) error {
	col, err := s.getCollection()
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for i, chunk := range chunks {
		if chunk == "" {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:       fmt.Sprintf("%s#%d", source, i),
			Content:  chunk,
			Metadata: map[string]string{"source": source},
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("kb: indexing %s: %w", source, err)
	}
	slog.Info("indexed knowledge base source", "source", source, "chunks", len(docs))
	return nil
}

// Retrieve returns the topK passages most similar to the topic.
func (s *ChromemStore) Retrieve(ctx context.Context, topic string, topK int) ([]Passage, error) {
	col, err := s.getCollection()
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := col.Query(ctx, topic, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("kb: querying %q: %w", topic, err)
	}

	passages := make([]Passage, len(results))
	for i, r := range results {
		passages[i] = Passage{ID: r.ID, Content: r.Content, Similarity: r.Similarity}
	}
	return passages, nil
}
