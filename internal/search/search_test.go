package search

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type mockChunkStore struct {
	lastVec []float32
	lastK   int
	results []models.SearchResult
	err     error
	calls   int
}

func (m *mockChunkStore) SaveChunks(ctx context.Context, snap *models.FileSnapshot, chunks []models.Chunk) error {
	return nil
}

func (m *mockChunkStore) DeleteChunksByHash(ctx context.Context, hash string) error { return nil }

func (m *mockChunkStore) HasChunks(ctx context.Context, hash string) (bool, error) {
	return false, nil
}

func (m *mockChunkStore) Search(ctx context.Context, vec []float32, k int) ([]models.SearchResult, error) {
	m.calls++
	m.lastVec = vec
	m.lastK = k
	return m.results, m.err
}

type failingClient struct{}

func (f *failingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("model unavailable")
}

func (f *failingClient) Dim() int { return 8 }

func TestQueryEmptyString(t *testing.T) {
	store := &mockChunkStore{}
	svc := NewService(ai.NewStubClient(8), store)

	res, err := svc.Query(context.Background(), "   ", 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("Expected empty results for blank query, got %d", len(res))
	}
	if store.calls != 0 {
		t.Error("Expected no store call for blank query")
	}
}

func TestQueryEmbedsAndSearches(t *testing.T) {
	store := &mockChunkStore{results: []models.SearchResult{{Content: "hit", Score: 0.9}}}
	svc := NewService(ai.NewStubClient(8), store)

	res, err := svc.Query(context.Background(), "how do I configure auth?", 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res) != 1 || res[0].Content != "hit" {
		t.Errorf("Expected the store results, got %v", res)
	}
	if store.lastK != 3 {
		t.Errorf("Expected k=3, got %d", store.lastK)
	}
	if len(store.lastVec) != 8 {
		t.Errorf("Expected an 8-dim query vector, got %d", len(store.lastVec))
	}
}

func TestQueryDefaultsK(t *testing.T) {
	store := &mockChunkStore{}
	svc := NewService(ai.NewStubClient(8), store)

	if _, err := svc.Query(context.Background(), "query", 0); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if store.lastK != 5 {
		t.Errorf("Expected default k=5, got %d", store.lastK)
	}
}

func TestQueryEmbedFailure(t *testing.T) {
	store := &mockChunkStore{}
	svc := NewService(&failingClient{}, store)

	if _, err := svc.Query(context.Background(), "query", 5); err == nil {
		t.Error("Expected error when embedding fails")
	}
	if store.calls != 0 {
		t.Error("Expected no store call when embedding fails")
	}
}
