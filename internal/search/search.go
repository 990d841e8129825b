package search

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/docsearch/internal/ai"
	"github.com/seanblong/docsearch/internal/store"
	"github.com/seanblong/docsearch/pkg/models"
)

type Service struct {
	Client ai.Client
	Store  store.ChunkStore
}

// NewService creates a new search service with the provided embedding client and store
func NewService(client ai.Client, store store.ChunkStore) *Service {
	return &Service{
		Client: client,
		Store:  store,
	}
}

// Query embeds the query text and returns the k nearest chunks.
func (s *Service) Query(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []models.SearchResult{}, nil
	}
	if k < 1 {
		k = 5
	}

	vec, err := s.Client.Embed(ctx, q)
	if err != nil {
		log.Error().Err(err).Str("q", q).Msg("query embedding failed")
		return nil, err
	}

	return s.Store.Search(ctx, vec, k)
}
