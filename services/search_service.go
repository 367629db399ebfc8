package services

import (
	"context"
	"fmt"
	"strings"

	"docllama/internal/vectorindex"
	"docllama/models"
)

const DefaultSearchK = 5

type SearchService struct {
	embeddings *EmbeddingService
	index      vectorindex.Index
	model      string
}

// NewSearchService embeds queries with model, which must match the model
// used at ingestion. An empty model uses the embedding service default.
func NewSearchService(embeddings *EmbeddingService, index vectorindex.Index, model string) *SearchService {
	return &SearchService{embeddings: embeddings, index: index, model: model}
}

// Search returns at most k entries nearest to query. Distances are passed
// through as reported by the index.
func (s *SearchService) Search(ctx context.Context, query string, k int) (*models.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is required", models.ErrValidation)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", models.ErrValidation, k)
	}

	vectors, err := s.embeddings.Embed(ctx, []string{query}, s.model)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.index.Query(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	results := make([]models.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = models.SearchResult{Text: m.Text, Meta: m.Metadata, Distance: m.Distance}
	}
	return &models.SearchResponse{Query: query, K: k, Results: results}, nil
}
