package services

import (
	"context"
	"fmt"

	"docllama/internal/ai"
	"docllama/models"

	"golang.org/x/sync/errgroup"
)

// EmbeddingService embeds batches of texts with bounded concurrency.
type EmbeddingService struct {
	embedder     ai.Embedder
	defaultModel string
	concurrency  int
}

func NewEmbeddingService(embedder ai.Embedder, defaultModel string, concurrency int) *EmbeddingService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &EmbeddingService{
		embedder:     embedder,
		defaultModel: defaultModel,
		concurrency:  concurrency,
	}
}

// Model resolves an optional model name against the configured default.
func (s *EmbeddingService) Model(model string) string {
	if model == "" {
		return s.defaultModel
	}
	return model
}

// Embed returns one vector per text with result[i] belonging to texts[i].
// The first failure cancels the remaining calls and is reported as an
// *models.EmbedError carrying the failing index. All vectors must share one
// dimensionality.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	model = s.Model(model)
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, text := range texts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := s.embedder.Embed(gctx, model, text)
			if err != nil {
				return &models.EmbedError{Index: i, Err: err}
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) != dim {
			return nil, &models.EmbedError{
				Index: i,
				Err:   fmt.Errorf("%w: dimension %d does not match %d", models.ErrUpstream, len(v), dim),
			}
		}
	}
	return vectors, nil
}
