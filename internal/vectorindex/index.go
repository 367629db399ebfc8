package vectorindex

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"docllama/internal/config"
	"docllama/models"
)

// Entry is the persisted unit of the index.
type Entry struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata models.ChunkMetadata
}

// Match is one query hit. Distance is nil when the backend reports none.
type Match struct {
	ID       string
	Text     string
	Metadata models.ChunkMetadata
	Distance *float64
}

// Index stores entries and answers nearest-neighbour queries. Upsert
// replaces entries with the same ID and applies a batch as a whole: a batch
// that fails validation writes nothing. Query results are ordered by
// ascending distance and never exceed k.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)
	// Prune deletes entries of file whose IDs are not listed in keep.
	Prune(ctx context.Context, file string, keep []string) (int, error)
	Count(ctx context.Context) (int, error)
	Close(ctx context.Context) error
}

// Open builds the backend selected by VECTOR_INDEX.
func Open(ctx context.Context, cfg *config.Config) (Index, error) {
	switch cfg.VectorIndex {
	case "memory":
		return NewMemoryIndex(), nil
	case "file", "":
		return NewFileIndex(filepath.Join(cfg.IndexDir(), "index.json"))
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}), nil
	case "mongo":
		client, err := config.ConnectMongoDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrIndex, err)
		}
		return NewMongoIndex(client, cfg.DBName, config.ChunksCollection, cfg.VectorIndexName), nil
	default:
		return nil, fmt.Errorf("unknown vector index %q", cfg.VectorIndex)
	}
}

// validateBatch checks a batch before anything is written. dim is the
// dimensionality already held by the index, 0 when empty.
func validateBatch(entries []Entry, dim int) (int, error) {
	for i, e := range entries {
		if e.ID == "" {
			return dim, fmt.Errorf("%w: entry %d has no id", models.ErrIndex, i)
		}
		if len(e.Vector) == 0 {
			return dim, fmt.Errorf("%w: entry %s has an empty vector", models.ErrIndex, e.ID)
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return dim, fmt.Errorf("%w: entry %s has dimension %d, index holds %d", models.ErrIndex, e.ID, len(e.Vector), dim)
		}
	}
	return dim, nil
}

func validateQuery(vector []float32, k int) error {
	if k <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", models.ErrValidation, k)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty query vector", models.ErrValidation)
	}
	return nil
}

// cosineDistance is 1 - cosine similarity. Zero vectors are maximally distant.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

// rank orders by ascending distance with ID as the tie-breaker and trims to k.
func rank(matches []Match, k int) []Match {
	sort.Slice(matches, func(i, j int) bool {
		di, dj := distanceOf(matches[i]), distanceOf(matches[j])
		if di == dj {
			return matches[i].ID < matches[j].ID
		}
		return di < dj
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func distanceOf(m Match) float64 {
	if m.Distance == nil {
		return math.Inf(1)
	}
	return *m.Distance
}

func keepSet(keep []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}
	return set
}
