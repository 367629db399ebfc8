package vectorindex

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"docllama/models"

	"github.com/go-resty/resty/v2"
)

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// QdrantIndex stores entries as points of one cosine collection, created on
// first write with the dimensionality of that write.
type QdrantIndex struct {
	client     *resty.Client
	collection string

	mu     sync.Mutex
	exists bool
}

func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}
	return &QdrantIndex{client: client, collection: cfg.Collection}
}

type qdrantPayload struct {
	Text  string `json:"text"`
	File  string `json:"file"`
	Page  int    `json:"page"`
	Chunk int    `json:"chunk"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector"`
	Payload qdrantPayload `json:"payload"`
}

func (q *QdrantIndex) path(suffix string) string {
	return "/collections/" + q.collection + suffix
}

// ensureCollection reports whether the collection exists, creating it when
// dim > 0.
func (q *QdrantIndex) ensureCollection(ctx context.Context, dim int) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.exists {
		return true, nil
	}

	resp, err := q.client.R().SetContext(ctx).Get(q.path(""))
	if err != nil {
		return false, fmt.Errorf("%w: qdrant: %w", models.ErrIndex, err)
	}
	switch {
	case resp.StatusCode() == http.StatusOK:
		q.exists = true
		return true, nil
	case resp.StatusCode() != http.StatusNotFound:
		return false, qdrantError("get collection", resp)
	case dim == 0:
		return false, nil
	}

	resp, err = q.client.R().SetContext(ctx).
		SetBody(map[string]any{
			"vectors": map[string]any{"size": dim, "distance": "Cosine"},
		}).
		Put(q.path(""))
	if err != nil {
		return false, fmt.Errorf("%w: qdrant: %w", models.ErrIndex, err)
	}
	if resp.IsError() {
		return false, qdrantError("create collection", resp)
	}
	q.exists = true
	return true, nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim, err := validateBatch(entries, 0)
	if err != nil {
		return err
	}
	if _, err := q.ensureCollection(ctx, dim); err != nil {
		return err
	}

	points := make([]qdrantPoint, len(entries))
	for i, e := range entries {
		points[i] = qdrantPoint{
			ID:     e.ID,
			Vector: e.Vector,
			Payload: qdrantPayload{
				Text:  e.Text,
				File:  e.Metadata.File,
				Page:  e.Metadata.Page,
				Chunk: e.Metadata.Chunk,
			},
		}
	}

	resp, err := q.client.R().SetContext(ctx).
		SetBody(map[string]any{"points": points}).
		SetQueryParam("wait", "true").
		Put(q.path("/points"))
	if err != nil {
		return fmt.Errorf("%w: qdrant: %w", models.ErrIndex, err)
	}
	if resp.IsError() {
		return qdrantError("upsert", resp)
	}
	return nil
}

func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if err := validateQuery(vector, k); err != nil {
		return nil, err
	}
	exists, err := q.ensureCollection(ctx, 0)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []Match{}, nil
	}

	var out struct {
		Result []struct {
			ID      any           `json:"id"`
			Score   *float64      `json:"score"`
			Payload qdrantPayload `json:"payload"`
		} `json:"result"`
	}
	resp, err := q.client.R().SetContext(ctx).
		SetBody(map[string]any{
			"vector":       vector,
			"limit":        k,
			"with_payload": true,
		}).
		SetResult(&out).
		Post(q.path("/points/search"))
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant: %w", models.ErrIndex, err)
	}
	if resp.IsError() {
		return nil, qdrantError("search", resp)
	}

	matches := make([]Match, 0, len(out.Result))
	for _, r := range out.Result {
		m := Match{
			ID:       fmt.Sprint(r.ID),
			Text:     r.Payload.Text,
			Metadata: models.ChunkMetadata{File: r.Payload.File, Page: r.Payload.Page, Chunk: r.Payload.Chunk},
		}
		if r.Score != nil {
			d := 1 - *r.Score
			m.Distance = &d
		}
		matches = append(matches, m)
	}
	return rank(matches, k), nil
}

func (q *QdrantIndex) Prune(ctx context.Context, file string, keep []string) (int, error) {
	exists, err := q.ensureCollection(ctx, 0)
	if err != nil || !exists {
		return 0, err
	}

	filter := map[string]any{
		"must": []any{
			map[string]any{"key": "file", "match": map[string]any{"value": file}},
		},
	}
	if len(keep) > 0 {
		filter["must_not"] = []any{map[string]any{"has_id": keep}}
	}

	stale, err := q.count(ctx, filter)
	if err != nil || stale == 0 {
		return 0, err
	}

	resp, err := q.client.R().SetContext(ctx).
		SetBody(map[string]any{"filter": filter}).
		SetQueryParam("wait", "true").
		Post(q.path("/points/delete"))
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant: %w", models.ErrIndex, err)
	}
	if resp.IsError() {
		return 0, qdrantError("delete", resp)
	}
	return stale, nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	exists, err := q.ensureCollection(ctx, 0)
	if err != nil || !exists {
		return 0, err
	}
	return q.count(ctx, nil)
}

func (q *QdrantIndex) count(ctx context.Context, filter map[string]any) (int, error) {
	body := map[string]any{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	var out struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	resp, err := q.client.R().SetContext(ctx).SetBody(body).SetResult(&out).Post(q.path("/points/count"))
	if err != nil {
		return 0, fmt.Errorf("%w: qdrant: %w", models.ErrIndex, err)
	}
	if resp.IsError() {
		return 0, qdrantError("count", resp)
	}
	return out.Result.Count, nil
}

func (q *QdrantIndex) Close(context.Context) error {
	return nil
}

func qdrantError(op string, resp *resty.Response) error {
	return fmt.Errorf("%w: qdrant %s failed: %s: %s", models.ErrIndex, op, resp.Status(), resp.String())
}
