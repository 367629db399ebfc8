package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docllama/internal/logger"
	"docllama/internal/telemetry"
	"docllama/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// Upstream endpoints of the model backend.
const (
	TagsEndpoint       = "/api/tags"
	EmbeddingsEndpoint = "/api/embeddings"
	GenerateEndpoint   = "/api/generate"
	ChatEndpoint       = "/api/chat"
)

const errorExcerptLimit = 512

// OllamaOptions tunes an OllamaClient. Zero values disable the corresponding limit.
type OllamaOptions struct {
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	RateLimit       float64 // embedding requests per second
	HTTPClient      *http.Client
	Metrics         *telemetry.Metrics
}

// OllamaClient talks to an Ollama-compatible model backend.
type OllamaClient struct {
	baseURL         string
	http            *http.Client
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
	embedTimeout    time.Duration
	generateTimeout time.Duration
	metrics         *telemetry.Metrics
}

func NewOllamaClient(baseURL string, opts OllamaOptions) *OllamaClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// No client-level timeout: streaming responses are bounded by the caller context.
		httpClient = &http.Client{}
	}

	metrics := opts.Metrics
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "OllamaAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellations say nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState(name, to.String())
		},
	})

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &OllamaClient{
		baseURL:         strings.TrimRight(baseURL, "/"),
		http:            httpClient,
		breaker:         breaker,
		rateLimiter:     limiter,
		embedTimeout:    opts.EmbedTimeout,
		generateTimeout: opts.GenerateTimeout,
		metrics:         metrics,
	}
}

// ListModels returns every model name the backend has installed.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := otel.Tracer("ollama-client").Start(ctx, "ollama.list_models")
	defer span.End()

	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.doJSON(ctx, http.MethodGet, TagsEndpoint, nil, &out); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	span.SetAttributes(attribute.Int("ollama.models", len(names)))
	return names, nil
}

// PartitionModels splits model names into generation and embedding models by
// name. Input order is preserved.
func PartitionModels(names []string) (generation, embeddings []string) {
	generation, embeddings = []string{}, []string{}
	for _, name := range names {
		lower := strings.ToLower(name)
		if strings.Contains(lower, "embed") || strings.Contains(lower, "nomic") {
			embeddings = append(embeddings, name)
		} else {
			generation = append(generation, name)
		}
	}
	return generation, embeddings
}

// Embed returns the embedding of a single text.
func (c *OllamaClient) Embed(ctx context.Context, model, text string) ([]float32, error) {
	ctx, span := otel.Tracer("ollama-client").Start(ctx, "ollama.embed")
	defer span.End()
	span.SetAttributes(
		attribute.String("ollama.model", model),
		attribute.Int("ollama.text_length", len(text)),
	)

	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			span.SetAttributes(attribute.Bool("ollama.rate_limited", true))
			return nil, fmt.Errorf("%w: rate limiter: %w", models.ErrUpstream, err)
		}
	}

	if c.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.embedTimeout)
		defer cancel()
	}

	// Both the native shape and the OpenAI-compatible shapes are accepted.
	var out struct {
		Embedding  []float32   `json:"embedding"`
		Embeddings [][]float32 `json:"embeddings"`
		Data       []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	err := c.doJSON(ctx, http.MethodPost, EmbeddingsEndpoint, map[string]any{
		"model":  model,
		"prompt": text,
	}, &out)
	c.metrics.RecordEmbeddingCall(model, err == nil)
	if err != nil {
		span.SetAttributes(attribute.Bool("ollama.error", true))
		return nil, err
	}

	vector := out.Embedding
	switch {
	case len(vector) > 0:
	case len(out.Embeddings) > 0:
		vector = out.Embeddings[0]
	case len(out.Data) > 0:
		vector = out.Data[0].Embedding
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty embedding returned for model %s", models.ErrUpstream, model)
	}
	span.SetAttributes(attribute.Int("ollama.dimensions", len(vector)))
	return vector, nil
}

// Generate runs a blocking, non-streaming completion.
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	ctx, span := otel.Tracer("ollama-client").Start(ctx, "ollama.generate")
	defer span.End()
	span.SetAttributes(attribute.String("ollama.model", model))

	if c.generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.generateTimeout)
		defer cancel()
	}

	var out struct {
		Response string `json:"response"`
	}
	err := c.doJSON(ctx, http.MethodPost, GenerateEndpoint, map[string]any{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}, &out)
	if err != nil {
		span.SetAttributes(attribute.Bool("ollama.error", true))
		return "", err
	}
	return out.Response, nil
}

// OpenStream posts payload to a streaming endpoint and hands back the open
// body. The caller must close it; closing also releases the generate timeout.
func (c *OllamaClient) OpenStream(ctx context.Context, endpoint string, payload any) (io.ReadCloser, error) {
	cancel := context.CancelFunc(func() {})
	if c.generateTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.generateTimeout)
	}

	resp, err := c.send(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}

func (c *OllamaClient) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	resp, err := c.send(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", models.ErrUpstream, endpoint, err)
	}
	return nil
}

// send executes one request through the circuit breaker. Any non-2xx status
// is turned into ErrUpstream and the body is closed.
func (c *OllamaClient) send(ctx context.Context, method, endpoint string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, errorExcerptLimit))
			return nil, &statusError{endpoint: endpoint, status: resp.StatusCode, body: strings.TrimSpace(string(excerpt))}
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrUpstream, err)
	}
	return result.(*http.Response), nil
}

type statusError struct {
	endpoint string
	status   int
	body     string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("%s returned status %d", e.endpoint, e.status)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.endpoint, e.status, e.body)
}
