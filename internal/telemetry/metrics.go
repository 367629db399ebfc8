package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	IngestDuration      metric.Float64Histogram
	ChunksIndexed       metric.Int64Counter
	EmbeddingCalls      metric.Int64Counter
	StreamIncrements    metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(ServiceName)

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"pdf.ingest.duration",
		metric.WithDescription("Per-document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	chunksIndexed, err := meter.Int64Counter(
		"index.chunks.upserted",
		metric.WithDescription("Chunks written to the vector index"),
	)
	if err != nil {
		return nil, err
	}

	embeddingCalls, err := meter.Int64Counter(
		"embedding.calls.total",
		metric.WithDescription("Embedding backend calls"),
	)
	if err != nil {
		return nil, err
	}

	streamIncrements, err := meter.Int64Counter(
		"chat.stream.increments",
		metric.WithDescription("Token increments relayed to clients"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		IngestDuration:      ingestDuration,
		ChunksIndexed:       chunksIndexed,
		EmbeddingCalls:      embeddingCalls,
		StreamIncrements:    streamIncrements,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngest records one document's trip through the pipeline.
func (m *Metrics) RecordIngest(duration float64, status string, chunks int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("ingest.status", status))
	m.IngestDuration.Record(context.Background(), duration, attrs)
	if chunks > 0 {
		m.ChunksIndexed.Add(context.Background(), int64(chunks), attrs)
	}
}

func (m *Metrics) RecordEmbeddingCall(model string, success bool) {
	if m == nil {
		return
	}
	m.EmbeddingCalls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("embedding.model", model),
		attribute.Bool("embedding.success", success),
	))
}

func (m *Metrics) RecordStreamIncrement(mode string) {
	if m == nil {
		return
	}
	m.StreamIncrements.Add(context.Background(), 1, metric.WithAttributes(attribute.String("chat.mode", mode)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
