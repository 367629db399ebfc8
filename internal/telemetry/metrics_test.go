package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMetrics(t *testing.T) {
	t.Run("Should create instruments on the global meter", func(t *testing.T) {
		m, err := InitMetrics()
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			m.RecordRequest("GET", "/health", "200", 0.01)
			m.RecordIngest(1.5, "ok", 3)
			m.RecordEmbeddingCall("nomic-embed-text", true)
			m.RecordStreamIncrement("stream")
			m.RecordCircuitBreakerState("ollama", "open")
		})
	})

	t.Run("Should tolerate a nil receiver", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.RecordIngest(1, "failed", 0)
			m.RecordStreamIncrement("single")
		})
	})
}

func TestInitTracer(t *testing.T) {
	t.Run("Should be a no-op without an endpoint", func(t *testing.T) {
		shutdown, err := InitTracer(context.Background(), ServiceName, "")
		require.NoError(t, err)
		assert.NotPanics(t, shutdown)
	})
}
