package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"docllama/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Should write JSON records at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := New(&buf, &config.Config{LogLevel: "warn", GinMode: "release"})
		log.Info("dropped")
		log.Warn("kept", "file", "a.pdf")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "kept", record["msg"])
		assert.Equal(t, "a.pdf", record["file"])
		assert.NotContains(t, buf.String(), "dropped")
	})

	t.Run("Should fall back to debug level in debug mode", func(t *testing.T) {
		assert.Equal(t, "DEBUG", parseLevel(&config.Config{GinMode: "debug"}).String())
		assert.Equal(t, "INFO", parseLevel(&config.Config{GinMode: "release"}).String())
	})
}

func TestHelpersWithoutLogger(t *testing.T) {
	t.Run("Should not panic before initialization", func(t *testing.T) {
		Logger = nil
		assert.NotPanics(t, func() {
			Info("x")
			Warn("x")
			Error("x")
			Debug("x")
		})
	})
}
