package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestExtractLogger(t *testing.T) {
	t.Run("falls back to the global logger", func(t *testing.T) {
		assert.Equal(t, GlobalLogger(), ExtractLogger(context.Background()))
	})
	t.Run("returns the attached logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf).With().Str("job", "abc123").Logger()
		ctx := AttachLoggerToContext(&logger, context.Background())

		ExtractLogger(ctx).Info().Msg("hello")
		assert.Contains(t, buf.String(), `"job":"abc123"`)
		assert.Contains(t, buf.String(), `"message":"hello"`)
	})
}

func TestLogPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	assert.NotPanics(t, func() {
		defer LogPanics(&logger)
		panic("oh no")
	})
	assert.Contains(t, buf.String(), "recovered from panic")
	assert.Contains(t, buf.String(), "oh no")
}
