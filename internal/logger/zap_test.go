package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WithAttachesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	var l Logger = &zapLogger{logger: zap.New(core)}
	l = l.With(String("source", "the-eastern"))

	l.Debug("dropped")
	l.Warn("candidate skipped", Int("index", 3), Float64("confidence", 0.5))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "candidate skipped", entries[0].Message)
	fields := entries[0].ContextMap()
	assert.Equal(t, "the-eastern", fields["source"])
	assert.EqualValues(t, 3, fields["index"])
	assert.InDelta(t, 0.5, fields["confidence"], 0.0001)
}
