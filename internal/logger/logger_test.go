package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/event-crawler/internal/logger"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	require.NotNil(t, l)
	l.Info("ready", logger.String("component", "test"))
}

func TestNew_ConsoleFormat(t *testing.T) {
	t.Parallel()

	l, err := logger.New(logger.Config{
		Level:       "debug",
		Format:      logger.FormatConsole,
		Development: true,
		OutputPaths: []string{"stderr"},
	})
	require.NoError(t, err)
	l.Debug("console output")
}

func TestFromContext(t *testing.T) {
	t.Parallel()

	scoped, err := logger.New(logger.Config{OutputPaths: []string{"stderr"}})
	require.NoError(t, err)
	fallback := logger.NewNop()

	ctx := logger.WithContext(context.Background(), scoped)
	assert.Same(t, scoped, logger.FromContext(ctx, fallback))
	assert.Same(t, fallback, logger.FromContext(context.Background(), fallback))
}
