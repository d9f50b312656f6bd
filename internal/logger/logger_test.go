package logger

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardkit/cardfs/pkg/config"
)

func TestSetupFormats(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		t.Run(format, func(t *testing.T) {
			log, err := Setup(config.LoggingConfig{
				Level:  "DEBUG",
				Format: format,
				Output: "stderr",
			})
			require.NoError(t, err)
			assert.NotNil(t, log)
			assert.True(t, log.Enabled(context.Background(), slog.LevelDebug))
		})
	}
}

func TestSetupLevelFilter(t *testing.T) {
	log, err := Setup(config.LoggingConfig{
		Level:  "WARN",
		Format: "text",
		Output: "stderr",
	})
	require.NoError(t, err)

	assert.False(t, log.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, log.Enabled(context.Background(), slog.LevelWarn))
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(config.LoggingConfig{Level: "LOUD", Format: "text"})
	assert.Error(t, err)
}

func TestSetupFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cardfs.log")

	log, err := Setup(config.LoggingConfig{
		Level:  "INFO",
		Format: "json",
		Output: path,
	})
	require.NoError(t, err)

	log.Info("hello")
	assert.FileExists(t, path)
}
