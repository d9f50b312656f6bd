// Package logger builds structured loggers from the logging configuration.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/cardkit/cardfs/pkg/config"
)

// Setup constructs a logger from the configuration and installs it as the
// slog default. The caller keeps the returned logger for explicit injection.
func Setup(cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log, nil
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", level)
	}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output: %w", err)
		}
		return f, nil
	}
}
