// Package log implements structured logging using slog.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/otus/internal/config"
)

// Init initializes the global logger based on configuration.
func Init(cfg config.LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var writers []io.Writer
	for i, output := range cfg.Outputs {
		writer, err := createWriter(output)
		if err != nil {
			return fmt.Errorf("failed to create output[%d] (%s): %w", i, output.Type, err)
		}
		if writer != nil {
			writers = append(writers, writer)
		}
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	multiWriter := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(multiWriter, opts)
	case "text":
		handler = slog.NewTextHandler(multiWriter, opts)
	default:
		return fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", levelStr)
	}
}

func createWriter(output config.OutputConfig) (io.Writer, error) {
	switch strings.ToLower(output.Type) {
	case "", "console", "stdout":
		return os.Stdout, nil

	case "file":
		if output.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		return &lumberjack.Logger{
			Filename:   output.Path,
			MaxSize:    output.MaxSizeMB,
			MaxBackups: output.MaxBackups,
			MaxAge:     output.MaxAgeDays,
			Compress:   output.Compress,
		}, nil

	case "loki":
		if output.Endpoint == "" {
			return nil, fmt.Errorf("loki output requires 'endpoint' field")
		}
		var flushInterval time.Duration
		if output.FlushInterval != "" {
			d, err := time.ParseDuration(output.FlushInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid loki flush_interval %q: %w", output.FlushInterval, err)
			}
			flushInterval = d
		}
		return NewLokiWriter(LokiConfig{
			Endpoint:      output.Endpoint,
			Labels:        output.Labels,
			BatchSize:     output.BatchSize,
			FlushInterval: flushInterval,
		})

	default:
		return nil, fmt.Errorf("unsupported output type: %s", output.Type)
	}
}
