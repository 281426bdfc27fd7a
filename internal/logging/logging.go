// Package logging builds the process logger: a tint-formatted slog handler
// on stdout, optionally mirrored into a lumberjack-rotated file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level and file rotation.  An empty Dir logs to stdout only.
type Config struct {
	Level      string `env:"LOG_LEVEL" envDefault:"info"` // debug, info, warn, error
	Dir        string `env:"LOG_DIR"`
	File       string `env:"LOG_FILE" envDefault:"server.log"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"7"`
	Compress   bool   `env:"LOG_COMPRESS" envDefault:"true"`
}

// NewLogger returns the application logger and installs it as slog's default.
func NewLogger(cfg Config) (*slog.Logger, error) {
	return newLoggerTo(os.Stdout, cfg)
}

func newLoggerTo(stdout io.Writer, cfg Config) (*slog.Logger, error) {
	level := parseLevel(cfg.Level)
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		logger := newLogger(stdout, level, false)
		slog.SetDefault(logger)
		return logger, nil
	}

	file, err := NewRotatingFile(cfg, cfg.File)
	if err != nil {
		return nil, err
	}
	logger := newLogger(io.MultiWriter(stdout, file), level, true)
	slog.SetDefault(logger)
	logger.Info("file_logging_enabled", slog.String("path", file.Filename))
	return logger, nil
}

// NewRotatingFile opens a lumberjack writer named name inside cfg.Dir using
// the configured rotation limits.  It is shared by the process logger and the
// booking event log.
func NewRotatingFile(cfg Config, name string) (*lumberjack.Logger, error) {
	if cfg.MaxSizeMB <= 0 || cfg.MaxBackups <= 0 || cfg.MaxAgeDays <= 0 {
		return nil, fmt.Errorf("invalid log config: size=%d backups=%d age_days=%d",
			cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, name),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

func newLogger(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		AddSource:  true,
		NoColor:    noColor,
	}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
