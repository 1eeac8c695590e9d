package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompMonitor   = "monitor"
	CompSession   = "session"
	CompDispatch  = "dispatch"
	CompNotify    = "notify"
	CompStore     = "store"
	CompAuto      = "auto"
	CompAI        = "ai"
	CompTelegram  = "telegram"
	CompTokens    = "tokens"
	CompConfirm   = "confirm"
	CompDaemon    = "daemon"
)

// Config holds logging configuration.
type Config struct {
	// File is the log file path (e.g. ~/.conductor/conductor.log).
	// Empty disables file output.
	File string

	// Level is the minimum log level: "debug", "info", "warn", "error"
	Level string

	// MaxSizeMB is the max size in MB before rotation (default: 50)
	MaxSizeMB int

	// MaxBackups is rotated files to keep (default: 3)
	MaxBackups int

	// Console mirrors log output to stderr
	Console bool
}

var (
	globalLogger *slog.Logger
	globalMu     sync.RWMutex
	lumberjackW  *lumberjack.Logger
)

// Init initializes the global logging system.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var writers []io.Writer
	if cfg.File != "" {
		path := expandHome(cfg.File)
		_ = os.MkdirAll(filepath.Dir(path), 0o700)
		lumberjackW = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, lumberjackW)
	}
	if cfg.Console {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	handler := slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: level,
	})
	globalLogger = slog.New(handler)
}

// Logger returns the global logger. Safe to call before Init (returns default).
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return globalLogger
}

// ForComponent returns a sub-logger with the component field set.
func ForComponent(name string) *slog.Logger {
	return Logger().With(slog.String("component", name))
}

// Shutdown closes the rotating file writer.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if lumberjackW != nil {
		lumberjackW.Close()
		lumberjackW = nil
	}
	globalLogger = nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
