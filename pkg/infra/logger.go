package infra

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/Guizzs26/go-meta-sync/internal/config"
)

var (
	logFile   *os.File
	closeOnce sync.Once
)

// SetupLogger builds the process logger. LOG_FILE, when set, receives a copy of stdout
func SetupLogger(cfg *config.Config) *slog.Logger {
	return NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
}

func NewLogger(levelName, format, path string) *slog.Logger {
	var out io.Writer = os.Stdout
	if path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			logFile = f
			out = io.MultiWriter(os.Stdout, f)
		}
	}
	return NewWriterLogger(out, levelName, format)
}

// NewWriterLogger builds a logger on an arbitrary writer. The CLI logs to stderr so
// stdout stays machine-readable
func NewWriterLogger(out io.Writer, levelName, format string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelName) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if strings.ToUpper(format) == "JSON" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// CloseLogger flushes and closes the log file opened by SetupLogger, if any
func CloseLogger() {
	closeOnce.Do(func() {
		if logFile != nil {
			logFile.Close()
		}
	})
}

// Discard returns a logger that drops everything. Used by tests and quiet CLI paths
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
