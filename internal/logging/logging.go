// Package logging provides centralized logging configuration for specula.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// globalLogger is the application-wide logger
	globalLogger *slog.Logger
	globalMu     sync.RWMutex

	// level is shared by every handler so verbosity can be retuned at
	// runtime (the config watcher calls SetLevel on file changes).
	level slog.LevelVar

	// logWriter holds the log file writer (if any) for cleanup
	logWriter   io.WriteCloser
	logWriterMu sync.Mutex
)

// FileLogConfig holds configuration for file-based logging with rotation.
type FileLogConfig struct {
	// Path is the file path for the log file.
	// Empty string disables file logging.
	Path string

	// MaxSizeMB is the maximum size of the log file in megabytes before rotation.
	// Default: 10MB
	MaxSizeMB int

	// MaxBackups is the maximum number of old log files to retain.
	// Default: 3
	MaxBackups int

	// Compress determines if rotated log files should be compressed.
	Compress bool
}

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string
	// FileLog is the optional configuration for file logging with rotation.
	FileLog *FileLogConfig
	// JSON enables JSON output format
	JSON bool
}

// Initialize sets up the global logger with the given configuration.
// If FileLog is specified, logs are written to both stderr and the file,
// with rotation handled by lumberjack.
func Initialize(cfg Config) error {
	level.Set(ParseLevel(cfg.Level))

	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.FileLog != nil && cfg.FileLog.Path != "" {
		maxSize := cfg.FileLog.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := cfg.FileLog.MaxBackups
		if maxBackups < 0 {
			maxBackups = 3
		}

		lj := &lumberjack.Logger{
			Filename:   cfg.FileLog.Path,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   cfg.FileLog.Compress,
		}
		logWriter = lj
		w = io.MultiWriter(os.Stderr, lj)
	}

	opts := &slog.HandlerOptions{Level: &level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()

	slog.SetDefault(logger)
	return nil
}

// SetLevel changes the minimum log level of every logger created by this
// package. Safe to call while logging is in progress.
func SetLevel(name string) {
	level.Set(ParseLevel(name))
}

// Get returns the global logger.
// If Initialize hasn't been called, returns slog.Default().
func Get() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}

// Close cleans up logging resources (closes the log file if open).
func Close() error {
	logWriterMu.Lock()
	defer logWriterMu.Unlock()

	if logWriter != nil {
		err := logWriter.Close()
		logWriter = nil
		return err
	}
	return nil
}

// ParseLevel converts a string level to slog.Level. Unknown strings map to info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with a component attribute.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Bus returns a logger for event bus activity.
func Bus() *slog.Logger {
	return WithComponent("bus")
}

// Web returns a logger for HTTP server and stream transport events.
func Web() *slog.Logger {
	return WithComponent("web")
}

// Client returns a logger for the stream consumer client.
func Client() *slog.Logger {
	return WithComponent("client")
}

// Reconcile returns a logger for reconciler activity.
func Reconcile() *slog.Logger {
	return WithComponent("reconcile")
}

// Sim returns a logger for the event producer simulation.
func Sim() *slog.Logger {
	return WithComponent("sim")
}

// WithSubscription returns a logger carrying a subscription's identity.
func WithSubscription(base *slog.Logger, subscriptionID, clientIP string) *slog.Logger {
	if base == nil {
		return nil
	}
	return base.With(
		"subscription_id", subscriptionID,
		"client_ip", clientIP,
	)
}
