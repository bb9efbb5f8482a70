// Package logging configures structured logging for the recording
// pipeline: a rotated JSON log file under logs/ plus a human-readable
// console stream. Rotation and level come from the main log settings.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/retracehq/retrace/internal/conf"
	"gopkg.in/natefinch/lumberjack.v2"
)

// mainLogFile is the primary structured log of the recording service.
const mainLogFile = "logs/retrace.log"

var (
	structuredLogger *slog.Logger
	consoleLogger    *slog.Logger
	loggerMu         sync.RWMutex
)

// currentLogLevel drives every handler created by this package.
var currentLogLevel = new(slog.LevelVar)

var initOnce sync.Once

// rotationPolicy is the lumberjack configuration derived from
// conf.Settings.Main.Log at Init time. File loggers created later
// (NewFileLogger) reuse it so all log files rotate the same way.
type rotationPolicy struct {
	maxSizeMB  int
	maxBackups int
	maxAge     int // days
}

var (
	policyMu      sync.RWMutex
	currentPolicy = rotationPolicy{maxSizeMB: 100, maxBackups: 3, maxAge: 28}
)

// policyFor maps the configured rotation mode onto lumberjack limits.
// Every mode rotates a file once it reaches MaxSize; daily and weekly only
// change how long and how many rotated files are kept. No mode rotates on a
// time schedule.
func policyFor(cfg *conf.Settings) rotationPolicy {
	p := currentPolicy
	if cfg.Main.Log.MaxSize > 0 {
		p.maxSizeMB = cfg.Main.Log.MaxSize
	}
	switch cfg.Main.Log.Rotation {
	case "daily":
		p.maxAge = 1
		p.maxBackups = 30
	case "weekly":
		p.maxAge = 7
		p.maxBackups = 4
	case "size":
	default:
		slog.Warn("Unknown log rotation mode, using size-based rotation",
			"rotation", cfg.Main.Log.Rotation)
	}
	return p
}

// levelFor parses the configured log level, defaulting to info.
func levelFor(cfg *conf.Settings) slog.Level {
	switch cfg.Main.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// formatAttr normalizes attributes across all handlers: timestamps at
// second precision, levels always rendered as strings, floats truncated
// to two decimals.
func formatAttr(groups []string, a slog.Attr) slog.Attr {
	switch {
	case a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime:
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	case a.Key == slog.LevelKey:
		// User code occasionally uses "level" as an attribute key; render
		// whatever is there instead of panicking on the type assertion.
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(level.String())
		} else {
			a.Value = slog.StringValue(fmt.Sprintf("%v", a.Value.Any()))
		}
	case a.Value.Kind() == slog.KindFloat64:
		a.Value = slog.Float64Value(math.Trunc(a.Value.Float64()*100) / 100.0)
	}
	return a
}

// newJSONHandler builds the JSON handler every file logger uses.
func newJSONHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: formatAttr,
	})
}

// Init wires the global loggers from the given settings: a rotated JSON
// log at logs/retrace.log becomes the slog default, and a text logger on
// stdout serves operator-facing messages. An always-on recorder cannot
// grow its primary log unbounded, so the main log rotates with the same
// policy as every other file logger.
func Init(settings *conf.Settings) {
	initOnce.Do(func() {
		currentLogLevel.Set(levelFor(settings))

		policy := policyFor(settings)
		policyMu.Lock()
		currentPolicy = policy
		policyMu.Unlock()

		if err := os.MkdirAll(filepath.Dir(mainLogFile), 0o755); err != nil {
			fmt.Printf("Failed to create logs directory: %v\n", err)
			os.Exit(1)
		}

		structuredHandler := newJSONHandler(&lumberjack.Logger{
			Filename:   mainLogFile,
			MaxSize:    policy.maxSizeMB,
			MaxBackups: policy.maxBackups,
			MaxAge:     policy.maxAge,
		}, currentLogLevel)
		consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: formatAttr,
		})

		loggerMu.Lock()
		structuredLogger = slog.New(structuredHandler)
		consoleLogger = slog.New(consoleHandler)
		loggerMu.Unlock()

		slog.SetDefault(structuredLogger)
	})
}

// SetLevel changes the level of every logger this package has created.
func SetLevel(level slog.Level) {
	currentLogLevel.Set(level)
}

// Console returns the human-readable stdout logger.
// Returns nil if Init has not been called.
func Console() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return consoleLogger
}

// ForService returns the structured logger with the 'service' attribute
// set. Returns nil if Init has not been called; callers fall back to the
// slog default in that case.
func ForService(serviceName string) *slog.Logger {
	loggerMu.RLock()
	logger := structuredLogger
	loggerMu.RUnlock()

	if logger == nil {
		return nil
	}
	return logger.With("service", serviceName)
}

// NewFileLogger creates a slog.Logger writing JSON logs to filePath,
// rotated with the policy captured at Init (or the built-in defaults
// before Init). It returns the logger, a close function for the
// underlying writer, and an error if setup fails.
func NewFileLogger(filePath, serviceName string, levelVar *slog.LevelVar) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	policyMu.RLock()
	policy := currentPolicy
	policyMu.RUnlock()

	lj := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    policy.maxSizeMB,
		MaxBackups: policy.maxBackups,
		MaxAge:     policy.maxAge,
	}

	logger := slog.New(newJSONHandler(lj, levelVar)).With("service", serviceName)
	return logger, lj.Close, nil
}

// DiscardLogger returns a logger that drops everything; used as a
// fallback when a file logger cannot be created.
func DiscardLogger(serviceName string, levelVar *slog.LevelVar) *slog.Logger {
	return slog.New(newJSONHandler(io.Discard, levelVar)).With("service", serviceName)
}
