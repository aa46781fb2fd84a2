package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/venstar-bridge/internal/infrastructure/config"
)

// Controller log levels as sent by SET_LOGLEVEL. These are the numeric
// levels used by the Polyglot controller (Python logging values).
const (
	ControllerDebug   = 10
	ControllerInfo    = 20
	ControllerWarning = 30
	ControllerError   = 40
)

// Logger wraps slog.Logger with bridge-specific functionality.
//
// The level is held in a slog.LevelVar so it can be changed at runtime by
// the controller without rebuilding the handler chain.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a new Logger with the specified configuration.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return newWithWriter(cfg, version, output)
}

func newWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	level := new(slog.LevelVar)
	level.Set(parseLevel(cfg.Level))

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
	}

	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "venstar-bridge"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
		level:  level,
	}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a new Logger with additional default attributes.
// The returned logger shares the level of its parent.
//
// Example:
//
//	pollLogger := logger.With("component", "poller")
//	pollLogger.Info("started") // Includes component=poller
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
		level:  l.level,
	}
}

// SetLevel changes the minimum level for this logger and every logger
// derived from it with With.
func (l *Logger) SetLevel(level slog.Level) {
	l.level.Set(level)
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// FromControllerLevel maps a controller numeric level to an slog level.
// Values between the named levels round down to the nearer, more verbose one.
func FromControllerLevel(n int) (slog.Level, bool) {
	switch {
	case n <= 0:
		return 0, false
	case n < ControllerInfo:
		return slog.LevelDebug, true
	case n < ControllerWarning:
		return slog.LevelInfo, true
	case n < ControllerError:
		return slog.LevelWarn, true
	case n <= 50:
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// ToControllerLevel is the inverse of FromControllerLevel.
func ToControllerLevel(level slog.Level) int {
	switch {
	case level < slog.LevelInfo:
		return ControllerDebug
	case level < slog.LevelWarn:
		return ControllerInfo
	case level < slog.LevelError:
		return ControllerWarning
	default:
		return ControllerError
	}
}

// Default creates a default logger for use before configuration is loaded.
//
// This logger outputs to stdout in JSON format at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
