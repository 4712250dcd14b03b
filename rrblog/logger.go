// Package rrblog defines the pluggable logging interface used across the
// broker (spec: Worker/Client/Publisher/Subscriber options.logger) and ships
// a default sink built on go.uber.org/zap, matching the teacher repo's
// logging package conventions (package-global logger, sync.Once init).
package rrblog

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is an opaque logical level value. Levels maps the logical names
// used throughout the broker (Error, Warning, Notice, Info, Debug) to
// whatever a given Logger wants them to mean; the default mapping is the
// identity (the logical name itself).
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelNotice  Level = "notice"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// Levels lets a caller override the opaque value associated with each
// logical level. Zero value is the identity mapping.
type Levels struct {
	Error   Level
	Warning Level
	Notice  Level
	Info    Level
	Debug   Level
}

// Resolve fills unset fields with their identity default.
func (l Levels) Resolve() Levels {
	if l.Error == "" {
		l.Error = LevelError
	}
	if l.Warning == "" {
		l.Warning = LevelWarning
	}
	if l.Notice == "" {
		l.Notice = LevelNotice
	}
	if l.Info == "" {
		l.Info = LevelInfo
	}
	if l.Debug == "" {
		l.Debug = LevelDebug
	}
	return l
}

// Logger is the sink every participant logs through. Scope carries
// structured fields (request id, queue name, worker id, ...).
type Logger interface {
	Log(level Level, message string, t time.Time, component, instance string, scope map[string]any)
}

// LoggerFunc adapts a plain function to Logger.
type LoggerFunc func(level Level, message string, t time.Time, component, instance string, scope map[string]any)

func (f LoggerFunc) Log(level Level, message string, t time.Time, component, instance string, scope map[string]any) {
	f(level, message, t, component, instance, scope)
}

var (
	defaultZap *zap.Logger
	once       sync.Once
)

func getDefaultZap() *zap.Logger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.OutputPaths = []string{"stdout"}
		cfg.ErrorOutputPaths = []string{"stderr"}
		l, err := cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Fall back to zap.NewExample() should Build ever fail on an
			// unwritable stdout — keeps logging from being a
			// construction-time failure mode for participants.
			l = zap.NewExample()
		}
		defaultZap = l
	})
	return defaultZap
}

// Default returns the broker's default Logger: prints error|warning|notice
// (per spec §6) through zap, silently drops info|debug.
func Default() Logger {
	return LoggerFunc(func(level Level, message string, t time.Time, component, instance string, scope map[string]any) {
		switch level {
		case LevelError, LevelWarning, LevelNotice:
		default:
			return
		}

		fields := make([]zap.Field, 0, len(scope)+3)
		fields = append(fields,
			zap.Time("time", t),
			zap.String("component", component),
			zap.String("instance", instance),
		)
		for k, v := range scope {
			fields = append(fields, zap.Any(k, v))
		}

		z := getDefaultZap()
		switch level {
		case LevelError:
			z.Error(message, fields...)
		case LevelWarning:
			z.Warn(message, fields...)
		case LevelNotice:
			z.Info(message, fields...)
		}
	})
}

// Noop discards every log line. Useful in tests that assert on behavior,
// not log output.
func Noop() Logger {
	return LoggerFunc(func(Level, string, time.Time, string, string, map[string]any) {})
}
