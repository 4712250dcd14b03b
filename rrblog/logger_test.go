package rrblog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLevelsResolveIdentity(t *testing.T) {
	l := Levels{}.Resolve()
	assert.Equal(t, LevelError, l.Error)
	assert.Equal(t, LevelDebug, l.Debug)
}

func TestLevelsResolveKeepsOverride(t *testing.T) {
	l := Levels{Error: "CRIT"}.Resolve()
	assert.Equal(t, Level("CRIT"), l.Error)
	assert.Equal(t, LevelWarning, l.Warning)
}

func TestLoggerFuncInvoked(t *testing.T) {
	var got Level
	var gotMsg string
	lg := LoggerFunc(func(level Level, message string, t time.Time, component, instance string, scope map[string]any) {
		got = level
		gotMsg = message
	})
	lg.Log(LevelWarning, "hello", time.Now(), "worker", "w-1", nil)
	assert.Equal(t, LevelWarning, got)
	assert.Equal(t, "hello", gotMsg)
}

func TestNoopDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Noop().Log(LevelError, "x", time.Now(), "c", "i", map[string]any{"k": "v"})
	})
}

func TestDefaultDoesNotPanic(t *testing.T) {
	// Default logs through the shared zap sink; we only assert it doesn't
	// panic for info, debug and notice, including the two it silently drops.
	d := Default()
	assert.NotPanics(t, func() {
		d.Log(LevelInfo, "info", time.Now(), "c", "i", nil)
		d.Log(LevelDebug, "debug", time.Now(), "c", "i", nil)
		d.Log(LevelNotice, "notice", time.Now(), "c", "i", nil)
	})
}
