// Package util provides the shared logger and media counters.
package util

import (
	"fmt"
	"sync/atomic"

	"github.com/pterm/pterm"
)

var debugEnabled atomic.Bool

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm's default logger (stderr).

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

// LogSuccess is LogInfo with a check mark, used for milestones the user waits on.
func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info("✓ " + fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	debugEnabled.Store(true)
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// DebugEnabled reports whether EnableDebug has been called.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// Scoped prefixes every message with "[scope]". Components that log a lot
// (the engine adapter, the pion bridge) hold one instead of calling LogX.
type Scoped struct {
	scope string
}

// Scope returns a logger that prefixes messages with the given scope.
func Scope(scope string) Scoped {
	return Scoped{scope: scope}
}

func (s Scoped) prefix(format string) string {
	return "[" + s.scope + "] " + format
}

func (s Scoped) Debugf(format string, args ...interface{}) { LogDebug(s.prefix(format), args...) }
func (s Scoped) Infof(format string, args ...interface{})  { LogInfo(s.prefix(format), args...) }
func (s Scoped) Warnf(format string, args ...interface{})  { LogWarning(s.prefix(format), args...) }
func (s Scoped) Errorf(format string, args ...interface{}) { LogError(s.prefix(format), args...) }
