package engine

import (
	"github.com/pion/logging"

	"github.com/1ureka/facelink/internal/util"
)

// loggerFactory routes pion's internal logs into the pterm logger. pion is
// chatty at info level, so info and debug both land on debug; trace is
// dropped.
type loggerFactory struct{}

func (loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return pionLogger{Scoped: util.Scope("pion/" + scope)}
}

type pionLogger struct {
	util.Scoped
}

var _ logging.LeveledLogger = pionLogger{}

func (pionLogger) Trace(string)                       {}
func (pionLogger) Tracef(string, ...interface{})      {}
func (l pionLogger) Debug(msg string)                 { l.Debugf("%s", msg) }
func (l pionLogger) Info(msg string)                  { l.Debugf("%s", msg) }
func (l pionLogger) Infof(f string, a ...interface{}) { l.Debugf(f, a...) }
func (l pionLogger) Warn(msg string)                  { l.Warnf("%s", msg) }
func (l pionLogger) Error(msg string)                 { l.Errorf("%s", msg) }

// Debugf skips formatting entirely unless debug output is on.
func (l pionLogger) Debugf(f string, a ...interface{}) {
	if util.DebugEnabled() {
		l.Scoped.Debugf(f, a...)
	}
}
