package depmgr

import "github.com/foundryhq/foundry/internal/buildlog"

// severity is the resolver library's five-level scale (debug, verbose,
// info, warn, error) that the façade must translate onto buildlog's
// four levels.
type severity int

const (
	sevDebug severity = iota
	sevVerbose
	sevInfo
	sevWarn
	sevError
)

// logAdapter collapses the resolver library's five severities onto the
// four buildlog.Level values, per spec.md §4.8: "debug+verbose -> debug".
type logAdapter struct {
	log buildlog.Logger
}

func newLogAdapter(log buildlog.Logger) *logAdapter {
	return &logAdapter{log: log}
}

func (a *logAdapter) emit(sev severity, msg string, args ...any) {
	switch sev {
	case sevDebug, sevVerbose:
		a.log.Log(buildlog.LevelDebug, msg, args...)
	case sevInfo:
		a.log.Log(buildlog.LevelInfo, msg, args...)
	case sevWarn:
		a.log.Log(buildlog.LevelWarn, msg, args...)
	case sevError:
		a.log.Log(buildlog.LevelError, msg, args...)
	}
}
