package buildlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Logger is the spec's core logging interface: level-gated emission, a
// separate trace channel for exception stack traces, and a success variant
// for the "done" lines a build prints per target.
type Logger interface {
	SetLevel(Level)
	GetLevel() Level
	EnableTrace(bool)
	TraceEnabled() bool
	Log(level Level, msg string, args ...any)
	Trace(err error)
	Success(msg string, args ...any)
	AtLevel(level Level) Logger
}

// stacker is satisfied by *buildutil.Error; Trace renders the stack only
// when the wrapped error captured one.
type stacker interface {
	Stack() string
}

// direct is the non-buffered Logger, a thin adapter over a zerolog.Logger.
// It is what a BufferedLogger eventually replays into.
type direct struct {
	mu     sync.Mutex
	level  atomic.Int32
	trace  atomic.Bool
	zl     zerolog.Logger
	prefix string
}

// New builds a direct Logger writing to w at the given initial level. The
// console writer mirrors zerolog's human-readable format; callers that want
// machine-readable JSON can pass w wired to a plain zerolog.New(w) instead
// and skip this constructor.
func New(w io.Writer, level Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	d := &direct{zl: zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: false}).With().Timestamp().Logger()}
	d.level.Store(int32(level))
	return d
}

func (d *direct) SetLevel(l Level)    { d.level.Store(int32(l)) }
func (d *direct) GetLevel() Level     { return Level(d.level.Load()) }
func (d *direct) EnableTrace(b bool)  { d.trace.Store(b) }
func (d *direct) TraceEnabled() bool  { return d.trace.Load() }

func (d *direct) Log(level Level, msg string, args ...any) {
	if !level.enabled(d.GetLevel()) {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ev := d.eventFor(level)
	if len(args) > 0 {
		msg = sprintf(msg, args...)
	}
	ev.Msg(d.prefix + msg)
}

func (d *direct) eventFor(level Level) *zerolog.Event {
	switch level {
	case LevelDebug:
		return d.zl.Debug()
	case LevelWarn:
		return d.zl.Warn()
	case LevelError:
		return d.zl.Error()
	case LevelSuccess:
		return d.zl.Info().Bool("success", true)
	default:
		return d.zl.Info()
	}
}

func (d *direct) Trace(err error) {
	if err == nil || !d.TraceEnabled() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ev := d.zl.Debug()
	if s, ok := err.(stacker); ok {
		if stack := s.Stack(); stack != "" {
			ev = ev.Str("stack", stack)
		}
	}
	ev.Msg(d.prefix + err.Error())
}

func (d *direct) Success(msg string, args ...any) {
	d.Log(LevelSuccess, msg, args...)
}

// AtLevel returns a logger sharing this one's sink, prefix and trace flag
// but reporting a different threshold.
func (d *direct) AtLevel(level Level) Logger {
	child := &direct{zl: d.zl, prefix: d.prefix}
	child.level.Store(int32(level))
	child.trace.Store(d.trace.Load())
	return child
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
