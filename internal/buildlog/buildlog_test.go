package buildlog_test

import (
	"errors"
	"testing"

	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBufferedLogOrdering is the spec's named property for C2: events
// recorded through a worker's buffered view replay in the exact order they
// were issued, and a concurrently-recording second worker's events never
// interleave into the first worker's replay.
func TestBufferedLogOrdering(t *testing.T) {
	recorder := &recordingLogger{level: buildlog.LevelDebug}
	buffered := buildlog.NewBuffered(recorder)

	a := buffered.For("worker-a")
	b := buffered.For("worker-b")

	a.Log(buildlog.LevelInfo, "a1")
	b.Log(buildlog.LevelInfo, "b1")
	a.Log(buildlog.LevelInfo, "a2")
	a.Success("a-done")
	b.Log(buildlog.LevelWarn, "b2")

	buffered.Play("worker-a")
	require.Equal(t, []string{"a1", "a2", "a-done"}, recorder.messages)

	recorder.messages = nil
	buffered.Play("worker-b")
	require.Equal(t, []string{"b1", "b2"}, recorder.messages)
}

func TestBufferedClearDiscardsWithoutEmitting(t *testing.T) {
	recorder := &recordingLogger{level: buildlog.LevelDebug}
	buffered := buildlog.NewBuffered(recorder)

	w := buffered.For("worker-a")
	w.Log(buildlog.LevelInfo, "will be discarded")
	buffered.Clear("worker-a")
	buffered.Play("worker-a")

	assert.Empty(t, recorder.messages)
}

func TestBufferedClearAllCoversEveryWorker(t *testing.T) {
	recorder := &recordingLogger{level: buildlog.LevelDebug}
	buffered := buildlog.NewBuffered(recorder)

	buffered.For("x").Log(buildlog.LevelInfo, "x1")
	buffered.For("y").Log(buildlog.LevelInfo, "y1")
	buffered.ClearAll()

	buffered.Play("x")
	buffered.Play("y")
	assert.Empty(t, recorder.messages)
}

func TestLevelGatesBelowThreshold(t *testing.T) {
	recorder := &recordingLogger{level: buildlog.LevelWarn}
	buffered := buildlog.NewBuffered(recorder)

	w := buffered.For("worker").AtLevel(buildlog.LevelWarn)
	w.Log(buildlog.LevelDebug, "suppressed")
	w.Log(buildlog.LevelInfo, "suppressed")
	w.Log(buildlog.LevelError, "kept")
	buffered.Play("worker")

	assert.Equal(t, []string{"kept"}, recorder.messages)
}

func TestTraceOnlyEmitsWhenEnabled(t *testing.T) {
	recorder := &recordingLogger{level: buildlog.LevelDebug}
	buffered := buildlog.NewBuffered(recorder)

	w := buffered.For("worker")
	w.Trace(errors.New("boom"))
	buffered.Play("worker")
	assert.Empty(t, recorder.traces)

	w2 := buffered.For("worker2")
	w2.EnableTrace(true)
	w2.Trace(errors.New("boom"))
	buffered.Play("worker2")
	require.Len(t, recorder.traces, 1)
}

// recordingLogger is a minimal Logger fake standing in for buildlog.New's
// zerolog-backed delegate so tests assert on ordering without parsing
// console output.
type recordingLogger struct {
	level    buildlog.Level
	trace    bool
	messages []string
	traces   []error
}

func (r *recordingLogger) SetLevel(l buildlog.Level) { r.level = l }
func (r *recordingLogger) GetLevel() buildlog.Level  { return r.level }
func (r *recordingLogger) EnableTrace(b bool)        { r.trace = b }
func (r *recordingLogger) TraceEnabled() bool        { return r.trace }

func (r *recordingLogger) Log(level buildlog.Level, msg string, args ...any) {
	r.messages = append(r.messages, msg)
}

func (r *recordingLogger) Trace(err error) {
	if err == nil || !r.trace {
		return
	}
	r.traces = append(r.traces, err)
}

func (r *recordingLogger) Success(msg string, args ...any) {
	r.messages = append(r.messages, msg)
}

func (r *recordingLogger) AtLevel(level buildlog.Level) buildlog.Logger {
	return &recordingLogger{level: level, trace: r.trace}
}
