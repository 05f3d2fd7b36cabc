package buildlog

import "sync"

// eventKind tags a buffered call so Buffered can replay it against the exact
// Logger method that produced it.
type eventKind int

const (
	eventLog eventKind = iota
	eventTrace
	eventSuccess
	eventSetLevel
	eventSetTrace
)

type event struct {
	kind  eventKind
	level Level
	msg   string
	args  []any
	err   error
	b     bool
}

// workerBuffer accumulates events for a single worker's current unit of
// work. Nothing is emitted until play() is called.
type workerBuffer struct {
	mu     sync.Mutex
	events []event
}

func (w *workerBuffer) append(e event) {
	w.mu.Lock()
	w.events = append(w.events, e)
	w.mu.Unlock()
}

func (w *workerBuffer) drain() []event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.events
	w.events = nil
	return out
}

// Buffered is a Logger that records every call under a worker key instead of
// emitting it, so that concurrent workers' output never interleaves. Each
// worker's buffer replays, in submission order, through a single shared
// delegate serialized by a mutex — the delegate-serialized variant the
// scheduler's design notes call for, as opposed to one goroutine per worker.
type Buffered struct {
	delegate Logger
	mu       sync.Mutex // serializes delegate access during play()
	buffers  sync.Map   // worker key (any) -> *workerBuffer
}

// NewBuffered wraps delegate so that output routed through a given worker
// key can be buffered and replayed independently of other workers.
func NewBuffered(delegate Logger) *Buffered {
	return &Buffered{delegate: delegate}
}

// For returns a Logger view scoped to a single worker key. Calls through it
// are buffered until Play(key) replays them or Clear/ClearAll discards them.
func (b *Buffered) For(key any) Logger {
	return &workerLogger{parent: b, key: key, level: b.delegate.GetLevel(), trace: b.delegate.TraceEnabled()}
}

func (b *Buffered) bufferFor(key any) *workerBuffer {
	v, _ := b.buffers.LoadOrStore(key, &workerBuffer{})
	return v.(*workerBuffer)
}

// Play replays and discards the buffered events for key, in order, against
// the delegate.
func (b *Buffered) Play(key any) {
	buf := b.bufferFor(key)
	events := buf.drain()
	if len(events) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range events {
		replay(b.delegate, e)
	}
}

// Clear discards key's buffered events without emitting them.
func (b *Buffered) Clear(key any) {
	b.bufferFor(key).drain()
}

// ClearAll discards every worker's buffered events without emitting them, so
// a failed or cancelled build leaves no stray output behind.
func (b *Buffered) ClearAll() {
	b.buffers.Range(func(key, value any) bool {
		value.(*workerBuffer).drain()
		return true
	})
}

func replay(delegate Logger, e event) {
	switch e.kind {
	case eventLog:
		delegate.Log(e.level, e.msg, e.args...)
	case eventTrace:
		delegate.Trace(e.err)
	case eventSuccess:
		delegate.Success(e.msg, e.args...)
	case eventSetLevel:
		delegate.SetLevel(e.level)
	case eventSetTrace:
		delegate.EnableTrace(e.b)
	}
}

// workerLogger is the Logger handed out by Buffered.For; every call appends
// an event to its worker's buffer instead of touching the delegate.
type workerLogger struct {
	parent *Buffered
	key    any
	level  Level
	trace  bool
}

func (w *workerLogger) SetLevel(l Level) {
	w.level = l
	w.parent.bufferFor(w.key).append(event{kind: eventSetLevel, level: l})
}

func (w *workerLogger) GetLevel() Level { return w.level }

func (w *workerLogger) EnableTrace(b bool) {
	w.trace = b
	w.parent.bufferFor(w.key).append(event{kind: eventSetTrace, b: b})
}

func (w *workerLogger) TraceEnabled() bool { return w.trace }

func (w *workerLogger) Log(level Level, msg string, args ...any) {
	if !level.enabled(w.level) {
		return
	}
	w.parent.bufferFor(w.key).append(event{kind: eventLog, level: level, msg: msg, args: args})
}

func (w *workerLogger) Trace(err error) {
	if err == nil || !w.trace {
		return
	}
	w.parent.bufferFor(w.key).append(event{kind: eventTrace, err: err})
}

func (w *workerLogger) Success(msg string, args ...any) {
	if !LevelSuccess.enabled(w.level) {
		return
	}
	w.parent.bufferFor(w.key).append(event{kind: eventSuccess, msg: msg, args: args})
}

func (w *workerLogger) AtLevel(level Level) Logger {
	return &workerLogger{parent: w.parent, key: w.key, level: level, trace: w.trace}
}
