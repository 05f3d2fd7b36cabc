package distributor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/dag"
	"github.com/foundryhq/foundry/internal/distributor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node string

func (n node) ID() string { return string(n) }

func TestAllNodesCompleteWithoutErrors(t *testing.T) {
	t.Parallel()

	g := dag.NewGraph[node]()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		g.AddNode(node(n))
	}

	var counter int32
	outcomes, err := distributor.Run(context.Background(), dag.NewScheduler(g), 3, nil,
		func(ctx context.Context, n node, log buildlog.Logger) error {
			atomic.AddInt32(&counter, 1)
			return nil
		})

	require.NoError(t, err)
	assert.Len(t, outcomes, 5)
	assert.EqualValues(t, 5, counter)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
		assert.False(t, o.Skipped)
	}
}

func TestFailedNodeSkipsDependents(t *testing.T) {
	t.Parallel()

	g := dag.NewGraph[node]()
	a, b, c := node("a"), node("b"), node("c")
	g.AddNode(a)
	g.AddNode(b)
	g.AddNode(c)
	require.NoError(t, g.AddDependency(b, a))
	require.NoError(t, g.AddDependency(c, b))

	outcomes, err := distributor.Run(context.Background(), dag.NewScheduler(g), 2, nil,
		func(ctx context.Context, n node, log buildlog.Logger) error {
			if n == a {
				return errors.New("boom")
			}
			t.Fatalf("node %s should have been skipped", n)
			return nil
		})

	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	byID := make(map[string]distributor.Outcome, len(outcomes))
	for _, o := range outcomes {
		byID[o.ID] = o
	}
	assert.Error(t, byID["a"].Err)
	assert.True(t, byID["b"].Skipped)
	assert.True(t, byID["c"].Skipped)
}

func TestBufferedLoggingReplaysPerWorker(t *testing.T) {
	t.Parallel()

	g := dag.NewGraph[node]()
	g.AddNode(node("a"))
	g.AddNode(node("b"))

	recorder := &recordingLogger{}
	logs := buildlog.NewBuffered(recorder)

	_, err := distributor.Run(context.Background(), dag.NewScheduler(g), 2, logs,
		func(ctx context.Context, n node, log buildlog.Logger) error {
			log.Log(buildlog.LevelInfo, string(n)+"-line1")
			log.Success(string(n) + "-done")
			return nil
		})
	require.NoError(t, err)

	assert.Len(t, recorder.messages, 4)
}

// TestCompletingNodeBackfillsImmediately exercises spec.md §4.4's streaming
// refill rule on a DAG two levels deep: l1 (fast) unlocks m1, l2 (slow)
// unlocks m2, and both leaves are ready at the start with only two workers.
// A bulk-synchronous pool would wait for l1 *and* l2 to finish before
// considering m1 ready to dispatch, since both were pulled in the same
// initial batch; a streaming pool backfills m1 into the slot l1 frees as
// soon as l1 completes, without waiting on l2.
func TestCompletingNodeBackfillsImmediately(t *testing.T) {
	t.Parallel()

	g := dag.NewGraph[node]()
	l1, l2, m1, m2 := node("l1"), node("l2"), node("m1"), node("m2")
	g.AddNode(l1)
	g.AddNode(l2)
	g.AddNode(m1)
	g.AddNode(m2)
	require.NoError(t, g.AddDependency(m1, l1))
	require.NoError(t, g.AddDependency(m2, l2))

	var mu sync.Mutex
	starts := make(map[string]time.Time)
	ends := make(map[string]time.Time)

	outcomes, err := distributor.Run(context.Background(), dag.NewScheduler(g), 2, nil,
		func(ctx context.Context, n node, log buildlog.Logger) error {
			mu.Lock()
			starts[string(n)] = time.Now()
			mu.Unlock()

			switch n {
			case l1:
				time.Sleep(20 * time.Millisecond)
			case l2:
				time.Sleep(200 * time.Millisecond)
			}

			mu.Lock()
			ends[string(n)] = time.Now()
			mu.Unlock()
			return nil
		})

	require.NoError(t, err)
	assert.Len(t, outcomes, 4)

	mu.Lock()
	defer mu.Unlock()
	require.Contains(t, starts, "m1")
	require.Contains(t, ends, "l2")
	assert.True(t, starts["m1"].Before(ends["l2"]),
		"m1 must start while l2 is still running, not after l2's dispatch batch drains")
}

type recordingLogger struct {
	level    buildlog.Level
	trace    bool
	messages []string
}

func (r *recordingLogger) SetLevel(l buildlog.Level) { r.level = l }
func (r *recordingLogger) GetLevel() buildlog.Level  { return r.level }
func (r *recordingLogger) EnableTrace(b bool)        { r.trace = b }
func (r *recordingLogger) TraceEnabled() bool        { return r.trace }
func (r *recordingLogger) Log(level buildlog.Level, msg string, args ...any) {
	r.messages = append(r.messages, msg)
}
func (r *recordingLogger) Trace(err error) {}
func (r *recordingLogger) Success(msg string, args ...any) {
	r.messages = append(r.messages, msg)
}
func (r *recordingLogger) AtLevel(level buildlog.Level) buildlog.Logger {
	return &recordingLogger{level: level, trace: r.trace}
}
