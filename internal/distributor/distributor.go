// Package distributor implements the spec's Distributor component: a
// bounded pool of workers draining a dag.Scheduler until every node has run
// or been skipped. It is grounded on the teacher's internal/worker package
// (NewWorkerPool(n)/Submit/Wait/Stop), generalized from a flat task queue
// to a scheduler-driven pull loop so dependency order is respected.
package distributor

import (
	"context"
	"sync"

	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/buildutil"
	"github.com/foundryhq/foundry/internal/dag"
)

// Outcome is what Run returns for one completed node.
type Outcome struct {
	ID      string
	Err     error
	Skipped bool // true if a dependency failed and this node never ran
}

// completion is one worker goroutine's report back to the main loop.
type completion struct {
	id  string
	err error
}

// Run drains sched using up to n concurrently running workers, following
// spec.md §4.4's loop exactly: while running < n and the scheduler has
// pending work, dispatch up to n-running more items; when nothing is ready
// but work is in flight, block on the completion channel and feed the
// result back into sched.Complete before looping again. A node that frees a
// worker slot is immediately eligible to be backfilled with newly-ready
// work — workers are never held idle waiting for the rest of their original
// dispatch batch to finish. exec receives the worker's buffered logger view
// so its output replays in order once the node finishes. Run returns once
// every node has completed or been skipped, or ctx is cancelled.
func Run[T dag.Node](ctx context.Context, sched *dag.Scheduler[T], n int, logs *buildlog.Buffered, exec func(ctx context.Context, node T, log buildlog.Logger) error) ([]Outcome, error) {
	if n < 1 {
		n = 1
	}

	var (
		mu       sync.Mutex
		outcomes []Outcome
		wg       sync.WaitGroup
	)
	completions := make(chan completion)
	running := 0

	dispatch := func(node T) {
		running++
		wg.Add(1)
		go func() {
			defer wg.Done()
			workerKey := node.ID()
			var log buildlog.Logger
			if logs != nil {
				log = logs.For(workerKey)
			}
			err := exec(ctx, node, log)
			if logs != nil {
				logs.Play(workerKey)
			}
			completions <- completion{id: node.ID(), err: err}
		}()
	}

	for {
		if ctx.Err() == nil {
			for running < n {
				batch := sched.Next(n - running)
				if len(batch) == 0 {
					break
				}
				for _, node := range batch {
					dispatch(node)
				}
			}
		}
		if running == 0 {
			break
		}

		comp := <-completions
		running--
		mu.Lock()
		outcomes = append(outcomes, Outcome{ID: comp.id, Err: comp.err})
		mu.Unlock()
		sched.Complete(comp.id, dag.Result{Err: comp.err})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, buildutil.Wrap(buildutil.KindCompile, err, "build cancelled")
	}

	ran := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		ran[o.ID] = true
	}
	for _, id := range sched.FailedIDs() {
		if !ran[id] {
			outcomes = append(outcomes, Outcome{ID: id, Skipped: true})
		}
	}
	return outcomes, nil
}
