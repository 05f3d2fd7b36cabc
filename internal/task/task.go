// Package task implements the spec's Task Manager component: a Task value
// with dependency wiring, the `&&` sequencing combinator, sequential
// execution over the dependency tree, and parallel execution handed off to
// the Distributor. It is grounded on the teacher's internal/component
// (dependency declaration, acyclic-graph invariant) and internal/dag
// (topological ordering) built in C3, generalized from an
// infrastructure-unit graph to a named build action graph.
package task

import (
	"context"
	"fmt"
	"runtime"

	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/buildutil"
	"github.com/foundryhq/foundry/internal/dag"
	"github.com/foundryhq/foundry/internal/distributor"
)

// Action is the closure a task runs. It returns an error on failure, nil on
// success; there is no other return value, matching the spec's "optional
// error string" action shape.
type Action func(ctx context.Context, log buildlog.Logger) error

// Task is the spec's Task quintuple: description, ordered dependencies,
// interactive flag, action, and a name bound when the task is registered
// with a project (see internal/project).
type Task struct {
	name        string
	description string
	deps        []*Task
	interactive bool
	action      Action
}

// New creates a named task with the given action. A nil action is valid:
// it behaves as a no-op used purely to aggregate dependencies.
func New(name string, action Action) *Task {
	if action == nil {
		action = func(context.Context, buildlog.Logger) error { return nil }
	}
	return &Task{name: name, action: action}
}

// ID satisfies dag.Node so a Task can sit directly in a dag.Graph.
func (t *Task) ID() string { return t.name }

// Name returns the task's registered name.
func (t *Task) Name() string { return t.name }

// Interactive reports whether this task is the tip-of-build singleton
// action described in spec.md §4.5.
func (t *Task) Interactive() bool { return t.interactive }

// Dependencies returns t's direct dependencies, in declared order.
func (t *Task) Dependencies() []*Task { return append([]*Task(nil), t.deps...) }

// DescribedAs sets t's human-readable description and returns t for
// chaining, mirroring the spec's fluent `describedAs` builder method.
func (t *Task) DescribedAs(text string) *Task {
	t.description = text
	return t
}

// Description returns t's description, or "" if none was set.
func (t *Task) Description() string { return t.description }

// Interactively marks t as the build's tip-of-run singleton action: when
// invoked on a multi-project tree, only the current project's own action
// runs, though its dependencies still run everywhere.
func (t *Task) Interactively() *Task {
	t.interactive = true
	return t
}

// DependsOn appends deps to t's dependency list. It rejects a nil
// dependency or one that is itself interactive, per spec.md §4.5.
func (t *Task) DependsOn(deps ...*Task) (*Task, error) {
	for _, d := range deps {
		if d == nil {
			return t, buildutil.New(buildutil.KindSetup, "task %q: nil dependency", t.name)
		}
		if d.interactive {
			return t, buildutil.New(buildutil.KindSetup, "task %q: dependency %q is interactive", t.name, d.name)
		}
	}
	t.deps = append(t.deps, deps...)
	return t, nil
}

// And composes t and other into a new unnamed task: its dependency list is
// the concatenation of both, it is interactive iff either operand is, and
// its action runs t's action, then — only if that succeeded — other's
// action.
func (t *Task) And(other *Task) *Task {
	combined := &Task{
		name:        t.name + "&&" + other.name,
		interactive: t.interactive || other.interactive,
		deps:        append(append([]*Task(nil), t.deps...), other.deps...),
	}
	combined.action = func(ctx context.Context, log buildlog.Logger) error {
		if err := t.action(ctx, log); err != nil {
			return err
		}
		return other.action(ctx, log)
	}
	return combined
}

// flatten returns every task reachable from t (t included), deduplicated by
// name, in a dag.Graph ready for topological ordering.
func flatten(t *Task) (*dag.Graph[*Task], error) {
	g := dag.NewGraph[*Task]()
	seen := make(map[string]*Task)
	var visit func(n *Task) error
	visit = func(n *Task) error {
		if _, ok := seen[n.name]; ok {
			return nil
		}
		seen[n.name] = n
		g.AddNode(n)
		for _, d := range n.deps {
			if err := visit(d); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(t); err != nil {
		return nil, err
	}
	for _, n := range seen {
		for _, d := range n.deps {
			if err := g.AddDependency(n, d); err != nil {
				return nil, err
			}
		}
	}
	if err := g.CycleCheck(); err != nil {
		return nil, buildutil.Wrap(buildutil.KindSetup, err, "task %q", t.name)
	}
	return g, nil
}

// Run executes t and every transitive dependency sequentially: the
// dependency tree is topologically sorted and each action invoked in
// order, short-circuiting on the first error.
func Run(ctx context.Context, t *Task, log buildlog.Logger) error {
	g, err := flatten(t)
	if err != nil {
		return err
	}
	ordered, err := g.Sort()
	if err != nil {
		return err
	}
	for _, n := range ordered {
		if err := n.action(ctx, log); err != nil {
			return buildutil.Wrap(buildutil.KindCompile, err, "task %q", n.name)
		}
	}
	return nil
}

// RunParallel executes t and its transitive dependencies across every
// participating project's tasks using the Distributor, respecting
// dependency order but letting independent tasks overlap. workers defaults
// to runtime.NumCPU() when <= 0. If t is interactive, its own action is
// suppressed on every node except current (identified by name); its
// dependencies still run everywhere that reaches this call.
func RunParallel(ctx context.Context, tasks []*Task, current string, workers int, logs *buildlog.Buffered) ([]distributor.Outcome, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g := dag.NewGraph[*Task]()
	byName := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		g.AddNode(t)
		byName[t.name] = t
	}
	for _, t := range tasks {
		for _, d := range t.deps {
			if _, ok := byName[d.name]; !ok {
				g.AddNode(d)
				byName[d.name] = d
			}
			if err := g.AddDependency(t, d); err != nil {
				return nil, err
			}
		}
	}
	if err := g.CycleCheck(); err != nil {
		return nil, buildutil.Wrap(buildutil.KindSetup, err, "parallel task graph")
	}

	sched := dag.NewScheduler(g)
	return distributor.Run(ctx, sched, workers, logs, func(ctx context.Context, t *Task, log buildlog.Logger) error {
		if t.interactive && t.name != current {
			return nil
		}
		return t.action(ctx, log)
	})
}

func (t *Task) String() string {
	return fmt.Sprintf("task(%s)", t.name)
}
