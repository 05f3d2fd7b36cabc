// Package project implements the spec's Project Model component: a
// Project owning a task map, sub-project map, library-dependency set,
// resolver set, and configuration set, all populated by explicit
// registration through a Builder rather than the original's reflective
// member-value scan (spec.md §9's Open Question, resolved in DESIGN.md).
// It also implements action dispatch (spec.md §4.9 "act") across a
// multi-project tree, including output-directory collision checking and
// the save-environment wrapper around every action.
package project

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/buildutil"
	"github.com/foundryhq/foundry/internal/dag"
	"github.com/foundryhq/foundry/internal/depmgr"
	"github.com/foundryhq/foundry/internal/distributor"
	"github.com/foundryhq/foundry/internal/task"
)

// Info is the spec's ProjectInfo: directory, declared dependency projects,
// and an optional parent (for property inheritance).
type Info struct {
	Directory string
	DependsOn []*Project
	Parent    *Project
}

// Project is the runtime entity produced by loading a project-definition
// module: it owns tasks, sub-projects, library dependencies, resolvers,
// configurations, and a property store.
type Project struct {
	info  Info
	name  string
	props *PropertyStore

	tasks         map[string]*task.Task
	subProjects   map[string]*Project
	dependencies  []depmgr.ModuleID
	resolvers     []depmgr.Resolver
	configs       []depmgr.Configuration
	outputDirs    []string
	allowDirClash bool

	order []*Project // lazily computed, memoized by Order()
}

// ID satisfies dag.Node so projects can be topologically sorted with the
// same generic graph used for tasks.
func (p *Project) ID() string { return p.info.Directory }

// Name returns the project's required project.name property.
func (p *Project) Name() string { return p.name }

// Directory returns the project's root directory.
func (p *Project) Directory() string { return p.info.Directory }

// Properties returns the project's property store.
func (p *Project) Properties() *PropertyStore { return p.props }

// AddDependency appends dep to this project's dependency list. It is the
// Project-level counterpart of passing Info.DependsOn at construction,
// used when a dependency is only known after the project is built (e.g. a
// test fixture, or a sub-project discovered while loading the tree).
func (p *Project) AddDependency(dep *Project) {
	p.info.DependsOn = append(p.info.DependsOn, dep)
	p.order = nil
}

// RegisterTask is the Project-level equivalent of Builder.Task, exposed so
// tasks can be added after Build() (e.g. by a loader that discovers
// sub-project task wiring incrementally).
func (p *Project) RegisterTask(name string, t *task.Task) {
	p.tasks[Kebab(name)] = t
}

// RegisterOutputDirectory is the Project-level equivalent of
// Builder.OutputDirectory.
func (p *Project) RegisterOutputDirectory(dir string) {
	p.outputDirs = append(p.outputDirs, dir)
}

// Task looks up a registered task by its (already kebab-cased) name.
func (p *Project) Task(name string) (*task.Task, bool) {
	t, ok := p.tasks[name]
	return t, ok
}

// Tasks returns every task name registered on this project.
func (p *Project) Tasks() []string {
	names := make([]string, 0, len(p.tasks))
	for n := range p.tasks {
		names = append(names, n)
	}
	return names
}

// SubProjects returns this project's direct sub-projects by name.
func (p *Project) SubProjects() map[string]*Project { return p.subProjects }

// Dependencies returns the library dependencies registered on this project.
func (p *Project) Dependencies() []depmgr.ModuleID { return p.dependencies }

// Resolvers returns the resolvers registered on this project.
func (p *Project) Resolvers() []depmgr.Resolver { return p.resolvers }

// Configurations returns the configurations registered on this project.
func (p *Project) Configurations() []depmgr.Configuration { return p.configs }

// Order returns the topologically sorted list of this project plus every
// transitive dependency project (spec.md §3's "lazily computed ordered
// list"), memoized after first call.
func (p *Project) Order() ([]*Project, error) {
	if p.order != nil {
		return p.order, nil
	}
	g := dag.NewGraph[*Project]()
	var visit func(n *Project) error
	visited := make(map[string]bool)
	visit = func(n *Project) error {
		if visited[n.ID()] {
			return nil
		}
		visited[n.ID()] = true
		g.AddNode(n)
		for _, d := range n.info.DependsOn {
			if err := visit(d); err != nil {
				return err
			}
			if err := g.AddDependency(n, d); err != nil {
				return err
			}
		}
		return nil
	}
	if err := visit(p); err != nil {
		return nil, err
	}
	if err := g.CycleCheck(); err != nil {
		return nil, buildutil.Wrap(buildutil.KindSetup, err, "project %s", p.name)
	}
	ordered, err := g.Sort()
	if err != nil {
		return nil, err
	}
	p.order = ordered
	return p.order, nil
}

// Kebab translates a camelCase Go identifier into the spec's hyphenated
// task-name convention (spec.md §4.9): "testCompile" -> "test-compile".
func Kebab(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// checkOutputDirectories walks every project in order and rejects the
// build if two projects claim the same output directory, unless either
// project sets allowDirClash (spec.md §4.9's "Output-directory safety").
func checkOutputDirectories(projects []*Project) error {
	claimed := make(map[string]*Project)
	for _, p := range projects {
		for _, dir := range p.outputDirs {
			if other, ok := claimed[dir]; ok && other != p {
				if p.allowDirClash || other.allowDirClash {
					continue
				}
				return buildutil.New(buildutil.KindSetup, "projects %q and %q both claim output directory %q", other.name, p.name, dir)
			}
			claimed[dir] = p
		}
	}
	return nil
}

// Act is the spec's action dispatch (spec.md §4.9 "act"): compute the
// topological project order, run the named task on every project that
// defines it (in parallel when parallel>0 and more than one project
// participates, else sequentially), and persist every touched project's
// properties on both the success and error paths.
func Act(ctx context.Context, root *Project, name string, parallel int, logs *buildlog.Buffered, log buildlog.Logger) (err error) {
	projects, err := root.Order()
	if err != nil {
		return err
	}
	if err := checkOutputDirectories(projects); err != nil {
		return err
	}

	participating := make([]*Project, 0, len(projects))
	for _, p := range projects {
		if _, ok := p.tasks[name]; ok {
			participating = append(participating, p)
		}
	}

	defer func() {
		for _, p := range projects {
			if saveErr := p.props.Save(); saveErr != nil && err == nil {
				err = saveErr
			}
		}
	}()

	if len(participating) == 0 {
		return nil
	}

	if parallel > 0 && len(participating) > 1 {
		return actParallel(ctx, participating, name, root, parallel, logs)
	}

	for _, p := range participating {
		t := p.tasks[name]
		if t.Interactive() && p != root {
			// Interactive tasks' dependencies still ran via task.Run below
			// on every project; only the root's own action fires.
			if depErr := runDependenciesOnly(ctx, t, log); depErr != nil {
				return depErr
			}
			continue
		}
		if runErr := task.Run(ctx, t, log); runErr != nil {
			return runErr
		}
	}
	return nil
}

// actParallel runs the named task across every participating project using
// the Distributor, with the project dependency graph (spec.md §3's
// ProjectInfo.dependsOn), not the task's own internal dependency chain, as
// the scheduling graph — so a dependent project's task only starts once
// every project it depends on has finished running the same task
// (spec.md §4.5 scenario 6: P1/P2/P3 run concurrently, a failure in one
// does not block its siblings).
func actParallel(ctx context.Context, participating []*Project, name string, root *Project, workers int, logs *buildlog.Buffered) error {
	g := dag.NewGraph[*Project]()
	for _, p := range participating {
		g.AddNode(p)
	}
	for _, p := range participating {
		for _, dep := range p.info.DependsOn {
			if _, ok := g.Node(dep.ID()); ok {
				if err := g.AddDependency(p, dep); err != nil {
					return err
				}
			}
		}
	}
	if err := g.CycleCheck(); err != nil {
		return buildutil.Wrap(buildutil.KindSetup, err, "parallel project graph")
	}

	sched := dag.NewScheduler(g)
	outcomes, err := distributor.Run(ctx, sched, workers, logs, func(ctx context.Context, p *Project, log buildlog.Logger) error {
		t := p.tasks[name]
		if t.Interactive() && p != root {
			return runDependenciesOnly(ctx, t, log)
		}
		return task.Run(ctx, t, log)
	})
	if err != nil {
		return err
	}
	var failures []string
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", o.ID, o.Err))
		}
	}
	if len(failures) > 0 {
		return buildutil.New(buildutil.KindCompile, "%d project(s) failed: %s", len(failures), strings.Join(failures, "; "))
	}
	return nil
}

// runDependenciesOnly runs everything t transitively depends on, but not
// t's own action — used by Act for an interactive task invoked on a
// non-current project (spec.md §4.5's "the task's own action runs only on
// the current project").
func runDependenciesOnly(ctx context.Context, t *task.Task, log buildlog.Logger) error {
	for _, d := range t.Dependencies() {
		if err := task.Run(ctx, d, log); err != nil {
			return err
		}
	}
	return nil
}

func (p *Project) String() string {
	return fmt.Sprintf("project(%s)", p.name)
}
