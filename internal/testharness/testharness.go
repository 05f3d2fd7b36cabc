// Package testharness implements the spec's Test Harness component
// (spec.md §4.10): it discovers tests from an analysis.Store, groups them
// by the TestFramework whose (superClassName, isModule) fingerprint
// matches, dispatches each group to a pluggable Adapter, and aggregates
// the verdicts. It is grounded on the teacher's external-process
// invocation pattern for the same "run this binary, collect pass/fail"
// shape its test-related commands use, generalized from invoking
// terraform/tofu to invoking a project's own test classes.
package testharness

import (
	"context"
	"sort"

	"github.com/foundryhq/foundry/internal/analysis"
	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/buildutil"
)

// Verdict is one test class's outcome.
type Verdict int

const (
	Passed Verdict = iota
	Failed
	Error
)

func (v Verdict) String() string {
	switch v {
	case Passed:
		return "passed"
	case Failed:
		return "failed"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Framework is the spec's TestFramework descriptor: a name, the fully
// qualified super-class whose subclasses are tests, and whether those
// subclasses must be singleton "module" declarations.
type Framework struct {
	Name           string
	SuperClassName string
	RequiresModule bool
}

// fingerprint is the (superClassName, isModule) pair discovery groups by.
func (f Framework) fingerprint() fingerprintKey {
	return fingerprintKey{super: f.SuperClassName, module: f.RequiresModule}
}

type fingerprintKey struct {
	super  string
	module bool
}

// Adapter runs one framework's tests in an isolated namespace (spec.md
// §4.10 "Isolation": loaded in a child namespace that does not leak the
// framework's types into the tool). Foundry's isolation is a subprocess
// boundary (see internal/bootstrap for the same "run_in_separate_process"
// contract used by the launcher); Adapter is the façade over that
// subprocess for one framework.
type Adapter interface {
	RunTest(ctx context.Context, className string) (Verdict, error)
}

// Listener receives the lifecycle callbacks spec.md §4.10 describes.
// Listener methods must never panic the run; Harness recovers and logs
// instead (see Run's deferred recover per listener call).
type Listener interface {
	DoInit()
	StartGroup(framework string, classes []string)
	TestEvent(framework, className string, v Verdict)
	EndGroup(framework string)
	DoComplete(overall Verdict)
}

// GroupResult is one framework's aggregated outcome.
type GroupResult struct {
	Framework string
	Classes   map[string]Verdict
	Overall   Verdict
}

// Discover reads every TestDefinition out of store and groups class names
// by the Framework whose fingerprint matches (spec.md §4.10 "Discovery").
func Discover(store *analysis.Store, frameworks []Framework) map[string][]string {
	byFingerprint := make(map[fingerprintKey]Framework, len(frameworks))
	for _, f := range frameworks {
		byFingerprint[f.fingerprint()] = f
	}

	grouped := make(map[string][]string)
	for _, src := range store.Sources() {
		for _, def := range store.Tests(src) {
			key := fingerprintKey{super: def.SuperClassName, module: def.Kind == "module"}
			fw, ok := byFingerprint[key]
			if !ok {
				continue
			}
			grouped[fw.Name] = append(grouped[fw.Name], def.ClassName)
		}
	}
	for name := range grouped {
		sort.Strings(grouped[name])
	}
	return grouped
}

// Run executes every framework with a non-empty test group (spec.md
// §4.10 "Execution"): logs a header, asks adapters[fw.Name] for each
// class's verdict, and aggregates Error > Failed > Passed across both the
// group and the whole run. If adapters has no entry for a framework with
// discovered tests, that framework's classes are reported as errors
// rather than silently skipped.
func Run(ctx context.Context, grouped map[string][]string, adapters map[string]Adapter, listeners []Listener, log buildlog.Logger) (GroupResult, error) {
	notify := func(fn func(Listener)) {
		for _, l := range listeners {
			safeCall(fn, l, log)
		}
	}

	if len(grouped) == 0 {
		if log != nil {
			log.Success("No tests to run")
		}
		return GroupResult{Overall: Passed}, nil
	}

	notify(func(l Listener) { l.DoInit() })

	overall := GroupResult{Classes: make(map[string]Verdict)}
	overall.Overall = Passed

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		classes := grouped[name]
		if len(classes) == 0 {
			continue
		}
		if log != nil {
			log.Log(buildlog.LevelInfo, "running %d test(s) under %s", len(classes), name)
		}
		notify(func(l Listener) { l.StartGroup(name, classes) })

		groupOverall := Passed
		adapter, hasAdapter := adapters[name]
		for _, className := range classes {
			var (
				v   Verdict
				err error
			)
			if !hasAdapter {
				v, err = Error, buildutil.New(buildutil.KindTestError, "no adapter registered for framework %q", name)
			} else {
				v, err = adapter.RunTest(ctx, className)
				if err != nil && v == Passed {
					v = Error
				}
			}
			overall.Classes[className] = v
			notify(func(l Listener) { l.TestEvent(name, className, v) })
			groupOverall = worse(groupOverall, v)
		}
		notify(func(l Listener) { l.EndGroup(name) })
		overall.Overall = worse(overall.Overall, groupOverall)
	}

	notify(func(l Listener) { l.DoComplete(overall.Overall) })

	switch overall.Overall {
	case Error:
		return overall, buildutil.New(buildutil.KindTestError, "one or more tests errored")
	case Failed:
		return overall, buildutil.New(buildutil.KindTestFailure, "one or more tests failed")
	default:
		return overall, nil
	}
}

// worse returns the more severe of a, b under Passed < Failed < Error.
func worse(a, b Verdict) Verdict {
	if a > b {
		return a
	}
	return b
}

// safeCall invokes fn(l), recovering any panic and logging it at error
// level through log (when non-nil) so a misbehaving listener never aborts
// the run.
func safeCall(fn func(Listener), l Listener, log buildlog.Logger) {
	defer func() {
		if r := recover(); r != nil && log != nil {
			log.Log(buildlog.LevelError, "test listener panicked: %v", r)
		}
	}()
	fn(l)
}
