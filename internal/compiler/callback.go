package compiler

import (
	"sync"

	"github.com/foundryhq/foundry/internal/analysis"
	"github.com/foundryhq/foundry/internal/buildfs"
	"github.com/foundryhq/foundry/internal/buildutil"
)

// Callback is the analysis-callback handle a Compiler uses to report what
// it observed while compiling. Calls are safe for concurrent use since a
// single compiler invocation may process sources on multiple goroutines.
type Callback struct {
	mu           sync.Mutex
	store        *analysis.Store
	root         string
	testSupers   map[string]bool
	bySource     map[string]buildfs.Path
	pendingError error
}

func newCallback(store *analysis.Store, root string, testSuperClasses []string, bySource map[string]buildfs.Path) *Callback {
	supers := make(map[string]bool, len(testSuperClasses))
	for _, s := range testSuperClasses {
		supers[s] = true
	}
	return &Callback{store: store, root: root, testSupers: supers, bySource: bySource}
}

// fail records the first rejection reported by any callback call; later
// calls against a failed Callback become no-ops so one bad report doesn't
// mask the error with a cascade of follow-on ones.
func (c *Callback) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingError == nil {
		c.pendingError = err
	}
}

func (c *Callback) failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingError != nil
}

// requireProjectRelative rejects a source path reported by the compiler
// that does not resolve inside the project root, per spec.md §4.7's
// "Callback-reported paths outside the project root are rejected".
func (c *Callback) requireProjectRelative(src string) bool {
	if _, ok := c.bySource[src]; ok {
		return true
	}
	if _, ok := buildfs.FromAbs(c.root, src); !ok {
		c.fail(buildutil.New(buildutil.KindCompile, "callback reported path outside project root: %s", src))
		return false
	}
	return true
}

// BeginSource marks src as the compiler's current subject.
func (c *Callback) BeginSource(src string) {
	if c.failed() || !c.requireProjectRelative(src) {
		return
	}
	c.store.AddSource(src)
}

// SourceDependency records that fromSrc depends on onSrc within the
// project.
func (c *Callback) SourceDependency(onSrc, fromSrc string) {
	if c.failed() || !c.requireProjectRelative(onSrc) || !c.requireProjectRelative(fromSrc) {
		return
	}
	c.store.AddSourceDependency(fromSrc, onSrc)
}

// ClassDependency records a dependency on a class file outside the output
// directory. onFile is an external, absolute path and is not subject to
// the project-root check (only source paths are).
func (c *Callback) ClassDependency(onFile, fromSrc string) {
	if c.failed() || !c.requireProjectRelative(fromSrc) {
		return
	}
	c.store.AddExternalDependency(onFile, fromSrc)
}

// JarDependency records a dependency on a jar outside the output
// directory.
func (c *Callback) JarDependency(onJar, fromSrc string) {
	c.ClassDependency(onJar, fromSrc)
}

// GeneratedClass records that src produced the artifact at productPath.
func (c *Callback) GeneratedClass(src, productPath string) {
	if c.failed() || !c.requireProjectRelative(src) {
		return
	}
	c.store.AddProduct(src, productPath)
}

// FoundSubclass records a concrete declaration whose supertype matches one
// of the configured test-super-class names, filing it under tests or
// applications according to the superclass.
func (c *Callback) FoundSubclass(src, fullName, superName string, isModule bool) {
	if c.failed() || !c.requireProjectRelative(src) {
		return
	}
	if !c.testSupers[superName] {
		c.store.AddApplication(src, fullName)
		return
	}
	kind := "class"
	if isModule {
		kind = "module"
	}
	c.store.AddTest(src, analysis.TestDefinition{ClassName: fullName, SuperClassName: superName, Kind: kind})
}

// EndSource computes src's content hash and stores it, completing the
// per-source reporting sequence started by BeginSource.
func (c *Callback) EndSource(src string) {
	if c.failed() || !c.requireProjectRelative(src) {
		return
	}
	p, ok := c.bySource[src]
	if !ok {
		c.fail(buildutil.New(buildutil.KindCompile, "endSource for unknown source %q", src))
		return
	}
	data, err := buildfs.ReadBytes(p.AbsPath())
	if err != nil {
		c.fail(err)
		return
	}
	c.store.SetHash(src, data)
}

// finish reports the first error recorded by any callback call, if any.
func (c *Callback) finish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingError
}
