// Package compiler implements the spec's Compile Conditional component:
// it decides which sources are dirty against an analysis.Store, invalidates
// their stale records, invokes an external compiler with an analysis
// callback, and persists the result only on success. It is grounded on the
// teacher's external-tool invocation pattern (cli/commands "run a
// subprocess, surface its exit code as the build result") generalized from
// invoking terraform/tofu to invoking an arbitrary project compiler.
package compiler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/foundryhq/foundry/internal/analysis"
	"github.com/foundryhq/foundry/internal/buildfs"
	"github.com/foundryhq/foundry/internal/buildutil"
)

// Config is the spec's CompileConfiguration.
type Config struct {
	Sources         buildfs.Finder
	Classpath       []string
	OutputDir       string
	AnalysisDir     string
	TestSuperClasses []string
	CompilerOptions []string
	ProjectRoot     string
}

// Compiler is the external collaborator invoked once sources are known to
// be dirty. It receives the dirty sources, classpath, output directory,
// and a Callback used to report what it observed.
type Compiler interface {
	Compile(ctx context.Context, dirty []string, classpath []string, outputDir string, cb *Callback) error
}

// ExecCompiler shells out to an external compiler binary via os/exec,
// writing the dirty-source list to the process's stdin (one path per
// line) and relying on the binary to call back into cb through whatever
// side-channel the concrete compiler's integration actually uses. It
// exists as the default wiring for projects that do not supply their own
// in-process Compiler.
type ExecCompiler struct {
	Bin  string
	Args []string
}

func (e ExecCompiler) Compile(ctx context.Context, dirty []string, classpath []string, outputDir string, cb *Callback) error {
	if len(dirty) == 0 {
		return nil
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create output dir %s", outputDir)
	}
	cmd := exec.CommandContext(ctx, e.Bin, e.Args...)
	cmd.Dir = outputDir
	cmd.Env = append(os.Environ(), "FOUNDRY_CLASSPATH="+joinPath(classpath))
	cmd.Stdin = strings.NewReader(strings.Join(dirty, "\n") + "\n")
	if err := cmd.Run(); err != nil {
		return buildutil.Wrap(buildutil.KindCompile, err, "compiler %s", e.Bin)
	}
	return nil
}

func joinPath(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += string(os.PathListSeparator)
		}
		out += p
	}
	return out
}

// Run executes the spec's decision algorithm: discover dirty sources,
// invalidate their stale records, invoke compiler, and persist the
// analysis only if compiler succeeds.
func Run(ctx context.Context, cfg Config, store *analysis.Store, compiler Compiler) error {
	allSources, err := cfg.Sources.Get()
	if err != nil {
		return err
	}
	bySource := make(map[string]buildfs.Path, len(allSources))
	for _, p := range allSources {
		bySource[p.ProjectRelPath()] = p
	}

	dirty, err := discoverDirty(store, allSources, bySource)
	if err != nil {
		return err
	}
	if len(dirty) == 0 {
		return nil
	}

	for _, src := range dirty {
		if err := invalidate(store, src); err != nil {
			return err
		}
	}

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return buildutil.Wrap(buildutil.KindIO, err, "create output dir %s", cfg.OutputDir)
		}
	}
	cb := newCallback(store, cfg.ProjectRoot, cfg.TestSuperClasses, bySource)
	if err := compiler.Compile(ctx, dirty, cfg.Classpath, cfg.OutputDir, cb); err != nil {
		return buildutil.Wrap(buildutil.KindCompile, err, "compile")
	}
	if err := cb.finish(); err != nil {
		return err
	}

	if err := store.Save(); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "persist analysis")
	}
	return nil
}

// discoverDirty computes the fixed-point closure of sources considered
// dirty per spec.md §4.7 step 1.
func discoverDirty(store *analysis.Store, allSources []buildfs.Path, bySource map[string]buildfs.Path) ([]string, error) {
	dirty := make(map[string]bool)

	markDirty := func(rel string) {
		dirty[rel] = true
	}

	for _, p := range allSources {
		rel := p.ProjectRelPath()
		if !store.HasSource(rel) {
			markDirty(rel)
			continue
		}
		data, err := buildfs.ReadBytes(p.AbsPath())
		if err != nil {
			return nil, err
		}
		sum := sha1.Sum(data)
		stored, ok := store.Hash(rel)
		if !ok || stored != hex.EncodeToString(sum[:]) {
			markDirty(rel)
			continue
		}
		products := store.Products(rel)
		oldestProduct, anyMissing := oldestModTime(products)
		if anyMissing {
			markDirty(rel)
			continue
		}
		for _, extFile := range storeExternalsFor(store, rel) {
			info, statErr := os.Stat(extFile)
			if statErr != nil {
				markDirty(rel)
				break
			}
			if oldestProduct != nil && info.ModTime().After(*oldestProduct) {
				markDirty(rel)
				break
			}
		}
	}

	// Fixed-point expansion: anything depending on a dirty source is dirty.
	changed := true
	for changed {
		changed = false
		for _, p := range allSources {
			rel := p.ProjectRelPath()
			if dirty[rel] {
				continue
			}
			for _, dep := range store.Dependencies(rel) {
				if dirty[dep] {
					markDirty(rel)
					changed = true
					break
				}
			}
		}
	}

	out := make([]string, 0, len(dirty))
	for rel := range dirty {
		out = append(out, rel)
	}
	return out, nil
}

// storeExternalsFor returns every external file this source depends on, by
// scanning the reverse-indexed externalDependencies map for rel's presence
// — the store only exposes the reverse direction (external -> dependents),
// so this walks every tracked external file.
func storeExternalsFor(store *analysis.Store, rel string) []string {
	var out []string
	for _, ext := range store.ExternalFiles() {
		for _, dependent := range store.ExternalDependents(ext) {
			if dependent == rel {
				out = append(out, ext)
				break
			}
		}
	}
	return out
}

func oldestModTime(products []string) (oldest *time.Time, anyMissing bool) {
	for _, p := range products {
		info, err := os.Stat(p)
		if err != nil {
			return nil, true
		}
		mt := info.ModTime()
		if oldest == nil || mt.Before(*oldest) {
			oldest = &mt
		}
	}
	return oldest, false
}

// invalidate implements spec.md §4.7 step 3: clear the dirty source's
// stale products/deps/hash, plus any external-dependency reverse-links
// keyed by one of its own products (another source's classpath entry may
// point at a product this source is about to regenerate or delete).
func invalidate(store *analysis.Store, source string) error {
	products := store.Products(source)
	if err := store.RemoveSource(source); err != nil {
		return err
	}
	for _, product := range products {
		store.RemoveExternalDependency(product)
	}
	return nil
}

