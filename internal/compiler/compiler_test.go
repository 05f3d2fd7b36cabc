package compiler_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/foundryhq/foundry/internal/analysis"
	"github.com/foundryhq/foundry/internal/buildfs"
	"github.com/foundryhq/foundry/internal/compiler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompiler simulates compiling by producing one .out file per dirty
// source and reporting it through the callback, exercising the
// beginSource/generatedClass/endSource sequence spec.md §4.7 describes.
type fakeCompiler struct {
	outputDir string
	onCompile func(dirty []string)
}

func (f *fakeCompiler) Compile(ctx context.Context, dirty []string, classpath []string, outputDir string, cb *compiler.Callback) error {
	if f.onCompile != nil {
		f.onCompile(dirty)
	}
	for _, src := range dirty {
		cb.BeginSource(src)
		product := filepath.Join(outputDir, filepath.Base(src)+".out")
		if err := os.WriteFile(product, []byte("compiled"), 0o644); err != nil {
			return err
		}
		cb.GeneratedClass(src, product)
		cb.EndSource(src)
	}
	return nil
}

func setupProject(t *testing.T) (root string, sourcesDir string) {
	t.Helper()
	root = t.TempDir()
	sourcesDir = filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(sourcesDir, 0o755))
	return root, sourcesDir
}

func TestFirstRunCompilesEverySource(t *testing.T) {
	t.Parallel()
	root, src := setupProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "A.scala"), []byte("a"), 0o644))

	base, err := buildfs.NewRoot(root)
	require.NoError(t, err)
	srcBase, err := base.Child("src")
	require.NoError(t, err)

	outDir := filepath.Join(root, "out")
	store := analysis.New(filepath.Join(root, "analysis"))
	fc := &fakeCompiler{outputDir: outDir}

	cfg := compiler.Config{
		Sources:     buildfs.Descendants(srcBase, buildfs.GlobFilter("*.scala")),
		OutputDir:   outDir,
		ProjectRoot: root,
	}
	require.NoError(t, compiler.Run(context.Background(), cfg, store, fc))

	assert.True(t, store.HasSource("src/A.scala"))
	assert.Len(t, store.Products("src/A.scala"), 1)
	_, ok := store.Hash("src/A.scala")
	assert.True(t, ok)
}

// TestIncrementalIdempotence is the spec's named property: a second
// compile run with no source changes recompiles nothing.
func TestIncrementalIdempotence(t *testing.T) {
	t.Parallel()
	root, src := setupProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "A.scala"), []byte("a"), 0o644))

	base, _ := buildfs.NewRoot(root)
	srcBase, _ := base.Child("src")
	outDir := filepath.Join(root, "out")
	store := analysis.New(filepath.Join(root, "analysis"))

	cfg := compiler.Config{
		Sources:     buildfs.Descendants(srcBase, buildfs.GlobFilter("*.scala")),
		OutputDir:   outDir,
		ProjectRoot: root,
	}

	var compiledCount int
	fc := &fakeCompiler{outputDir: outDir, onCompile: func(dirty []string) { compiledCount += len(dirty) }}
	require.NoError(t, compiler.Run(context.Background(), cfg, store, fc))
	assert.Equal(t, 1, compiledCount)

	require.NoError(t, store.Save())
	reloaded := analysis.New(filepath.Join(root, "analysis"))
	require.NoError(t, reloaded.Load())

	fc2 := &fakeCompiler{outputDir: outDir, onCompile: func(dirty []string) { compiledCount += len(dirty) }}
	require.NoError(t, compiler.Run(context.Background(), cfg, reloaded, fc2))
	assert.Equal(t, 1, compiledCount, "second run must not recompile an unchanged source")
}

func TestChangedHashTriggersRecompile(t *testing.T) {
	t.Parallel()
	root, src := setupProject(t)
	path := filepath.Join(src, "A.scala")
	require.NoError(t, os.WriteFile(path, []byte("a"), 0o644))

	base, _ := buildfs.NewRoot(root)
	srcBase, _ := base.Child("src")
	outDir := filepath.Join(root, "out")
	store := analysis.New(filepath.Join(root, "analysis"))
	cfg := compiler.Config{
		Sources:     buildfs.Descendants(srcBase, buildfs.GlobFilter("*.scala")),
		OutputDir:   outDir,
		ProjectRoot: root,
	}

	require.NoError(t, compiler.Run(context.Background(), cfg, store, &fakeCompiler{outputDir: outDir}))

	require.NoError(t, os.WriteFile(path, []byte("changed"), 0o644))

	var compiledCount int
	fc := &fakeCompiler{outputDir: outDir, onCompile: func(dirty []string) { compiledCount = len(dirty) }}
	require.NoError(t, compiler.Run(context.Background(), cfg, store, fc))
	assert.Equal(t, 1, compiledCount)
}

func TestCompilerFailureDoesNotPersistAnalysis(t *testing.T) {
	t.Parallel()
	root, src := setupProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "A.scala"), []byte("a"), 0o644))

	base, _ := buildfs.NewRoot(root)
	srcBase, _ := base.Child("src")
	outDir := filepath.Join(root, "out")
	analysisDir := filepath.Join(root, "analysis")
	store := analysis.New(analysisDir)
	cfg := compiler.Config{
		Sources:     buildfs.Descendants(srcBase, buildfs.GlobFilter("*.scala")),
		OutputDir:   outDir,
		ProjectRoot: root,
	}

	failing := failingCompiler{}
	err := compiler.Run(context.Background(), cfg, store, failing)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(analysisDir, "dependencies"))
	assert.True(t, os.IsNotExist(statErr), "analysis must not be persisted after a compiler failure")
}

// dependentCompiler simulates a project where B.scala depends on A.scala,
// reporting that edge through SourceDependency so discoverDirty's
// fixed-point closure (spec.md §4.7 step 1e) has something to propagate
// through.
type dependentCompiler struct {
	outputDir string
	onCompile func(dirty []string)
}

func (f *dependentCompiler) Compile(ctx context.Context, dirty []string, classpath []string, outputDir string, cb *compiler.Callback) error {
	if f.onCompile != nil {
		f.onCompile(dirty)
	}
	for _, src := range dirty {
		cb.BeginSource(src)
		if filepath.Base(src) == "B.scala" {
			cb.SourceDependency("src/A.scala", src)
		}
		product := filepath.Join(outputDir, filepath.Base(src)+".out")
		if err := os.WriteFile(product, []byte("compiled"), 0o644); err != nil {
			return err
		}
		cb.GeneratedClass(src, product)
		cb.EndSource(src)
	}
	return nil
}

// TestTouchInternalNodeDirtiesDependents is spec.md §8 scenario 3: modifying
// A.scala, which B.scala depends on, must mark both dirty and recompile
// both, not just A.
func TestTouchInternalNodeDirtiesDependents(t *testing.T) {
	t.Parallel()
	root, src := setupProject(t)
	aPath := filepath.Join(src, "A.scala")
	bPath := filepath.Join(src, "B.scala")
	require.NoError(t, os.WriteFile(aPath, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(bPath, []byte("b"), 0o644))

	base, _ := buildfs.NewRoot(root)
	srcBase, _ := base.Child("src")
	outDir := filepath.Join(root, "out")
	store := analysis.New(filepath.Join(root, "analysis"))
	cfg := compiler.Config{
		Sources:     buildfs.Descendants(srcBase, buildfs.GlobFilter("*.scala")),
		OutputDir:   outDir,
		ProjectRoot: root,
	}

	require.NoError(t, compiler.Run(context.Background(), cfg, store, &dependentCompiler{outputDir: outDir}))
	require.True(t, store.HasSource("src/A.scala"))
	require.True(t, store.HasSource("src/B.scala"))
	assert.Contains(t, store.Dependencies("src/B.scala"), "src/A.scala")

	require.NoError(t, os.WriteFile(aPath, []byte("changed"), 0o644))

	var dirtySet []string
	fc := &dependentCompiler{outputDir: outDir, onCompile: func(dirty []string) { dirtySet = append([]string(nil), dirty...) }}
	require.NoError(t, compiler.Run(context.Background(), cfg, store, fc))

	assert.ElementsMatch(t, []string{"src/A.scala", "src/B.scala"}, dirtySet,
		"modifying a source other sources depend on must dirty both it and its dependents")
}

// TestDeletedProductForcesRecompile is spec.md §8 scenario 4: manually
// deleting a source's recorded product (without touching the source file
// itself) must still mark it dirty on the next run, since discoverDirty's
// rule 1c checks every stored product exists on disk.
func TestDeletedProductForcesRecompile(t *testing.T) {
	t.Parallel()
	root, src := setupProject(t)
	require.NoError(t, os.WriteFile(filepath.Join(src, "A.scala"), []byte("a"), 0o644))

	base, _ := buildfs.NewRoot(root)
	srcBase, _ := base.Child("src")
	outDir := filepath.Join(root, "out")
	store := analysis.New(filepath.Join(root, "analysis"))
	cfg := compiler.Config{
		Sources:     buildfs.Descendants(srcBase, buildfs.GlobFilter("*.scala")),
		OutputDir:   outDir,
		ProjectRoot: root,
	}

	require.NoError(t, compiler.Run(context.Background(), cfg, store, &fakeCompiler{outputDir: outDir}))
	products := store.Products("src/A.scala")
	require.Len(t, products, 1)
	require.NoError(t, os.Remove(products[0]))

	var compiledCount int
	fc := &fakeCompiler{outputDir: outDir, onCompile: func(dirty []string) { compiledCount = len(dirty) }}
	require.NoError(t, compiler.Run(context.Background(), cfg, store, fc))
	assert.Equal(t, 1, compiledCount, "a source whose product was deleted out from under it must recompile")
}

type failingCompiler struct{}

func (failingCompiler) Compile(ctx context.Context, dirty []string, classpath []string, outputDir string, cb *compiler.Callback) error {
	return assertErr{}
}

type assertErr struct{}

func (assertErr) Error() string { return "compile failed" }
