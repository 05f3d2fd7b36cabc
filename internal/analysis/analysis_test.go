package analysis_test

import (
	"testing"

	"github.com/foundryhq/foundry/internal/analysis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAnalysisRoundTrip is the spec's named property: after Save() then
// Load() on a fresh Store, the in-memory maps equal what they were at
// Save() time.
func TestAnalysisRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := analysis.New(dir)

	store.AddSource("A.scala")
	store.AddSourceDependency("B.scala", "A.scala")
	store.AddSourceDependency("B.scala", "B.scala") // self-loop, must be dropped
	store.AddProduct("A.scala", "A.class")
	store.AddExternalDependency("/libs/x.jar", "A.scala")
	store.AddTest("Spec.scala", analysis.TestDefinition{ClassName: "MySpec", SuperClassName: "UnitSpec", Kind: "class"})
	store.AddApplication("Main.scala", "com.example.Main")
	store.AddProjectDefinition("Build.scala", "com.example.Build")
	store.SetHash("A.scala", []byte("hello"))

	require.NoError(t, store.Save())

	reloaded := analysis.New(dir)
	require.NoError(t, reloaded.Load())

	assert.ElementsMatch(t, []string{"A.scala"}, reloaded.Dependencies("B.scala"))
	assert.ElementsMatch(t, []string{"A.class"}, reloaded.Products("A.scala"))
	assert.ElementsMatch(t, []string{"A.scala"}, reloaded.ExternalDependents("/libs/x.jar"))
	assert.ElementsMatch(t, []string{"com.example.Main"}, reloaded.Applications("Main.scala"))
	tests := reloaded.Tests("Spec.scala")
	require.Len(t, tests, 1)
	assert.Equal(t, "MySpec", tests[0].ClassName)
	assert.Equal(t, "UnitSpec", tests[0].SuperClassName)
	assert.Equal(t, "class", tests[0].Kind)

	h, ok := reloaded.Hash("A.scala")
	require.True(t, ok)
	origHash, _ := store.Hash("A.scala")
	assert.Equal(t, origHash, h)
}

func TestSelfDependencyDropped(t *testing.T) {
	t.Parallel()
	store := analysis.New(t.TempDir())
	store.AddSourceDependency("A.scala", "A.scala")
	assert.Empty(t, store.Dependencies("A.scala"))
}

func TestRemoveSourceClearsAllMaps(t *testing.T) {
	t.Parallel()
	store := analysis.New(t.TempDir())
	store.AddSourceDependency("B.scala", "A.scala")
	store.AddProduct("B.scala", "B.class")
	store.SetHash("B.scala", []byte("x"))

	require.NoError(t, store.RemoveSource("B.scala"))

	assert.False(t, store.HasSource("B.scala"))
	assert.Empty(t, store.Products("B.scala"))
	_, ok := store.Hash("B.scala")
	assert.False(t, ok)
}

func TestRemoveDependentPurgesFromEverySet(t *testing.T) {
	t.Parallel()
	store := analysis.New(t.TempDir())
	store.AddSourceDependency("B.scala", "A.scala")
	store.AddSourceDependency("C.scala", "A.scala")
	store.AddExternalDependency("/libs/x.jar", "A.scala")

	store.RemoveDependent("A.scala")

	assert.Empty(t, store.Dependencies("B.scala"))
	assert.Empty(t, store.Dependencies("C.scala"))
	assert.Empty(t, store.ExternalDependents("/libs/x.jar"))
}

func TestEscapeRoundTripsFieldsWithTabsAndNewlines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store := analysis.New(dir)

	weird := "weird\tname\nwith\\backslash"
	store.AddSourceDependency(weird, "A.scala")
	require.NoError(t, store.Save())

	reloaded := analysis.New(dir)
	require.NoError(t, reloaded.Load())
	assert.ElementsMatch(t, []string{"A.scala"}, reloaded.Dependencies(weird))
}
