package dag_test

import (
	"testing"

	"github.com/foundryhq/foundry/internal/dag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode string

func (n testNode) ID() string { return string(n) }

func build(t *testing.T, nodes []string, edges map[string][]string) *dag.Graph[testNode] {
	t.Helper()
	g := dag.NewGraph[testNode]()
	for _, n := range nodes {
		g.AddNode(testNode(n))
	}
	for from, tos := range edges {
		for _, to := range tos {
			require.NoError(t, g.AddDependency(testNode(from), testNode(to)))
		}
	}
	return g
}

func TestNoDependenciesMaintainsDeclarationOrder(t *testing.T) {
	t.Parallel()

	g := build(t, []string{"c", "a", "b"}, nil)
	sorted, err := g.Sort()
	require.NoError(t, err)
	assert.Equal(t, []testNode{"c", "a", "b"}, sorted)
}

func TestDependenciesOrderedByDependencyLevel(t *testing.T) {
	t.Parallel()

	g := build(t, []string{"a", "b", "c"}, map[string][]string{
		"b": {"a"},
		"c": {"b"},
	})
	sorted, err := g.Sort()
	require.NoError(t, err)
	assert.Equal(t, []testNode{"a", "b", "c"}, sorted)
}

func TestCycleCheckDetectsDirectAndIndirectCycles(t *testing.T) {
	t.Parallel()

	direct := build(t, []string{"a", "b"}, map[string][]string{"a": {"b"}, "b": {"a"}})
	require.Error(t, direct.CycleCheck())

	indirect := build(t, []string{"a", "b", "c"}, map[string][]string{
		"a": {"b"}, "b": {"c"}, "c": {"a"},
	})
	require.Error(t, indirect.CycleCheck())

	diamond := build(t, []string{"a", "b", "c", "d"}, map[string][]string{
		"a": {"b", "c"}, "b": {"d"}, "c": {"d"},
	})
	require.NoError(t, diamond.CycleCheck())
}

func TestAddNodeDedupesByID(t *testing.T) {
	t.Parallel()

	g := dag.NewGraph[testNode]()
	assert.True(t, g.AddNode(testNode("a")))
	assert.False(t, g.AddNode(testNode("a")))
	assert.Equal(t, 1, g.Len())
}

// TestSchedulerProgress is the spec's named property: the scheduler always
// makes forward progress — it never deadlocks with ready work available,
// and a failed node's transitive dependents are skipped rather than run.
func TestSchedulerProgress(t *testing.T) {
	t.Parallel()

	// a, b independent; c -> a; d -> a, b; e -> c
	g := build(t, []string{"a", "b", "c", "d", "e"}, map[string][]string{
		"c": {"a"},
		"d": {"a", "b"},
		"e": {"c"},
	})
	require.NoError(t, g.CycleCheck())

	sched := dag.NewScheduler(g)
	completed := make(map[string]bool)

	for sched.HasPending() {
		batch := sched.Next(10)
		if len(batch) == 0 {
			t.Fatalf("scheduler reported pending work but Next returned nothing; completed so far: %v", completed)
		}
		for _, n := range batch {
			for _, dep := range g.Dependencies(n.ID()) {
				assert.True(t, completed[dep], "node %s ran before dependency %s completed", n.ID(), dep)
			}
			completed[n.ID()] = true
			sched.Complete(n.ID(), dag.Result{})
		}
	}

	assert.Len(t, completed, 5)
}

func TestSchedulerSkipsDependentsOfFailedNode(t *testing.T) {
	t.Parallel()

	g := build(t, []string{"a", "b", "c"}, map[string][]string{
		"b": {"a"},
		"c": {"b"},
	})
	sched := dag.NewScheduler(g)

	batch := sched.Next(10)
	require.Len(t, batch, 1)
	require.Equal(t, "a", batch[0].ID())
	sched.Complete("a", dag.Result{Err: assertError{}})

	assert.True(t, sched.Failed("b"))
	assert.True(t, sched.Failed("c"))
	assert.False(t, sched.HasPending())
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
