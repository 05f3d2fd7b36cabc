package testharness_test

import (
	"context"
	"io"
	"testing"

	"github.com/foundryhq/foundry/internal/analysis"
	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/testharness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	verdicts map[string]testharness.Verdict
}

func (s stubAdapter) RunTest(ctx context.Context, className string) (testharness.Verdict, error) {
	if v, ok := s.verdicts[className]; ok {
		return v, nil
	}
	return testharness.Passed, nil
}

type recordingListener struct {
	started  []string
	events   []string
	complete testharness.Verdict
}

func (r *recordingListener) DoInit() {}
func (r *recordingListener) StartGroup(framework string, classes []string) {
	r.started = append(r.started, framework)
}
func (r *recordingListener) TestEvent(framework, className string, v testharness.Verdict) {
	r.events = append(r.events, className+":"+v.String())
}
func (r *recordingListener) EndGroup(framework string) {}
func (r *recordingListener) DoComplete(overall testharness.Verdict) {
	r.complete = overall
}

func noopLog() buildlog.Logger { return buildlog.New(io.Discard, buildlog.LevelError) }

func TestDiscoverGroupsByFingerprint(t *testing.T) {
	t.Parallel()

	store := analysis.New(t.TempDir())
	store.AddTest("a_spec.go", analysis.TestDefinition{ClassName: "ASpec", SuperClassName: "UnitSpec", Kind: "class"})
	store.AddTest("b_spec.go", analysis.TestDefinition{ClassName: "BSpec", SuperClassName: "UnitSpec", Kind: "class"})
	store.AddTest("c_spec.go", analysis.TestDefinition{ClassName: "CSuite", SuperClassName: "ModuleSpec", Kind: "module"})

	grouped := testharness.Discover(store, []testharness.Framework{
		{Name: "unit", SuperClassName: "UnitSpec", RequiresModule: false},
		{Name: "modular", SuperClassName: "ModuleSpec", RequiresModule: true},
	})

	assert.ElementsMatch(t, []string{"ASpec", "BSpec"}, grouped["unit"])
	assert.ElementsMatch(t, []string{"CSuite"}, grouped["modular"])
}

func TestRunNoTestsLogsSuccess(t *testing.T) {
	t.Parallel()

	result, err := testharness.Run(t.Context(), map[string][]string{}, nil, nil, noopLog())
	require.NoError(t, err)
	assert.Equal(t, testharness.Passed, result.Overall)
}

func TestRunAggregatesErrorOverFailedOverPassed(t *testing.T) {
	t.Parallel()

	grouped := map[string][]string{
		"unit": {"Good", "Bad", "Ugly"},
	}
	adapters := map[string]testharness.Adapter{
		"unit": stubAdapter{verdicts: map[string]testharness.Verdict{
			"Bad":  testharness.Failed,
			"Ugly": testharness.Error,
		}},
	}
	listener := &recordingListener{}

	result, err := testharness.Run(t.Context(), grouped, adapters, []testharness.Listener{listener}, noopLog())
	require.Error(t, err)
	assert.Equal(t, testharness.Error, result.Overall)
	assert.Equal(t, testharness.Error, listener.complete)
	assert.Contains(t, listener.started, "unit")
	assert.ElementsMatch(t, []string{"Good:passed", "Bad:failed", "Ugly:error"}, listener.events)
}

func TestRunMissingAdapterErrors(t *testing.T) {
	t.Parallel()

	grouped := map[string][]string{"unit": {"OnlyTest"}}
	result, err := testharness.Run(t.Context(), grouped, map[string]testharness.Adapter{}, nil, noopLog())
	require.Error(t, err)
	assert.Equal(t, testharness.Error, result.Classes["OnlyTest"])
}

type panicListener struct{}

func (panicListener) DoInit()                                          { panic("boom") }
func (panicListener) StartGroup(string, []string)                      {}
func (panicListener) TestEvent(string, string, testharness.Verdict)     {}
func (panicListener) EndGroup(string)                                  {}
func (panicListener) DoComplete(testharness.Verdict)                   {}

func TestRunSurvivesListenerPanic(t *testing.T) {
	t.Parallel()

	grouped := map[string][]string{"unit": {"A"}}
	adapters := map[string]testharness.Adapter{"unit": stubAdapter{}}

	assert.NotPanics(t, func() {
		_, _ = testharness.Run(t.Context(), grouped, adapters, []testharness.Listener{panicListener{}}, noopLog())
	})
}
