package repl_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/project"
	"github.com/foundryhq/foundry/internal/repl"
	"github.com/foundryhq/foundry/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProject(t *testing.T, ran *[]string) *project.Project {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "project"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "project", project.PropertiesFileName),
		[]byte("project.name = demo\n"), 0o644))

	b, err := project.NewBuilder(project.Info{Directory: dir})
	require.NoError(t, err)
	b.Task("compile", task.New("compile", func(context.Context, buildlog.Logger) error {
		*ran = append(*ran, "compile")
		return nil
	}))
	p, err := b.Build()
	require.NoError(t, err)
	return p
}

func noopLog() buildlog.Logger { return buildlog.New(io.Discard, buildlog.LevelError) }

func TestRunBatchRunsKnownTaskAndSkipsUnknownOne(t *testing.T) {
	t.Parallel()

	var ran []string
	p := newTestProject(t, &ran)
	logs := buildlog.NewBuffered(noopLog())

	code := repl.RunBatch(t.Context(), p, []string{"compile", "no-such-task"}, 0, logs, noopLog())
	assert.Equal(t, repl.ExitOK, code)
	assert.Equal(t, []string{"compile"}, ran)
}

func TestRunBatchUnknownTaskIsNoop(t *testing.T) {
	t.Parallel()

	var ran []string
	p := newTestProject(t, &ran)
	logs := buildlog.NewBuffered(noopLog())

	code := repl.RunBatch(t.Context(), p, []string{"never-registered"}, 0, logs, noopLog())
	assert.Equal(t, repl.ExitOK, code)
	assert.Empty(t, ran)
}

func TestInteractiveRunsTaskAndExits(t *testing.T) {
	t.Parallel()

	var ran []string
	p := newTestProject(t, &ran)
	st := &repl.State{Root: p, Current: p, Logger: noopLog(), Logs: buildlog.NewBuffered(noopLog()), PollPeriod: time.Second}

	in := strings.NewReader("compile\nexit\n")
	var out strings.Builder
	err := repl.RunInteractive(t.Context(), st, in, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"compile"}, ran)
}

func TestInteractiveSetAndGetProperty(t *testing.T) {
	t.Parallel()

	var ran []string
	p := newTestProject(t, &ran)
	st := &repl.State{Root: p, Current: p, Logger: noopLog(), Logs: buildlog.NewBuffered(noopLog()), PollPeriod: time.Second}

	in := strings.NewReader("set greeting hello\nget greeting\nexit\n")
	var out strings.Builder
	err := repl.RunInteractive(t.Context(), st, in, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "hello")
}

func TestInteractiveReloadReturnsSignal(t *testing.T) {
	t.Parallel()

	var ran []string
	p := newTestProject(t, &ran)
	st := &repl.State{Root: p, Current: p, Logger: noopLog(), Logs: buildlog.NewBuffered(noopLog()), PollPeriod: time.Second}

	in := strings.NewReader("reload\n")
	var out strings.Builder
	err := repl.RunInteractive(t.Context(), st, in, &out)
	assert.Equal(t, repl.Reload, err)
}

func TestInteractiveUnknownCommandReportsErrorButContinues(t *testing.T) {
	t.Parallel()

	var ran []string
	p := newTestProject(t, &ran)
	st := &repl.State{Root: p, Current: p, Logger: noopLog(), Logs: buildlog.NewBuffered(noopLog()), PollPeriod: time.Second}

	in := strings.NewReader("bogus-command\nexit\n")
	var out strings.Builder
	err := repl.RunInteractive(t.Context(), st, in, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "error:")
}
