// Package repl implements the spec's Main Loop / REPL component
// (spec.md §4.12): batch-mode dispatch of each command-line argument to
// an action, and an interactive command loop offering task/method
// invocation, project switching, log-level control, property get/set,
// and a continuous-watch mode. It is grounded on the teacher's own CLI
// command dispatch (cli/app.go's argument-to-action routing) and its
// whitespace-with-quoting argument splitter, generalized from a fixed
// CLI verb set to the spec's open-ended task/method namespace.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/google/shlex"

	"github.com/foundryhq/foundry/internal/buildfs"
	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/buildutil"
	"github.com/foundryhq/foundry/internal/project"
)

var (
	errorColor  = color.New(color.FgRed, color.Bold)
	promptColor = color.New(color.FgCyan)
	watchStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	buildStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Exit codes, per spec.md §6 "CLI surface (engine)".
const (
	ExitOK           = 0
	ExitSetupError   = 1
	ExitSetupDecline = 2
	ExitLoadError    = 3
	ExitUsageError   = 4
	ExitBuildError   = 5
)

// Reload is returned by RunInteractive when the user issues `reload`: the
// caller is expected to re-read the project tree and call RunInteractive
// again (spec.md §4.12's "the process-level loop restarts").
var Reload = fmt.Errorf("reload requested")

// Quit is what dispatch reports for `exit`/`quit`; RunInteractive ends the
// session and returns nil for it.
var Quit = fmt.Errorf("quit requested")

// RunBatch dispatches each arg to project.Act in order, stopping at the
// first failure (spec.md §4.12 "Batch mode"). It returns the process exit
// code to use.
func RunBatch(ctx context.Context, root *project.Project, args []string, parallel int, logs *buildlog.Buffered, log buildlog.Logger) int {
	for _, arg := range args {
		name, _, err := parseInvocation(arg)
		if err != nil {
			log.Log(buildlog.LevelError, "%v", err)
			return ExitUsageError
		}
		if err := project.Act(ctx, root, name, parallel, logs, log); err != nil {
			log.Log(buildlog.LevelError, "%v", err)
			return ExitBuildError
		}
	}
	return ExitOK
}

// State is the interactive session's mutable context: the current
// project, the whole tree's logger (shared across every project so
// `trace`/log-level commands apply tree-wide), and the watch poll
// interval.
type State struct {
	Root       *project.Project
	Current    *project.Project
	Logger     buildlog.Logger
	Parallel   int
	Logs       *buildlog.Buffered
	PollPeriod time.Duration
}

// RunInteractive reads commands from in, one per line, until `exit`,
// `quit`, `reload`, or EOF, echoing responses to out (spec.md §4.12
// "Interactive mode"). The tab-completing line editor itself is an
// external collaborator Foundry does not implement (spec.md §1's
// explicit non-goal); RunInteractive is the command-dispatch core that
// such a front-end would drive.
func RunInteractive(ctx context.Context, st *State, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptColor.Sprintf("%s> ", st.Current.Name()))
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatch(ctx, st, line, in, out); err != nil {
			if err == Quit {
				return nil
			}
			if err == Reload {
				return err
			}
			fmt.Fprintln(out, errorColor.Sprintf("error: %v", err))
		}
	}
}

// dispatch handles one interactive command line, per the command table
// in spec.md §4.12.
func dispatch(ctx context.Context, st *State, line string, in io.Reader, out io.Writer) error {
	words, err := shlex.Split(line)
	if err != nil || len(words) == 0 {
		return buildutil.New(buildutil.KindUsage, "could not parse command: %q", line)
	}
	head := words[0]

	switch head {
	case "exit", "quit":
		return Quit
	case "reload":
		return Reload
	case "help":
		printHelp(out)
		return nil
	case "current":
		fmt.Fprintf(out, "project: %s\nlevel: %s\ntrace: %v\n", st.Current.Name(), st.Logger.GetLevel(), st.Logger.TraceEnabled())
		return nil
	case "projects":
		return listProjects(st, out)
	case "project":
		if len(words) != 2 {
			return buildutil.New(buildutil.KindUsage, "usage: project <name>")
		}
		return switchProject(st, words[1], out)
	case "actions", "methods":
		for _, name := range sortedTasks(st.Current) {
			fmt.Fprintln(out, name)
		}
		return nil
	case "trace":
		st.Logger.EnableTrace(!st.Logger.TraceEnabled())
		fmt.Fprintf(out, "trace: %v\n", st.Logger.TraceEnabled())
		return nil
	case "set":
		if len(words) != 3 {
			return buildutil.New(buildutil.KindUsage, "usage: set name value")
		}
		return st.Current.Properties().Set(words[1], words[2])
	case "get":
		if len(words) != 2 {
			return buildutil.New(buildutil.KindUsage, "usage: get name")
		}
		fmt.Fprintln(out, getProperty(st.Current, words[1]))
		return nil
	case "cc":
		if len(words) < 2 {
			return buildutil.New(buildutil.KindUsage, "usage: cc <action>")
		}
		return watch(ctx, st, strings.Join(words[1:], " "), in, out)
	}

	if level, ok := buildlog.ParseLevel(head); ok && len(words) == 1 {
		st.Logger.SetLevel(level)
		fmt.Fprintf(out, "level: %s\n", level)
		return nil
	}

	if strings.HasPrefix(head, "~") {
		return watch(ctx, st, strings.TrimPrefix(line, "~"), in, out)
	}

	name := project.Kebab(head)
	if _, ok := st.Current.Task(name); !ok {
		return buildutil.New(buildutil.KindUsage, "no such action or project command: %q", head)
	}
	return project.Act(ctx, st.Current, name, st.Parallel, st.Logs, st.Logger)
}

// parseInvocation splits a batch-mode argument into a task/method name
// and its arguments (spec.md §6: "a method invocation `name arg1
// arg2…`"). Foundry's task registry is keyed purely by name; a batch
// argument's trailing words are accepted for interface compatibility
// with a method-argument front-end but are not yet threaded into task
// actions, since spec.md's task Action shape carries no parameter list.
func parseInvocation(arg string) (name string, rest []string, err error) {
	words, err := shlex.Split(arg)
	if err != nil || len(words) == 0 {
		return "", nil, buildutil.New(buildutil.KindUsage, "could not parse action %q", arg)
	}
	return project.Kebab(words[0]), words[1:], nil
}

func sortedTasks(p *project.Project) []string {
	names := p.Tasks()
	sort.Strings(names)
	return names
}

func listProjects(st *State, out io.Writer) error {
	ordered, err := st.Root.Order()
	if err != nil {
		return err
	}
	for _, p := range ordered {
		marker := " "
		if p == st.Current {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, p.Name())
	}
	return nil
}

func switchProject(st *State, name string, out io.Writer) error {
	ordered, err := st.Root.Order()
	if err != nil {
		return err
	}
	for _, p := range ordered {
		if p.Name() == name {
			st.Current = p
			return nil
		}
	}
	return buildutil.New(buildutil.KindUsage, "no such project: %q", name)
}

// getProperty reads name from p's property store, falling back to the OS
// environment when the name is not a defined project property (spec.md
// §4.12's "set name value / get name" fallback rule).
func getProperty(p *project.Project, name string) string {
	if v, ok := p.Properties().Get(name); ok {
		return v
	}
	return os.Getenv(name)
}

// watch polls every source file under the current project's src tree
// every st.PollPeriod, re-running actionName on any modification-time
// change, until a byte is available on in (spec.md §4.12 "cc /
// ~<action>"). The poll-for-input-availability check is approximated
// here by reading one byte off a buffered reader in a background
// goroutine; real terminals feeding RunInteractive already block on
// scanner.Scan() between commands, so watch owns stdin exclusively only
// for its own duration.
func watch(ctx context.Context, st *State, actionName string, in io.Reader, out io.Writer) error {
	name := project.Kebab(strings.Fields(actionName)[0])
	if _, ok := st.Current.Task(name); !ok {
		return buildutil.New(buildutil.KindUsage, "no such action: %q", name)
	}

	projectRoot, err := buildfs.NewRoot(st.Current.Directory())
	if err != nil {
		return err
	}
	srcRoot, err := projectRoot.Child("src")
	if err != nil {
		return err
	}
	finder := buildfs.Descendants(srcRoot, buildfs.AllPass)

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		r := bufio.NewReader(in)
		_, _ = r.ReadByte()
	}()

	latest := make(map[string]time.Time)
	fmt.Fprintln(out, watchStyle.Render(fmt.Sprintf("watching %s for changes, press any key to stop", name)))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-time.After(st.PollPeriod):
		}

		paths, err := finder.Get()
		if err != nil {
			fmt.Fprintf(out, "watch error: %v\n", err)
			continue
		}
		changed := false
		seen := make(map[string]time.Time, len(paths))
		for _, p := range paths {
			mt, err := p.ModTime()
			if err != nil {
				continue
			}
			seen[p.AbsPath()] = mt
			if prev, ok := latest[p.AbsPath()]; !ok || mt.After(prev) {
				changed = true
			}
		}
		latest = seen
		if changed {
			if err := project.Act(ctx, st.Current, name, st.Parallel, st.Logs, st.Logger); err != nil {
				fmt.Fprintln(out, buildStyle.Render(fmt.Sprintf("build error: %v", err)))
			}
		}
	}
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `commands:
  <task>              run a task on the current project
  project <name>      switch current project
  projects            list all projects
  current             show current project/level/trace
  actions, methods     list the current project's tasks
  trace               toggle trace logging
  <level>             set the log level (debug/info/warn/error/success)
  set <name> <value>  set a property on the current project
  get <name>          read a property, falling back to the OS environment
  cc <action>         watch sources and rerun <action> on change
  ~<action>           shorthand for cc <action>
  reload              reload the project tree
  exit, quit          terminate`)
}
