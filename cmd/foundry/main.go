// Command foundry is the engine binary the bootstrap launcher resolves and
// re-execs (internal/bootstrap). It loads the project rooted at the
// current working directory, builds the conventional compile/test/package
// task graph described in spec.md §6's "External Interfaces" directory
// layout, and dispatches os.Args[1:] through the REPL component: batch
// mode when arguments are given, interactive mode otherwise.
//
// Invocation: `foundry [action...]`. No flags (spec.md §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/foundryhq/foundry/internal/analysis"
	"github.com/foundryhq/foundry/internal/buildfs"
	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/compiler"
	"github.com/foundryhq/foundry/internal/project"
	"github.com/foundryhq/foundry/internal/repl"
	"github.com/foundryhq/foundry/internal/scripttest"
	"github.com/foundryhq/foundry/internal/task"
	"github.com/foundryhq/foundry/internal/testharness"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	root, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return repl.ExitSetupError
	}

	log := buildlog.New(os.Stderr, buildlog.LevelInfo)
	logs := buildlog.NewBuffered(log)

	proj, err := loadProject(root, log)
	if err != nil {
		log.Log(buildlog.LevelError, "%v", err)
		return repl.ExitLoadError
	}

	args := os.Args[1:]
	if len(args) > 0 {
		return repl.RunBatch(ctx, proj, args, 0, logs, log)
	}

	st := &repl.State{
		Root:       proj,
		Current:    proj,
		Logger:     log,
		Parallel:   0,
		Logs:       logs,
		PollPeriod: pollPeriod,
	}
	for {
		err := repl.RunInteractive(ctx, st, os.Stdin, os.Stdout)
		if err == repl.Reload {
			reloaded, loadErr := loadProject(root, log)
			if loadErr != nil {
				log.Log(buildlog.LevelError, "%v", loadErr)
				return repl.ExitLoadError
			}
			proj = reloaded
			st.Root = proj
			st.Current = proj
			continue
		}
		if err != nil {
			log.Log(buildlog.LevelError, "%v", err)
			return repl.ExitBuildError
		}
		return repl.ExitOK
	}
}

// loadProject builds the spec's conventional single-project tree: sources
// under src/main, tests under src/test, products under target (spec.md
// §6's directory layout). A project wanting sub-projects, library
// dependencies, or a non-default compiler registers them by writing its
// own project-definition module against internal/project's Builder
// instead of this convention; loadProject is the zero-configuration
// default, analogous to the teacher's own "no terragrunt.hcl means plain
// passthrough" fallback.
func loadProject(root string, log buildlog.Logger) (*project.Project, error) {
	b, err := project.NewBuilder(project.Info{Directory: root})
	if err != nil {
		return nil, err
	}

	targetDir := filepath.Join(root, "target")
	classesDir := filepath.Join(targetDir, "classes")
	testClassesDir := filepath.Join(targetDir, "test-classes")
	analysisDir := filepath.Join(targetDir, "analysis")
	testAnalysisDir := filepath.Join(targetDir, "test-analysis")

	store := analysis.New(analysisDir)
	if err := store.Load(); err != nil {
		return nil, err
	}
	testStore := analysis.New(testAnalysisDir)
	if err := testStore.Load(); err != nil {
		return nil, err
	}

	srcRoot, err := buildfs.NewRoot(root)
	if err != nil {
		return nil, err
	}
	mainDir, err := srcRoot.Child("src")
	if err != nil {
		return nil, err
	}
	mainDir, err = mainDir.Child("main")
	if err != nil {
		return nil, err
	}
	testDir, err := srcRoot.Child("src")
	if err != nil {
		return nil, err
	}
	testDir, err = testDir.Child("test")
	if err != nil {
		return nil, err
	}

	compileTask := task.New("compile", func(ctx context.Context, log buildlog.Logger) error {
		return compiler.Run(ctx, compiler.Config{
			Sources:     buildfs.Descendants(mainDir, buildfs.AllPass),
			OutputDir:   classesDir,
			AnalysisDir: analysisDir,
			ProjectRoot: root,
		}, store, compiler.ExecCompiler{Bin: compilerBinary()})
	})

	testCompileTask := task.New("test-compile", func(ctx context.Context, log buildlog.Logger) error {
		return compiler.Run(ctx, compiler.Config{
			Sources:         buildfs.Descendants(testDir, buildfs.AllPass),
			Classpath:       []string{classesDir},
			OutputDir:       testClassesDir,
			AnalysisDir:     testAnalysisDir,
			TestSuperClasses: []string{"org.scalatest.Suite"},
			ProjectRoot:     root,
		}, testStore, compiler.ExecCompiler{Bin: compilerBinary()})
	})
	if _, err := testCompileTask.DependsOn(compileTask); err != nil {
		return nil, err
	}

	testTask := task.New("test", func(ctx context.Context, log buildlog.Logger) error {
		grouped := testharness.Discover(testStore, []testharness.Framework{
			{Name: "scalatest", SuperClassName: "org.scalatest.Suite", RequiresModule: false},
		})
		_, err := testharness.Run(ctx, grouped, nil, nil, log)
		return err
	})
	if _, err := testTask.DependsOn(testCompileTask); err != nil {
		return nil, err
	}

	scriptedTestTask := task.New("scripted", func(ctx context.Context, log buildlog.Logger) error {
		fixturesDir := filepath.Join(root, "src", "sbt-test")
		entries, readErr := os.ReadDir(fixturesDir)
		if os.IsNotExist(readErr) {
			log.Success("no scripted tests under %s", fixturesDir)
			return nil
		}
		if readErr != nil {
			return readErr
		}
		for _, group := range entries {
			if !group.IsDir() {
				continue
			}
			groupDir := filepath.Join(fixturesDir, group.Name())
			cases, err := os.ReadDir(groupDir)
			if err != nil {
				return err
			}
			for _, c := range cases {
				if !c.IsDir() {
					continue
				}
				fixture := filepath.Join(groupDir, c.Name())
				copied, err := scripttest.CopyFixture(fixture)
				if err != nil {
					return err
				}
				fixtureProj, projErr := project.NewBuilder(project.Info{Directory: copied})
				var fp *project.Project
				if projErr == nil {
					fp, _ = fixtureProj.Build()
				}
				if err := scripttest.LoadAndRun(ctx, copied, fp, log); err != nil {
					os.RemoveAll(copied)
					return err
				}
				os.RemoveAll(copied)
			}
		}
		return nil
	})

	packageTask := task.New("package", func(ctx context.Context, log buildlog.Logger) error {
		classesRoot, err := buildfs.NewRoot(classesDir)
		if err != nil {
			return err
		}
		paths, err := buildfs.Descendants(classesRoot, buildfs.AllPass).Get()
		if err != nil {
			return err
		}
		return buildfs.Archive(paths, filepath.Join(targetDir, "package.jar"), &buildfs.Manifest{
			Main: map[string]string{"Created-By": "foundry"},
		})
	})
	if _, err := packageTask.DependsOn(compileTask); err != nil {
		return nil, err
	}

	cleanTask := task.New("clean", func(ctx context.Context, log buildlog.Logger) error {
		return os.RemoveAll(targetDir)
	})

	b.Task("compile", compileTask).
		Task("test-compile", testCompileTask).
		Task("test", testTask).
		Task("scripted", scriptedTestTask).
		Task("package", packageTask).
		Task("clean", cleanTask).
		OutputDirectory(targetDir)

	return b.Build()
}

// compilerBinary names the external compiler foundry shells out to for
// compile/test-compile (spec.md §4.7's "invoke an external compiler");
// FOUNDRY_COMPILER lets a project substitute its own without recompiling
// the engine.
func compilerBinary() string {
	if bin := os.Getenv("FOUNDRY_COMPILER"); bin != "" {
		return bin
	}
	return "scalac"
}

const pollPeriod = time.Second
