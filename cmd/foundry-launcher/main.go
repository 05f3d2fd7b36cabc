// Command foundry-launcher is the spec's Bootstrap Launcher (spec.md
// §4.11): a small, stable front door that reads a project's declared
// runtime/engine versions, resolves and caches the matching boot
// artifacts through the dependency manager façade, and re-execs the
// resolved engine binary. It never changes once installed; version
// upgrades are handled entirely by re-resolving artifacts for whatever
// versions project/build.properties names.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/foundryhq/foundry/internal/bootstrap"
	"github.com/foundryhq/foundry/internal/depmgr"
	"github.com/foundryhq/foundry/internal/repl"
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

	cfg := bootstrap.Config{
		ProjectRoot: root,
		RuntimeRepo: runtimeResolver(),
		EngineRepo:  engineResolver(),
	}

	for _, batch := range bootstrap.Batch(os.Args[1:]) {
		runtimeVersion, engineVersion, err := bootstrap.ReadVersions(root)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return repl.ExitSetupError
		}

		runtimeDir, engineDir, err := bootstrap.EnsureBootArtifacts(ctx, cfg, runtimeVersion, engineVersion)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return repl.ExitSetupError
		}

		if err := bootstrap.Launch(ctx, engineDir, runtimeDir, batch, os.Stdout, os.Stderr); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return repl.ExitLoadError
		}
	}
	return repl.ExitOK
}

// runtimeResolver and engineResolver name the default Maven-style
// repositories the launcher resolves boot artifacts from (spec.md
// §4.11's "the runtime and engine repositories a launcher is configured
// against"); FOUNDRY_RUNTIME_REPO / FOUNDRY_ENGINE_REPO override them for
// an organization running its own mirror.
func runtimeResolver() depmgr.Resolver {
	url := os.Getenv("FOUNDRY_RUNTIME_REPO")
	if url == "" {
		url = "https://repo1.maven.org/maven2"
	}
	return depmgr.Resolver{Name: "runtime-repo", Kind: depmgr.ResolverMaven, RootURL: url}
}

func engineResolver() depmgr.Resolver {
	url := os.Getenv("FOUNDRY_ENGINE_REPO")
	if url == "" {
		url = "https://repo1.maven.org/maven2"
	}
	return depmgr.Resolver{Name: "engine-repo", Kind: depmgr.ResolverMaven, RootURL: url}
}
