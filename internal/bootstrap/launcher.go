package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/go-version"
	"github.com/magiconair/properties"

	"github.com/foundryhq/foundry/internal/buildutil"
	"github.com/foundryhq/foundry/internal/depmgr"
)

// Required build.properties keys, per spec.md §6's exact external
// interface (unchanged by the Foundry rename — these are the keys a
// project's build.properties file is read for).
const (
	KeyProjectName = "project.name"
	KeyEngineVer   = "sbt.version"
	KeyRuntimeVer  = "scala.version"
)

// Config carries everything the launcher needs to resolve and re-exec the
// engine.
type Config struct {
	ProjectRoot  string
	RuntimeRepo  depmgr.Resolver // where the language runtime artifact lives
	EngineRepo   depmgr.Resolver // where the engine binary artifact lives
	EngineArgs   []string
}

// bootPropertiesPath is project/build.properties (spec.md §6 layout).
func bootPropertiesPath(root string) string {
	return filepath.Join(root, "project", "build.properties")
}

// bootDir is project/boot/scala-<runtimeVersion> (spec.md §4.11 step 3).
func bootDir(root, runtimeVersion string) string {
	return filepath.Join(root, "project", "boot", "scala-"+runtimeVersion)
}

// ReadVersions reads the runtime/engine version pair out of
// project/build.properties (spec.md §4.11 step 2). Returns a SetupError if
// the file is missing — Foundry has no interactive project-creation
// prompt (the line-editor front-end is out of scope per spec.md §1), so a
// missing build.properties is a hard setup failure in batch use; callers
// that want the "create a new project" flow should call InitProject first.
func ReadVersions(root string) (runtimeVersion, engineVersion string, err error) {
	path := bootPropertiesPath(root)
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return "", "", buildutil.New(buildutil.KindSetup, "no %s found; create it with %s and %s set", path, KeyRuntimeVer, KeyEngineVer)
	}
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return "", "", buildutil.Wrap(buildutil.KindSetup, err, "load %s", path)
	}
	runtimeVersion, ok := p.Get(KeyRuntimeVer)
	if !ok {
		return "", "", buildutil.New(buildutil.KindSetup, "%s missing required key %q", path, KeyRuntimeVer)
	}
	engineVersion, ok = p.Get(KeyEngineVer)
	if !ok {
		return "", "", buildutil.New(buildutil.KindSetup, "%s missing required key %q", path, KeyEngineVer)
	}
	if _, err := version.NewVersion(runtimeVersion); err != nil {
		return "", "", buildutil.Wrap(buildutil.KindSetup, err, "%s: invalid %s", path, KeyRuntimeVer)
	}
	if _, err := version.NewVersion(engineVersion); err != nil {
		return "", "", buildutil.Wrap(buildutil.KindSetup, err, "%s: invalid %s", path, KeyEngineVer)
	}
	return runtimeVersion, engineVersion, nil
}

// InitProject writes a fresh build.properties with the given values,
// covering the spec's "prompt the user to create a new project" path for
// callers that already collected those values some other way (spec.md
// §4.11 step 1; the interactive prompt itself belongs to the
// out-of-scope line-editor front-end).
func InitProject(root, name, organization, version, engineVersion, runtimeVersion string) error {
	path := bootPropertiesPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create project dir")
	}
	p := properties.NewProperties()
	for k, v := range map[string]string{
		KeyProjectName:      name,
		"project.organization": organization,
		"project.version":      version,
		KeyEngineVer:          engineVersion,
		KeyRuntimeVer:         runtimeVersion,
	} {
		if _, _, err := p.Set(k, v); err != nil {
			return buildutil.Wrap(buildutil.KindSetup, err, "set %s", k)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create %s", path)
	}
	defer f.Close()
	_, err = p.Write(f, properties.UTF8)
	return err
}

// EnsureBootArtifacts implements spec.md §4.11 step 3: computes the boot
// layout for runtimeVersion/engineVersion, and for whichever of
// {lib, sbt-<engineVersion>} is missing or empty, resolves and retrieves it
// through the dependency manager façade (internal/depmgr), reused rather
// than reimplemented per SPEC_FULL.md §4.11.1. When both directories are
// present but the manifest does not match them, nothing is re-fetched; the
// manifest is re-recorded from the files on disk.
func EnsureBootArtifacts(ctx context.Context, cfg Config, runtimeVersion, engineVersion string) (runtimeDir, engineDir string, err error) {
	base := bootDir(cfg.ProjectRoot, runtimeVersion)
	runtimeDir = filepath.Join(base, "lib")
	engineDir = filepath.Join(base, "sbt-"+engineVersion)

	manifestPath := filepath.Join(base, ManifestFileName)
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return "", "", err
	}

	needRuntime := !dirHasFiles(runtimeDir)
	needEngine := !dirHasFiles(engineDir)

	if !needRuntime && !needEngine {
		if artifacts, listErr := listArtifacts(base); listErr == nil && manifest.Matches(runtimeVersion, engineVersion, artifacts) {
			return runtimeDir, engineDir, nil
		}
	}

	if needRuntime {
		if err := fetchArtifactSet(ctx, cfg.RuntimeRepo, "runtime", runtimeVersion, runtimeDir); err != nil {
			return "", "", err
		}
	}
	if needEngine {
		if err := fetchArtifactSet(ctx, cfg.EngineRepo, "engine", engineVersion, engineDir); err != nil {
			return "", "", err
		}
	}

	artifacts, err := listArtifacts(base)
	if err != nil {
		return "", "", err
	}
	if err := manifest.Record(runtimeVersion, engineVersion, artifacts); err != nil {
		return "", "", err
	}
	if err := manifest.Save(manifestPath); err != nil {
		return "", "", err
	}
	return runtimeDir, engineDir, nil
}

// fetchArtifactSet resolves+retrieves one tagged artifact set (the
// runtime or the engine itself) into destDir via the dependency manager
// façade's Update operation, with a single inline dependency named after
// the tag.
func fetchArtifactSet(ctx context.Context, resolver depmgr.Resolver, tag, ver, destDir string) error {
	mgr := depmgr.Manager{
		Variant: depmgr.ManagerInline,
		Module:  &depmgr.ModuleID{Organization: "foundry", Name: tag, Revision: ver},
		Resolvers: []depmgr.Resolver{resolver},
		Dependencies: []depmgr.ModuleID{
			{Organization: "foundry", Name: tag, Revision: ver},
		},
	}
	ivyConfig := depmgr.IvyConfiguration{
		ProjectRoot:     filepath.Dir(destDir),
		ManagedLibsDir:  destDir,
		ManagerVariant:  mgr,
		ErrorIfNoConfig: true,
	}
	return depmgr.Update(ctx, ivyConfig, depmgr.UpdateConfiguration{
		RetrievePattern: "[artifact]-[revision].[ext]",
	})
}

func dirHasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func listArtifacts(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "list boot artifacts under %s", dir)
	}
	return out, nil
}

// Batch splits a batch-mode argument list into contiguous runs separated
// by the "reboot" sentinel (spec.md §4.11 step 7): each run is one
// load-and-execute cycle, and "reboot" itself re-reads the version
// properties before the next cycle so a build can upgrade its own runtime
// mid-session.
func Batch(args []string) [][]string {
	var batches [][]string
	var current []string
	for _, a := range args {
		if a == "reboot" {
			batches = append(batches, current)
			current = nil
			continue
		}
		current = append(current, a)
	}
	batches = append(batches, current)
	return batches
}

// Launch re-execs the resolved engine binary found under engineDir as a
// subprocess (spec.md §9's "run the child out-of-process" resolution),
// setting a constrained environment so the child only ever sees the
// resolved runtime/engine rather than the launcher's own copies. There is
// no in-process class/module loader in Go's runtime to isolate namespaces
// with, so the subprocess boundary *is* the isolation primitive
// (SPEC_FULL.md §4.11.1).
func Launch(ctx context.Context, engineDir, runtimeDir string, args []string, stdout, stderr *os.File) error {
	bin := filepath.Join(engineDir, engineBinaryName())
	if _, err := os.Stat(bin); err != nil {
		return buildutil.Wrap(buildutil.KindLoad, err, "resolved engine binary %s", bin)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(filteredEnv(os.Environ()), fmt.Sprintf("SCALA_HOME=%s", runtimeDir))
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Run(); err != nil {
		return buildutil.Wrap(buildutil.KindLoad, err, "engine %s", bin)
	}
	return nil
}

func engineBinaryName() string {
	if os.PathSeparator == '\\' {
		return "foundry.exe"
	}
	return "foundry"
}

// filteredEnv drops GOCACHE from the inherited environment and passes every
// other variable through unchanged; Launch then sets SCALA_HOME to the
// resolved runtime directory.
func filteredEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, e := range env {
		if len(e) >= 8 && e[:8] == "GOCACHE=" {
			continue
		}
		out = append(out, e)
	}
	return out
}
