package depmgr

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"

	"github.com/foundryhq/foundry/internal/buildlog"
	"github.com/foundryhq/foundry/internal/buildutil"
)

// Update is the façade's first exposed operation (spec.md §4.8): resolve
// ivyConfig's module descriptor against its resolver chain and retrieve
// every dependency's artifact into the managed-libs directory, following
// updateConfig's retrieve pattern. Every call is serialized behind
// globalLock because the underlying resolution flow is not safe for
// concurrent use.
func Update(ctx context.Context, ivyConfig IvyConfiguration, updateConfig UpdateConfiguration) error {
	return withLock(func() error {
		log := ivyConfig.Logger
		if log == nil {
			log = buildlog.New(os.Stderr, buildlog.LevelInfo)
		}
		adapter := newLogAdapter(log)

		desc, err := resolveDescriptor(ivyConfig.ManagerVariant, ivyConfig.ProjectRoot)
		if err != nil {
			return err
		}

		chain, err := buildResolverChain(ivyConfig, desc)
		if err != nil {
			return err
		}

		results, errs := resolveAll(ctx, desc.dependencies, chain)
		if len(errs) > 0 {
			seen := make(map[string]bool)
			var problems []string
			for _, e := range errs {
				if !seen[e.Error()] {
					seen[e.Error()] = true
					problems = append(problems, e.Error())
				}
			}
			adapter.emit(sevError, "resolution failed with %d problem(s)", len(problems))
			return buildutil.New(buildutil.KindResolution, "%s", strings.Join(problems, "\n"))
		}

		written, err := retrieve(ctx, ivyConfig, updateConfig, results)
		if err != nil {
			return err
		}

		if updateConfig.Synchronize {
			if err := synchronizeManaged(ivyConfig.ManagedLibsDir, written); err != nil {
				return err
			}
		}

		adapter.emit(sevInfo, "retrieved %d artifact(s) into %s", len(written), ivyConfig.ManagedLibsDir)
		return nil
	})
}

// resolvedArtifact is one module resolved to a concrete source locator for
// a given resolver, ready for retrieval.
type resolvedArtifact struct {
	mod       ModuleID
	conf      string
	sourceURL string
	resolver  Resolver
}

// buildResolverChain assembles the spec's "redefined-public" chain: an
// inline manager's declared default resolver (none, here — Foundry has no
// on-disk settings file autodetection beyond what resolveDescriptor
// already read), its own resolvers in order, then the canonical release
// repository unless the caller errors out on an empty chain.
func buildResolverChain(ivyConfig IvyConfiguration, desc *descriptor) ([]Resolver, error) {
	allowCanonical := !ivyConfig.ErrorIfNoConfig
	chain := buildChain(nil, desc.resolvers, allowCanonical)
	if len(chain) == 0 {
		return nil, buildutil.New(buildutil.KindResolution, "no resolvers configured and errorIfNoConfiguration is set")
	}
	return chain, nil
}

// resolveAll walks every declared dependency against the resolver chain,
// picking the first resolver that can compute an artifact source locator
// for it; whether the artifact exists there is not checked until retrieval.
// It does not perform the retrieval itself
// (that belongs to retrieve, below) so that resolution failures can all be
// collected before any network I/O for retrieval begins.
func resolveAll(ctx context.Context, deps []ModuleID, chain []Resolver) ([]resolvedArtifact, []error) {
	var (
		results []resolvedArtifact
		errs    []error
	)
	for _, mod := range deps {
		artifact, err := resolveOne(mod, chain)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results = append(results, artifact)
	}
	return results, errs
}

func resolveOne(mod ModuleID, chain []Resolver) (resolvedArtifact, error) {
	var lastErr error
	for _, r := range chain {
		src, err := artifactSource(r, mod, "jar")
		if err != nil {
			lastErr = err
			continue
		}
		return resolvedArtifact{mod: mod, conf: mod.ConfMapping, sourceURL: transportURL(r, src), resolver: r}, nil
	}
	if lastErr == nil {
		lastErr = buildutil.New(buildutil.KindResolution, "%s:%s:%s: no resolver in chain could produce a source", mod.Organization, mod.Name, mod.Revision)
	}
	return resolvedArtifact{}, lastErr
}

// retrieve expands updateConfig.RetrievePattern for each resolved artifact
// and fetches it into ivyConfig.ManagedLibsDir with go-getter, the
// library the teacher's own module-source resolution
// (cli/tfsource, config/config.go) is built on.
func retrieve(ctx context.Context, ivyConfig IvyConfiguration, updateConfig UpdateConfiguration, artifacts []resolvedArtifact) ([]string, error) {
	var written []string
	for _, a := range artifacts {
		rel := expandPattern(updateConfig.RetrievePattern, a.mod, a.conf, "jar")
		dest := joinManaged(ivyConfig.ManagedLibsDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, buildutil.Wrap(buildutil.KindIO, err, "create managed-lib dir for %s", dest)
		}

		client := &getter.Client{
			Ctx:  ctx,
			Src:  a.sourceURL,
			Dst:  dest,
			Pwd:  ivyConfig.ProjectRoot,
			Mode: getter.ClientModeFile,
		}
		if err := client.Get(); err != nil {
			return nil, buildutil.Wrap(buildutil.KindResolution, err, "retrieve %s:%s:%s from %s", a.mod.Organization, a.mod.Name, a.mod.Revision, a.resolver.Name)
		}
		written = append(written, dest)
	}
	return written, nil
}

// expandPattern substitutes [conf], [artifact], [revision], [ext] in
// pattern per spec.md §6's output-pattern placeholders.
func expandPattern(pattern string, mod ModuleID, conf, ext string) string {
	if conf == "" {
		conf = "default"
	}
	replacer := strings.NewReplacer(
		"[conf]", conf,
		"[artifact]", mod.Name,
		"[revision]", mod.Revision,
		"[ext]", ext,
	)
	return replacer.Replace(pattern)
}

// joinManaged expands managedDir + pattern ensuring exactly one path
// separator between them, per spec.md §4.8 step 5.
func joinManaged(managedDir, pattern string) string {
	managedDir = strings.TrimRight(managedDir, "/\\")
	pattern = strings.TrimLeft(pattern, "/\\")
	return filepath.Join(managedDir, pattern)
}

// synchronizeManaged deletes files under managedDir absent from written,
// per the spec's "synchronize flag" in UpdateConfiguration.
func synchronizeManaged(managedDir string, written []string) error {
	keep := make(map[string]bool, len(written))
	for _, w := range written {
		abs, _ := filepath.Abs(w)
		keep[abs] = true
	}
	return filepath.Walk(managedDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		abs, _ := filepath.Abs(path)
		if !keep[abs] {
			return os.Remove(path)
		}
		return nil
	})
}
