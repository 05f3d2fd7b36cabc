package depmgr

import (
	"os"
	"path/filepath"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// descriptor is the module graph the façade resolves against, selected
// per spec.md §4.8 step 2 according to the manager variant in play.
type descriptor struct {
	self         ModuleID
	resolvers    []Resolver
	configs      []Configuration
	defaultConf  string
	dependencies []ModuleID
}

// resolveDescriptor selects the module descriptor for mgr, parsing an
// on-disk pom/ivy file for the Maven/Ivy variants or synthesizing one
// from the inline declarations for AutoDetect/Inline.
func resolveDescriptor(mgr Manager, projectRoot string) (*descriptor, error) {
	switch mgr.Variant {
	case ManagerAutoDetect:
		if mgr.AutoDetectModule == nil {
			return nil, buildutil.New(buildutil.KindResolution, "autodetect manager requires a module identity")
		}
		return &descriptor{self: *mgr.AutoDetectModule}, nil

	case ManagerMaven, ManagerIvy:
		path := mgr.PomOrIvyFile
		if path == "" {
			return nil, buildutil.New(buildutil.KindResolution, "manager variant requires a descriptor file")
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectRoot, path)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, buildutil.Wrap(buildutil.KindResolution, err, "read descriptor %s", path)
		}
		deps, err := parseDescriptorFile(path, mgr.Variant)
		if err != nil {
			return nil, err
		}
		return &descriptor{dependencies: deps}, nil

	case ManagerInline:
		if mgr.Module == nil {
			return nil, buildutil.New(buildutil.KindResolution, "inline manager requires a module identity")
		}
		return &descriptor{
			self:         *mgr.Module,
			resolvers:    mgr.Resolvers,
			configs:      mgr.Configurations,
			defaultConf:  mgr.DefaultConfiguration,
			dependencies: mgr.Dependencies,
		}, nil

	default:
		return nil, buildutil.New(buildutil.KindResolution, "unknown manager variant")
	}
}
