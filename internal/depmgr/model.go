// Package depmgr implements the spec's Dependency Manager Façade: it
// adapts declarative module/resolver descriptions into resolve+retrieve
// calls against an external artifact-fetching library, serializing every
// call process-wide because that library is not safe for concurrent use.
// It is grounded on the teacher's internal/tfr-adjacent module-resolution
// flow (declare a source locator, resolve it, retrieve it into a target
// directory) and hashicorp/go-getter, the library the teacher's own module
// source resolution is built on.
package depmgr

import "github.com/foundryhq/foundry/internal/buildlog"

// ModuleID is the spec's module identifier triple plus its two flags.
type ModuleID struct {
	Organization string
	Name         string
	Revision     string
	ConfMapping  string
	IsChanging   bool
	IsTransitive bool
}

// ResolverKind selects one of the spec's resolver variants.
type ResolverKind int

const (
	// ResolverMaven is a Maven-style HTTP repository (name, root URL).
	ResolverMaven ResolverKind = iota
	// ResolverPattern is a pattern-based repository (ivy/artifact patterns).
	ResolverPattern
)

// Resolver is a named artifact location.
type Resolver struct {
	Name string
	Kind ResolverKind

	// ResolverMaven
	RootURL string

	// ResolverPattern
	IvyPattern      string
	ArtifactPattern string
	MavenCompat     bool

	// Optional transport wrapping, e.g. "ssh", "sftp", "file".
	Transport string
	Auth      *Auth
}

// Auth carries resolver credentials, never logged or persisted.
type Auth struct {
	Username string
	Password string
}

// Configuration is the spec's named scope (compile, test, runtime, …).
type Configuration struct {
	Name        string
	Description string
	Public      bool
	Extends     []string
	Transitive  bool
}

// ManagerVariant selects how the façade obtains its module descriptor.
type ManagerVariant int

const (
	ManagerAutoDetect ManagerVariant = iota
	ManagerMaven
	ManagerIvy
	ManagerInline
)

// Manager is the spec's tagged Manager variant.
type Manager struct {
	Variant ManagerVariant

	// AutoDetect
	AutoDetectModule *ModuleID

	// Maven / Ivy
	SettingsFile string
	PomOrIvyFile string

	// Inline
	Module               *ModuleID
	Resolvers            []Resolver
	Configurations       []Configuration
	DefaultConfiguration string
	Dependencies         []ModuleID
	InlineXML            string
}

// IvyConfiguration is the spec's IvyConfiguration.
type IvyConfiguration struct {
	ProjectRoot      string
	ManagedLibsDir   string
	CacheDirOverride string
	ManagerVariant   Manager
	Validate         bool
	ErrorIfNoConfig  bool
	Logger           buildlog.Logger
}

// UpdateConfiguration is the spec's UpdateConfiguration.
type UpdateConfiguration struct {
	// RetrievePattern may reference [conf], [artifact], [revision], [ext].
	RetrievePattern string
	Synchronize     bool
	Quiet           bool
}
