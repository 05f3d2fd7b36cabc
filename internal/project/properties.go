package project

import (
	"os"
	"path/filepath"

	"github.com/magiconair/properties"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// PropertiesFileName is the spec's build.properties location, relative to
// a project's project/ directory (spec.md §6 "External Interfaces").
const PropertiesFileName = "build.properties"

// Required keys per spec.md §4.9: "projectName is required; projectVersion
// is inherited if absent."
const (
	KeyName         = "project.name"
	KeyOrganization = "project.organization"
	KeyVersion      = "project.version"
)

// PropertyStore is a project's persisted key/value property set, backed by
// a Java-style .properties file via magiconair/properties — the library
// the teacher's own module graph already carries for exactly this format.
// A store may inherit unset keys from a parent store, per spec.md §4.9.
type PropertyStore struct {
	path   string
	props  *properties.Properties
	parent *PropertyStore
	dirty  bool
}

// LoadPropertyStore reads path (creating an empty store if the file does
// not yet exist — "a first run has no prior properties") with an optional
// parent for inheritance.
func LoadPropertyStore(path string, parent *PropertyStore) (*PropertyStore, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &PropertyStore{path: path, props: properties.NewProperties(), parent: parent}, nil
	}
	p, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindSetup, err, "load properties %s", path)
	}
	return &PropertyStore{path: path, props: p, parent: parent}, nil
}

// Get returns value for key, falling back to the parent store when key is
// not defined locally, per spec.md §4.9's "projectVersion is inherited if
// absent" rule generalized to every key.
func (s *PropertyStore) Get(key string) (string, bool) {
	if s.props != nil {
		if v, ok := s.props.Get(key); ok {
			return v, true
		}
	}
	if s.parent != nil {
		return s.parent.Get(key)
	}
	return "", false
}

// Set assigns key = value in this store (never the parent) and marks the
// store dirty so Save knows to persist it.
func (s *PropertyStore) Set(key, value string) error {
	if _, _, err := s.props.Set(key, value); err != nil {
		return buildutil.Wrap(buildutil.KindSetup, err, "set property %s", key)
	}
	s.dirty = true
	return nil
}

// Keys returns every key defined locally in this store (not the parent's).
func (s *PropertyStore) Keys() []string { return s.props.Keys() }

// Save persists the store to disk if it has unsaved changes, per the
// spec's "save-environment" block (spec.md §4.9 step 4): property changes
// are written on both normal and error return paths.
func (s *PropertyStore) Save() error {
	if !s.dirty {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create properties dir for %s", s.path)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "open %s for write", s.path)
	}
	defer f.Close()
	if _, err := s.props.Write(f, properties.UTF8); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "write properties %s", s.path)
	}
	s.dirty = false
	return nil
}

// RequireProjectName returns KeyName, or an error describing that the
// project's build.properties is missing the required key (spec.md §4.9 /
// §4.11: "the user is prompted for undefined required properties" — in
// batch/headless use this becomes a SetupError instead of a prompt).
func (s *PropertyStore) RequireProjectName() (string, error) {
	name, ok := s.Get(KeyName)
	if !ok || name == "" {
		return "", buildutil.New(buildutil.KindSetup, "required property %q is not set in %s", KeyName, s.path)
	}
	return name, nil
}
