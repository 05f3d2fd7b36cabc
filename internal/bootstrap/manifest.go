// Package bootstrap implements the spec's Bootstrap Launcher component
// (spec.md §4.11): it locates the project's build.properties, resolves and
// caches the engine's own runtime and engine-version artifacts through the
// dependency manager façade, and re-execs the resolved engine binary in a
// process boundary that keeps the launcher's own copies out of the child's
// view (spec.md §9's "run the child out-of-process" resolution, see
// SPEC_FULL.md §4.11.1). It is grounded on the teacher's version-checking
// flow (cli/version_check.go: parse a required-version constraint, compare
// against the running binary) and go-getter/go-version, both already
// teacher dependencies.
package bootstrap

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// ManifestFileName is where the launcher caches its last successful
// resolution (SPEC_FULL.md §3.2).
const ManifestFileName = "manifest.yaml"

// Manifest records the last resolved (runtimeVersion, engineVersion) pair
// and the sha256 of each artifact placed under project/boot/, so a second
// launch with unchanged build.properties can skip re-resolution entirely.
type Manifest struct {
	RuntimeVersion string            `yaml:"runtimeVersion"`
	EngineVersion  string            `yaml:"engineVersion"`
	ArtifactHashes map[string]string `yaml:"artifactHashes"`
}

// LoadManifest reads the manifest at path, returning a zero-value Manifest
// (not an error) if the file does not yet exist — the launcher's first run
// has no prior manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Manifest{ArtifactHashes: make(map[string]string)}, nil
	}
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "read boot manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "parse boot manifest %s", path)
	}
	if m.ArtifactHashes == nil {
		m.ArtifactHashes = make(map[string]string)
	}
	return &m, nil
}

// Save persists m to path, creating its parent directory if needed.
func (m *Manifest) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create boot dir for %s", path)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "render boot manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "write boot manifest %s", path)
	}
	return nil
}

// Matches reports whether m already records the given versions with every
// listed artifact present on disk and hashing the same as when it was
// recorded — the idempotence check SPEC_FULL.md §3.2 describes.
func (m *Manifest) Matches(runtimeVersion, engineVersion string, artifacts []string) bool {
	if m.RuntimeVersion != runtimeVersion || m.EngineVersion != engineVersion {
		return false
	}
	for _, a := range artifacts {
		want, ok := m.ArtifactHashes[a]
		if !ok {
			return false
		}
		got, err := hashFile(a)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

// Record updates m with the resolved versions and the current hash of
// every artifact path.
func (m *Manifest) Record(runtimeVersion, engineVersion string, artifacts []string) error {
	m.RuntimeVersion = runtimeVersion
	m.EngineVersion = engineVersion
	if m.ArtifactHashes == nil {
		m.ArtifactHashes = make(map[string]string)
	}
	for _, a := range artifacts {
		h, err := hashFile(a)
		if err != nil {
			return err
		}
		m.ArtifactHashes[a] = h
	}
	return nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", buildutil.Wrap(buildutil.KindIO, err, "hash artifact %s", path)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
