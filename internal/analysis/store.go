// Package analysis implements the spec's Analysis Store component: the
// on-disk incremental-compilation record mapping sources to their
// dependencies, products, external dependencies, content hash, and
// discovered tests/entry points/project definitions. It is grounded on
// the teacher's cache.GenericCache (mutex-guarded map, value type
// parameterized) generalized from a single scalar-valued cache to several
// set-valued maps sharing one add/remove/clear discipline, plus
// gofrs/flock for the process-wide lock the spec requires around save().
package analysis

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"

	"github.com/foundryhq/foundry/internal/buildutil"
	"github.com/gofrs/flock"
)

// TestDefinition records one discovered test class per spec.md §3's
// auxiliary `tests` map.
type TestDefinition struct {
	ClassName      string
	SuperClassName string
	Kind           string // "class" or "module", matching the framework's fingerprint kind
}

// setMap is a mutex-guarded map from a project-relative path to a set of
// string values, the shape every analysis map except sourceHashes shares.
// It follows the teacher's GenericCache (map + *sync.Mutex, lock around
// every access) generalized to set-valued entries with add/remove/clear.
type setMap struct {
	mu   sync.Mutex
	data map[string]map[string]struct{}
}

func newSetMap() *setMap { return &setMap{data: make(map[string]map[string]struct{})} }

func (m *setMap) add(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.data[key]
	if !ok {
		set = make(map[string]struct{})
		m.data[key] = set
	}
	set[value] = struct{}{}
}

func (m *setMap) ensure(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		m.data[key] = make(map[string]struct{})
	}
}

func (m *setMap) removeKey(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *setMap) removeValueEverywhere(value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, set := range m.data {
		delete(set, value)
		if len(set) == 0 {
			delete(m.data, key)
		}
	}
}

func (m *setMap) removeValue(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if set, ok := m.data[key]; ok {
		delete(set, value)
	}
}

func (m *setMap) get(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.data[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	return out
}

func (m *setMap) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func (m *setMap) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	return out
}

func (m *setMap) snapshot() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.data))
	for k, set := range m.data {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		out[k] = vals
	}
	return out
}

func (m *setMap) replace(snapshot map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]map[string]struct{}, len(snapshot))
	for k, vals := range snapshot {
		set := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			set[v] = struct{}{}
		}
		m.data[k] = set
	}
}

func (m *setMap) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]map[string]struct{})
}

// Store is the per-project analysis record. It is exclusively owned by the
// compile conditional that creates it for the duration of one task run;
// persistence to disk is the only cross-run sharing.
type Store struct {
	root string // <analysisPath>/ on disk

	sourceDependencies  *setMap
	products            *setMap
	externalDependencies *setMap // keyed by absolute external path -> dependents
	tests               *setMap // source -> class, super, kind joined by \x1f
	applications        *setMap
	projectDefinitions  *setMap

	hashMu sync.Mutex
	hashes map[string]string // source -> hex SHA-1

	lock *flock.Flock
}

// New returns a Store rooted at dir (the spec's `<analysisPath>/`). Nothing
// is read from disk until Load is called.
func New(dir string) *Store {
	return &Store{
		root:                 dir,
		sourceDependencies:   newSetMap(),
		products:             newSetMap(),
		externalDependencies: newSetMap(),
		tests:                newSetMap(),
		applications:         newSetMap(),
		projectDefinitions:   newSetMap(),
		hashes:               make(map[string]string),
		lock:                 flock.New(filepath.Join(dir, ".lock")),
	}
}

// AddSourceDependency records that from depends on on. Self-loops are
// dropped per spec.md §3.
func (s *Store) AddSourceDependency(from, on string) {
	s.sourceDependencies.ensure(from)
	if from == on {
		return
	}
	s.sourceDependencies.add(from, on)
}

// AddExternalDependency records that from depends on the external
// (absolute) file onFile.
func (s *Store) AddExternalDependency(onFile, from string) {
	s.externalDependencies.add(onFile, from)
}

// AddProduct records that source produced the artifact at product.
func (s *Store) AddProduct(source, product string) { s.products.add(source, product) }

// AddSource ensures source is present as a key with no dependencies yet,
// matching the spec's "first compile of a file" bookkeeping.
func (s *Store) AddSource(source string) { s.sourceDependencies.ensure(source) }

// AddTest records a discovered test class for source, tracking source
// itself if it is not tracked yet.
func (s *Store) AddTest(source string, def TestDefinition) {
	s.sourceDependencies.ensure(source)
	s.tests.add(source, encodeTest(def))
}

// AddApplication records that source defines an entry-point class.
func (s *Store) AddApplication(source, className string) {
	s.applications.add(source, className)
}

// AddProjectDefinition records that source defines a project-class.
func (s *Store) AddProjectDefinition(source, className string) {
	s.projectDefinitions.add(source, className)
}

// Dependencies returns source's recorded source dependencies.
func (s *Store) Dependencies(source string) []string { return s.sourceDependencies.get(source) }

// Products returns source's recorded generated artifacts.
func (s *Store) Products(source string) []string { return s.products.get(source) }

// ExternalDependents returns every source depending on the given absolute
// external file.
func (s *Store) ExternalDependents(externalFile string) []string {
	return s.externalDependencies.get(externalFile)
}

// Tests returns source's discovered test definitions.
func (s *Store) Tests(source string) []TestDefinition {
	raw := s.tests.get(source)
	out := make([]TestDefinition, 0, len(raw))
	for _, r := range raw {
		out = append(out, decodeTest(r))
	}
	return out
}

// Applications returns source's discovered entry-point class names.
func (s *Store) Applications(source string) []string { return s.applications.get(source) }

// Sources returns every source currently tracked.
func (s *Store) Sources() []string { return s.sourceDependencies.keys() }

// HasSource reports whether source is tracked at all.
func (s *Store) HasSource(source string) bool { return s.sourceDependencies.has(source) }

// ExternalFiles returns every absolute external file with at least one
// dependent.
func (s *Store) ExternalFiles() []string { return s.externalDependencies.keys() }

// RemoveSource deletes source's recorded products from disk (best-effort)
// and removes it from every per-source map.
func (s *Store) RemoveSource(source string) error {
	var firstErr error
	for _, product := range s.products.get(source) {
		if err := os.Remove(product); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = buildutil.Wrap(buildutil.KindIO, err, "remove product %s", product)
		}
	}
	s.sourceDependencies.removeKey(source)
	s.products.removeKey(source)
	s.tests.removeKey(source)
	s.applications.removeKey(source)
	s.projectDefinitions.removeKey(source)
	s.ClearHash(source)
	s.RemoveDependent(source)
	return firstErr
}

// RemoveSelfDependency removes source from its own dependency set.
func (s *Store) RemoveSelfDependency(source string) {
	s.sourceDependencies.removeValue(source, source)
}

// RemoveDependent removes source from every value set across both
// source-keyed and external-keyed dependency maps.
func (s *Store) RemoveDependent(source string) {
	s.sourceDependencies.removeValueEverywhere(source)
	s.externalDependencies.removeValueEverywhere(source)
}

// RemoveDependencies removes source's key from the source-dependency map,
// so HasSource reports false for it afterwards.
func (s *Store) RemoveDependencies(source string) { s.sourceDependencies.removeKey(source) }

// RemoveExternalDependency removes an external file's key entirely.
func (s *Store) RemoveExternalDependency(externalFile string) {
	s.externalDependencies.removeKey(externalFile)
}

// SetHash records source's content hash as the SHA-1 of data.
func (s *Store) SetHash(source string, data []byte) {
	sum := sha1.Sum(data)
	s.hashMu.Lock()
	s.hashes[source] = hex.EncodeToString(sum[:])
	s.hashMu.Unlock()
}

// Hash returns source's recorded hash and whether one is present.
func (s *Store) Hash(source string) (string, bool) {
	s.hashMu.Lock()
	defer s.hashMu.Unlock()
	h, ok := s.hashes[source]
	return h, ok
}

// ClearHash removes source's recorded hash.
func (s *Store) ClearHash(source string) {
	s.hashMu.Lock()
	delete(s.hashes, source)
	s.hashMu.Unlock()
}

// ClearHashes removes every recorded hash.
func (s *Store) ClearHashes() {
	s.hashMu.Lock()
	s.hashes = make(map[string]string)
	s.hashMu.Unlock()
}

func encodeTest(def TestDefinition) string {
	return def.ClassName + "\x1f" + def.SuperClassName + "\x1f" + def.Kind
}

func decodeTest(encoded string) TestDefinition {
	parts := splitN3(encoded)
	return TestDefinition{ClassName: parts[0], SuperClassName: parts[1], Kind: parts[2]}
}

func splitN3(s string) [3]string {
	var out [3]string
	idx := 0
	start := 0
	for i := 0; i < len(s) && idx < 2; i++ {
		if s[i] == '\x1f' {
			out[idx] = s[start:i]
			idx++
			start = i + 1
		}
	}
	out[idx] = s[start:]
	return out
}
