package analysis

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// File names under the analysis directory, one per tracked map, matching
// spec.md §4.6.
const (
	fileDependencies = "dependencies"
	fileProducts     = "generated_files"
	fileExternal     = "external"
	fileHashes       = "hashes"
	fileTests        = "tests"
	fileApplications = "applications"
	fileProjects     = "projects"

	lockRetryInterval = 50 * time.Millisecond
)

// Save ensures the analysis directory exists, then writes every map file in
// turn, returning the first error encountered. A process-wide flock guards
// the write so two concurrent Foundry processes never corrupt the same
// analysis directory.
func (s *Store) Save() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create analysis dir %s", s.root)
	}
	locked, err := s.lock.TryLockContext(context.Background(), lockRetryInterval)
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "lock analysis dir %s", s.root)
	}
	if !locked {
		return buildutil.New(buildutil.KindIO, "analysis dir %s is locked by another process", s.root)
	}
	defer s.lock.Unlock()

	writers := []struct {
		file  string
		label string
		write func(*bufio.Writer) error
	}{
		{fileDependencies, "source dependencies", func(w *bufio.Writer) error { return writeSetMap(w, s.sourceDependencies) }},
		{fileProducts, "generated files", func(w *bufio.Writer) error { return writeSetMap(w, s.products) }},
		{fileExternal, "external dependencies", func(w *bufio.Writer) error { return writeSetMap(w, s.externalDependencies) }},
		{fileHashes, "source hashes", s.writeHashes},
		{fileTests, "discovered tests", func(w *bufio.Writer) error { return writeSetMap(w, s.tests) }},
		{fileApplications, "discovered applications", func(w *bufio.Writer) error { return writeSetMap(w, s.applications) }},
		{fileProjects, "project definitions", func(w *bufio.Writer) error { return writeSetMap(w, s.projectDefinitions) }},
	}
	for _, wr := range writers {
		if err := s.writeFile(wr.file, wr.label, wr.write); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeFile(name, label string, write func(*bufio.Writer) error) error {
	path := filepath.Join(s.root, name)
	f, err := os.Create(path)
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create %s", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# %s\n", label)
	if err := write(w); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "write %s", path)
	}
	return w.Flush()
}

func (s *Store) writeHashes(w *bufio.Writer) error {
	s.hashMu.Lock()
	defer s.hashMu.Unlock()
	for source, hash := range s.hashes {
		fmt.Fprintf(w, "%s\t%s\n", escapeField(source), hash)
	}
	return nil
}

func writeSetMap(w *bufio.Writer, m *setMap) error {
	snap := m.snapshot()
	for key, values := range snap {
		fmt.Fprintf(w, "%s", escapeField(key))
		for _, v := range values {
			fmt.Fprintf(w, "\t%s", escapeField(v))
		}
		fmt.Fprint(w, "\n")
	}
	return nil
}

// Load reads every map file, defaulting to an empty map when a file is
// absent (a project's first run has no prior analysis).
func (s *Store) Load() error {
	maps := []struct {
		file string
		m    *setMap
	}{
		{fileDependencies, s.sourceDependencies},
		{fileProducts, s.products},
		{fileExternal, s.externalDependencies},
		{fileTests, s.tests},
		{fileApplications, s.applications},
		{fileProjects, s.projectDefinitions},
	}
	for _, entry := range maps {
		snap, err := readSetMapFile(filepath.Join(s.root, entry.file))
		if err != nil {
			return err
		}
		entry.m.replace(snap)
	}
	hashes, err := readHashesFile(filepath.Join(s.root, fileHashes))
	if err != nil {
		return err
	}
	s.hashMu.Lock()
	s.hashes = hashes
	s.hashMu.Unlock()
	return nil
}

// Revert discards in-memory changes, reloading from disk. It is equivalent
// to Load.
func (s *Store) Revert() error { return s.Load() }

func readSetMapFile(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "open %s", path)
	}
	defer f.Close()

	out := make(map[string][]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		key := unescapeField(fields[0])
		values := make([]string, 0, len(fields)-1)
		for _, f := range fields[1:] {
			values = append(values, unescapeField(f))
		}
		out[key] = values
	}
	if err := scanner.Err(); err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "scan %s", path)
	}
	return out, nil
}

func readHashesFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "open %s", path)
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, "\t", 2)
		if len(fields) != 2 {
			continue
		}
		out[unescapeField(fields[0])] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "scan %s", path)
	}
	return out, nil
}

// escapeField/unescapeField guard against a path containing a literal tab
// or newline, which would otherwise corrupt the line-oriented format.
func escapeField(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\t", `\t`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func unescapeField(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

