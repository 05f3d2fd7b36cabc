package buildfs

import (
	"io"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// DefaultCharset is the charset ReadString/WriteString use when the caller
// does not ask for one explicitly. Foundry supports only UTF-8; a caller
// asking for anything else gets a refusal rather than mojibake.
const DefaultCharset = "UTF-8"

// Copy copies each source, preserving its project-relative path under
// destDir, recreating directory structure as needed. A destination file
// newer than its source is left untouched. It returns the set of
// destination paths written.
func Copy(sources []Path, destDir string) ([]string, error) {
	var written []string
	for _, src := range sources {
		dst := filepath.Join(destDir, filepath.FromSlash(src.RelPath()))
		wrote, err := copyIfNewer(src.AbsPath(), dst)
		if err != nil {
			return nil, err
		}
		if wrote {
			written = append(written, dst)
		}
	}
	return written, nil
}

// CopyFlat copies each source by filename only. On a name collision the
// last write wins, but the returned set records exactly one destination per
// unique name.
func CopyFlat(sources []Path, destDir string) ([]string, error) {
	seen := make(map[string]bool)
	var written []string
	for _, src := range sources {
		dst := filepath.Join(destDir, src.Name())
		if _, err := copyIfNewer(src.AbsPath(), dst); err != nil {
			return nil, err
		}
		if !seen[dst] {
			seen[dst] = true
			written = append(written, dst)
		}
	}
	return written, nil
}

func copyIfNewer(src, dst string) (bool, error) {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return false, buildutil.Wrap(buildutil.KindIO, err, "stat source %s", src)
	}
	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.ModTime().After(srcInfo.ModTime()) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, buildutil.Wrap(buildutil.KindIO, err, "mkdir %s", filepath.Dir(dst))
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return false, buildutil.Wrap(buildutil.KindIO, err, "read %s", src)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return false, buildutil.Wrap(buildutil.KindIO, err, "write %s", dst)
	}
	if err := os.Chtimes(dst, time.Now(), srcInfo.ModTime()); err != nil {
		return false, buildutil.Wrap(buildutil.KindIO, err, "chtimes %s", dst)
	}
	return true, nil
}

// Sync copies sourceDir into destDir (recreating structure) and then
// deletes any file under destDir absent from sourceDir.
func Sync(sourceDir, destDir string) error {
	var toCopy []string
	err := filepath.WalkDir(sourceDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		toCopy = append(toCopy, rel)
		return nil
	})
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "walk %s", sourceDir)
	}
	keep := make(map[string]bool, len(toCopy))
	for _, rel := range toCopy {
		keep[rel] = true
		if _, err := copyIfNewer(filepath.Join(sourceDir, rel), filepath.Join(destDir, rel)); err != nil {
			return err
		}
	}
	return filepath.WalkDir(destDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, relErr := filepath.Rel(destDir, path)
		if relErr != nil {
			return relErr
		}
		if !keep[rel] {
			return os.Remove(path)
		}
		return nil
	})
}

// Clean recursively deletes each path. quiet suppresses "already absent"
// handling failures; either way it returns the first error encountered.
func Clean(paths []string, quiet bool) error {
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil {
			if quiet && os.IsNotExist(err) {
				continue
			}
			return buildutil.Wrap(buildutil.KindIO, err, "clean %s", p)
		}
	}
	return nil
}

// ReadString reads the whole file as a string using charset, which must be
// DefaultCharset ("UTF-8"); any other value is rejected rather than
// silently misdecoded.
func ReadString(path, charset string) (string, error) {
	if charset != DefaultCharset {
		return "", buildutil.New(buildutil.KindIO, "unsupported charset %q reading %s", charset, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", buildutil.Wrap(buildutil.KindIO, err, "read %s", path)
	}
	return string(b), nil
}

// WriteString writes s to path using charset. The write is refused if s is
// not valid UTF-8 or charset is not DefaultCharset.
func WriteString(path, s, charset string) error {
	if charset != DefaultCharset {
		return buildutil.New(buildutil.KindIO, "unsupported charset %q writing %s", charset, path)
	}
	if !utf8.ValidString(s) {
		return buildutil.New(buildutil.KindIO, "string not encodable as %s: %s", charset, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "mkdir %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "write %s", path)
	}
	return nil
}

// ReadBytes reads the whole file.
func ReadBytes(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "read %s", path)
	}
	return b, nil
}

// WriteBytes writes b to path.
func WriteBytes(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "mkdir %s", filepath.Dir(path))
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "write %s", path)
	}
	return nil
}

// ReadValue opens path and hands the *os.File to f, closing it afterward
// regardless of outcome.
func ReadValue[T any](path string, f func(io.Reader) (T, error)) (T, error) {
	var zero T
	file, err := os.Open(path)
	if err != nil {
		return zero, buildutil.Wrap(buildutil.KindIO, err, "open %s", path)
	}
	defer file.Close()
	return f(file)
}
