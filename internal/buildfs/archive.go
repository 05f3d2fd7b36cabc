package buildfs

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// Manifest is the small name/value pairing the spec's jar format carries,
// optionally merged section-by-section from several user-supplied
// manifests.
type Manifest struct {
	Main     map[string]string
	Sections map[string]map[string]string
}

// Merge folds other into m, with other's values winning per-attribute.
func (m *Manifest) Merge(other Manifest) {
	if m.Main == nil {
		m.Main = map[string]string{}
	}
	for k, v := range other.Main {
		m.Main[k] = v
	}
	if m.Sections == nil {
		m.Sections = map[string]map[string]string{}
	}
	for section, attrs := range other.Sections {
		dst := m.Sections[section]
		if dst == nil {
			dst = map[string]string{}
			m.Sections[section] = dst
		}
		for k, v := range attrs {
			dst[k] = v
		}
	}
}

const manifestEntryName = "META-INF/MANIFEST.MF"

func renderManifest(m Manifest) string {
	var b strings.Builder
	b.WriteString("Manifest-Version: 1.0\n")
	for k, v := range m.Main {
		b.WriteString(k + ": " + v + "\n")
	}
	for section, attrs := range m.Sections {
		b.WriteString("\nName: " + section + "\n")
		for k, v := range attrs {
			b.WriteString(k + ": " + v + "\n")
		}
	}
	return b.String()
}

// Archive writes a zip (manifest == nil) or jar (manifest != nil) containing
// each source at its path relative to its base (Path.RelPath), preserving
// modification times.
func Archive(sources []Path, outputPath string, manifest *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "mkdir %s", filepath.Dir(outputPath))
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "create %s", outputPath)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	defer zw.Close()

	if manifest != nil {
		if err := writeZipEntry(zw, manifestEntryName, []byte(renderManifest(*manifest))); err != nil {
			return err
		}
	}
	for _, src := range sources {
		info, err := os.Stat(src.AbsPath())
		if err != nil {
			return buildutil.Wrap(buildutil.KindIO, err, "stat %s", src.AbsPath())
		}
		data, err := os.ReadFile(src.AbsPath())
		if err != nil {
			return buildutil.Wrap(buildutil.KindIO, err, "read %s", src.AbsPath())
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return buildutil.Wrap(buildutil.KindIO, err, "header for %s", src.AbsPath())
		}
		hdr.Name = src.RelPath()
		hdr.Method = zip.Deflate
		hdr.Modified = info.ModTime()
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return buildutil.Wrap(buildutil.KindIO, err, "add entry %s", hdr.Name)
		}
		if _, err := w.Write(data); err != nil {
			return buildutil.Wrap(buildutil.KindIO, err, "write entry %s", hdr.Name)
		}
	}
	return nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "add entry %s", name)
	}
	_, err = w.Write(data)
	return err
}

// Unzip extracts entries matching nameFilter into destDir, restoring
// directory structure and per-entry modification times. It returns the set
// of destination paths written.
func Unzip(inputPath, destDir string, nameFilter NameFilter) ([]string, error) {
	r, err := zip.OpenReader(inputPath)
	if err != nil {
		return nil, buildutil.Wrap(buildutil.KindIO, err, "open %s", inputPath)
	}
	defer r.Close()

	var written []string
	for _, f := range r.File {
		if !nameFilter.Matches(filepath.Base(f.Name)) {
			continue
		}
		dst := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return nil, buildutil.Wrap(buildutil.KindIO, err, "mkdir %s", dst)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, buildutil.Wrap(buildutil.KindIO, err, "mkdir %s", filepath.Dir(dst))
		}
		rc, err := f.Open()
		if err != nil {
			return nil, buildutil.Wrap(buildutil.KindIO, err, "open entry %s", f.Name)
		}
		out, err := os.Create(dst)
		if err != nil {
			rc.Close()
			return nil, buildutil.Wrap(buildutil.KindIO, err, "create %s", dst)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if copyErr != nil {
			return nil, buildutil.Wrap(buildutil.KindIO, copyErr, "write %s", dst)
		}
		if err := os.Chtimes(dst, f.Modified, f.Modified); err != nil {
			return nil, buildutil.Wrap(buildutil.KindIO, err, "chtimes %s", dst)
		}
		written = append(written, dst)
	}
	return written, nil
}
