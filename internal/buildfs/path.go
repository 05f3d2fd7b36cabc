// Package buildfs implements the project-relative path abstraction, the
// lazily evaluated PathFinder expression language, and the buffered file
// I/O primitives described in the spec's Path & Filesystem Abstractions
// component. It is grounded on the teacher's internal/util glob and file
// helpers, generalized from Terraform-module paths to arbitrary project
// source trees.
package buildfs

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// Path is a project-relative file reference. It is either the project root,
// a (parent, final-component) pair, or a path wrapped as an explicit
// base-directory marker. Two Paths are equal iff they resolve to the same
// underlying file.
type Path struct {
	root    string // absolute project root
	rel     string // slash-separated path relative to root; "" is the root itself
	baseRel string // rel of the nearest enclosing base-directory marker; "" means the project root
}

// NewRoot returns the Path representing the project root itself.
func NewRoot(root string) (Path, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Path{}, buildutil.Wrap(buildutil.KindIO, err, "resolve project root %q", root)
	}
	return Path{root: filepath.Clean(abs)}, nil
}

// Child returns the Path for a single path component under parent. The
// component may not be empty, contain a path separator, or be "." or "..".
func (p Path) Child(name string) (Path, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return Path{}, buildutil.New(buildutil.KindIO, "invalid path component %q", name)
	}
	child := p
	if p.rel == "" {
		child.rel = name
	} else {
		child.rel = p.rel + "/" + name
	}
	return child, nil
}

// WithBase marks p as an explicit base-directory marker: relative-path
// computations for its descendants are taken against p instead of the
// project root.
func (p Path) WithBase() Path {
	base := p
	base.baseRel = p.rel
	return base
}

// AsBaseFor returns a copy of target whose nearest base marker is p. Used by
// finders so everything produced under a base directory reports relative
// paths rooted at that base.
func (p Path) AsBaseFor(target Path) Path {
	target.baseRel = p.rel
	return target
}

// Root reports the absolute project root this path was constructed from.
func (p Path) Root() string { return p.root }

// AbsPath returns the OS path to the underlying file.
func (p Path) AbsPath() string {
	if p.rel == "" {
		return p.root
	}
	return filepath.Join(p.root, filepath.FromSlash(p.rel))
}

// RelPath returns the path relative to the nearest base-directory marker,
// or the project root if there is none.
func (p Path) RelPath() string {
	if p.baseRel == "" {
		return p.rel
	}
	rel := strings.TrimPrefix(p.rel, p.baseRel)
	return strings.TrimPrefix(rel, "/")
}

// ProjectRelPath returns the path relative to the project root regardless
// of any base-directory marker. The analysis store persists this form.
func (p Path) ProjectRelPath() string { return p.rel }

// ModTime returns the modification time of the underlying file.
func (p Path) ModTime() (time.Time, error) {
	info, err := os.Stat(p.AbsPath())
	if err != nil {
		return time.Time{}, buildutil.Wrap(buildutil.KindIO, err, "stat %s", p.AbsPath())
	}
	return info.ModTime(), nil
}

// Exists reports whether the underlying file is present.
func (p Path) Exists() bool {
	_, err := os.Stat(p.AbsPath())
	return err == nil
}

// Name returns the final path component.
func (p Path) Name() string {
	if p.rel == "" {
		return filepath.Base(p.root)
	}
	idx := strings.LastIndexByte(p.rel, '/')
	if idx < 0 {
		return p.rel
	}
	return p.rel[idx+1:]
}

// FromAbs builds a Path for an absolute file known to live under root. It
// returns ok=false if abs is not within root's canonical directory.
func FromAbs(root, abs string) (p Path, ok bool) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return Path{}, false
	}
	absTarget, err := filepath.Abs(abs)
	if err != nil {
		return Path{}, false
	}
	absRoot = filepath.Clean(absRoot)
	absTarget = filepath.Clean(absTarget)
	if absTarget == absRoot {
		return Path{root: absRoot}, true
	}
	rel, err := filepath.Rel(absRoot, absTarget)
	if err != nil || strings.HasPrefix(rel, "..") {
		return Path{}, false
	}
	return Path{root: absRoot, rel: filepath.ToSlash(rel)}, true
}

// Relativize returns a path relative to base iff target lies within base's
// canonical directory; otherwise ok is false.
func Relativize(base, target Path) (rel string, ok bool) {
	if !strings.HasPrefix(target.rel, base.rel) {
		return "", false
	}
	if target.rel == base.rel {
		return "", true
	}
	trimmed := strings.TrimPrefix(target.rel, base.rel)
	trimmed = strings.TrimPrefix(trimmed, "/")
	if base.rel != "" && !strings.HasPrefix(target.rel, base.rel+"/") {
		return "", false
	}
	return trimmed, true
}
