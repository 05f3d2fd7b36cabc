package buildfs

import (
	"os"
	"sort"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// Finder is a lazily evaluated, set-valued filesystem expression. Get
// re-evaluates against the live filesystem every time it is called; results
// are never cached across calls.
type Finder interface {
	Get() ([]Path, error)
}

type finderFunc func() ([]Path, error)

func (f finderFunc) Get() ([]Path, error) { return f() }

// Literal returns a finder yielding exactly the given paths.
func Literal(paths ...Path) Finder {
	cp := append([]Path(nil), paths...)
	return finderFunc(func() ([]Path, error) { return cp, nil })
}

// Child looks up a single literal child of base, regardless of whether it
// exists.
func Child(base Path, name string) Finder {
	return finderFunc(func() ([]Path, error) {
		p, err := base.Child(name)
		if err != nil {
			return nil, err
		}
		return []Path{p}, nil
	})
}

// Children returns the immediate entries of base whose name matches filter.
func Children(base Path, filter NameFilter) Finder {
	return finderFunc(func() ([]Path, error) {
		entries, err := os.ReadDir(base.AbsPath())
		if os.IsNotExist(err) {
			return nil, nil
		}
		if err != nil {
			return nil, buildutil.Wrap(buildutil.KindIO, err, "read dir %s", base.AbsPath())
		}
		var out []Path
		for _, e := range entries {
			if !filter.Matches(e.Name()) {
				continue
			}
			p, err := base.Child(e.Name())
			if err != nil {
				continue
			}
			out = append(out, p)
		}
		return out, nil
	})
}

// Descendants returns every descendant of base (at any depth) whose name
// matches filter.
func Descendants(base Path, filter NameFilter) Finder {
	return finderFunc(func() ([]Path, error) {
		var out []Path
		err := walk(base, func(p Path, isDir bool) error {
			if p.AbsPath() == base.AbsPath() {
				return nil
			}
			if !isDir && filter.Matches(p.Name()) {
				out = append(out, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// DescendantsExcept selects descendants matching include whose ancestor
// chain (up to, but not including, base) contains no name matching exclude.
func DescendantsExcept(base Path, include, exclude NameFilter) Finder {
	return finderFunc(func() ([]Path, error) {
		var out []Path
		err := walkPruned(base, exclude, func(p Path, isDir bool) error {
			if p.AbsPath() == base.AbsPath() {
				return nil
			}
			if !isDir && include.Matches(p.Name()) {
				out = append(out, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func walk(base Path, visit func(Path, bool) error) error {
	info, err := os.Stat(base.AbsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "stat %s", base.AbsPath())
	}
	if err := visit(base, info.IsDir()); err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	entries, err := os.ReadDir(base.AbsPath())
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "read dir %s", base.AbsPath())
	}
	for _, e := range entries {
		child, err := base.Child(e.Name())
		if err != nil {
			continue
		}
		if err := walk(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// walkPruned is like walk but never descends into a directory whose own
// name matches prune (the base directory itself is exempt).
func walkPruned(base Path, prune NameFilter, visit func(Path, bool) error) error {
	info, err := os.Stat(base.AbsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "stat %s", base.AbsPath())
	}
	if err := visit(base, info.IsDir()); err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	entries, err := os.ReadDir(base.AbsPath())
	if err != nil {
		return buildutil.Wrap(buildutil.KindIO, err, "read dir %s", base.AbsPath())
	}
	for _, e := range entries {
		if e.IsDir() && prune.Matches(e.Name()) {
			continue
		}
		child, err := base.Child(e.Name())
		if err != nil {
			continue
		}
		if err := walkPruned(child, prune, visit); err != nil {
			return err
		}
	}
	return nil
}

// Union evaluates both finders and returns their deduplicated set union.
func Union(finders ...Finder) Finder {
	return finderFunc(func() ([]Path, error) { return combine(finders, true) })
}

// Difference evaluates a and b and returns the paths in a not present in b.
func Difference(a, b Finder) Finder {
	return finderFunc(func() ([]Path, error) {
		left, err := a.Get()
		if err != nil {
			return nil, err
		}
		right, err := b.Get()
		if err != nil {
			return nil, err
		}
		exclude := make(map[string]bool, len(right))
		for _, p := range right {
			exclude[p.AbsPath()] = true
		}
		var out []Path
		for _, p := range left {
			if !exclude[p.AbsPath()] {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

func combine(finders []Finder, dedup bool) ([]Path, error) {
	seen := make(map[string]bool)
	var out []Path
	for _, f := range finders {
		paths, err := f.Get()
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			if dedup {
				if seen[p.AbsPath()] {
					continue
				}
				seen[p.AbsPath()] = true
			}
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AbsPath() < out[j].AbsPath() })
	return out, nil
}
