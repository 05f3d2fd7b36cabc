package buildfs

import (
	"regexp"
	"strings"
	"unicode"
)

// NameFilter decides whether a bare file name matches some predicate. It is
// deliberately blind to directory structure; PathFinder combines it with
// traversal.
type NameFilter interface {
	Matches(name string) bool
}

type nameFilterFunc func(string) bool

func (f nameFilterFunc) Matches(name string) bool { return f(name) }

// AllPass matches every name.
var AllPass NameFilter = nameFilterFunc(func(string) bool { return true })

// NoPass matches no name.
var NoPass NameFilter = nameFilterFunc(func(string) bool { return false })

// ExactFilter matches a single literal name.
func ExactFilter(name string) NameFilter {
	return nameFilterFunc(func(n string) bool { return n == name })
}

// hasControlChar rejects glob/regex expressions containing control
// characters, per the spec's invariant on NameFilter expressions.
func hasControlChar(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// GlobFilter builds a filter from a glob expression where '*' matches zero
// or more characters and no other glob metacharacters are recognized.
// GlobFilter("*") is equivalent to AllPass; a glob with no '*' is equivalent
// to ExactFilter.
func GlobFilter(expr string) NameFilter {
	if hasControlChar(expr) {
		return NoPass
	}
	if expr == "*" {
		return AllPass
	}
	if !strings.Contains(expr, "*") {
		return ExactFilter(expr)
	}
	parts := strings.Split(expr, "*")
	pattern := "^"
	for i, part := range parts {
		if i > 0 {
			pattern += ".*"
		}
		pattern += regexp.QuoteMeta(part)
	}
	pattern += "$"
	re := regexp.MustCompile(pattern)
	return nameFilterFunc(re.MatchString)
}

// RegexFilter builds a filter from a regular expression anchored at both
// ends, rejecting expressions containing control characters.
func RegexFilter(expr string) (NameFilter, error) {
	if hasControlChar(expr) {
		return NoPass, nil
	}
	re, err := regexp.Compile("^(?:" + expr + ")$")
	if err != nil {
		return nil, err
	}
	return nameFilterFunc(re.MatchString), nil
}

// Or combines filters so that a name matches if any of them does.
func Or(filters ...NameFilter) NameFilter {
	return nameFilterFunc(func(name string) bool {
		for _, f := range filters {
			if f.Matches(name) {
				return true
			}
		}
		return false
	})
}

// And combines filters so that a name matches only if all of them do.
func And(filters ...NameFilter) NameFilter {
	return nameFilterFunc(func(name string) bool {
		for _, f := range filters {
			if !f.Matches(name) {
				return false
			}
		}
		return true
	})
}

// Diff matches names accepted by a but rejected by b.
func Diff(a, b NameFilter) NameFilter {
	return nameFilterFunc(func(name string) bool { return a.Matches(name) && !b.Matches(name) })
}

// Not negates a filter.
func Not(f NameFilter) NameFilter {
	return nameFilterFunc(func(name string) bool { return !f.Matches(name) })
}
