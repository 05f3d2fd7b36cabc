package depmgr

import (
	"fmt"
	"strings"

	"github.com/foundryhq/foundry/internal/buildutil"
)

// canonicalReleaseRepo is the façade's built-in fallback resolver, appended
// last to every chain unless ErrorIfNoConfig is set.
var canonicalReleaseRepo = Resolver{
	Name:    "foundry-central",
	Kind:    ResolverMaven,
	RootURL: "https://repo.foundry-central.example/releases",
}

// buildChain assembles the spec's "redefined-public" resolver chain: any
// previously-configured default resolver, then the inline resolvers in
// declaration order, then the canonical release repository.
func buildChain(defaultResolver *Resolver, inline []Resolver, allowCanonical bool) []Resolver {
	chain := make([]Resolver, 0, len(inline)+2)
	if defaultResolver != nil {
		chain = append(chain, *defaultResolver)
	}
	chain = append(chain, inline...)
	if allowCanonical {
		chain = append(chain, canonicalReleaseRepo)
	}
	return chain
}

// artifactSource computes the source locator a resolver would hand to
// the retrieval step for a given module and artifact extension. Maven
// resolvers follow the standard org/name/revision layout; pattern
// resolvers substitute the module's fields into ArtifactPattern.
func artifactSource(r Resolver, mod ModuleID, ext string) (string, error) {
	switch r.Kind {
	case ResolverMaven:
		orgPath := strings.ReplaceAll(mod.Organization, ".", "/")
		return fmt.Sprintf("%s/%s/%s/%s/%s-%s.%s", r.RootURL, orgPath, mod.Name, mod.Revision, mod.Name, mod.Revision, ext), nil
	case ResolverPattern:
		if r.ArtifactPattern == "" {
			return "", buildutil.New(buildutil.KindResolution, "resolver %q declares no artifact pattern", r.Name)
		}
		return substitutePattern(r.ArtifactPattern, mod, ext), nil
	default:
		return "", buildutil.New(buildutil.KindResolution, "resolver %q has unknown kind", r.Name)
	}
}

// substitutePattern expands an Ivy-style pattern string using a module's
// fields. Supported placeholders: [organisation], [module], [revision],
// [artifact], [ext].
func substitutePattern(pattern string, mod ModuleID, ext string) string {
	replacer := strings.NewReplacer(
		"[organisation]", mod.Organization,
		"[module]", mod.Name,
		"[revision]", mod.Revision,
		"[artifact]", mod.Name,
		"[ext]", ext,
	)
	return replacer.Replace(pattern)
}

// transportURL wraps a resolver's scheme with its configured transport
// and credentials, producing the URL go-getter's detectors expect (e.g.
// a "ssh::" or "file::" forced-protocol prefix, or userinfo for basic
// auth against an HTTP resolver).
func transportURL(r Resolver, rawURL string) string {
	url := rawURL
	if r.Auth != nil && r.Auth.Username != "" {
		if idx := strings.Index(url, "://"); idx >= 0 {
			cred := r.Auth.Username
			if r.Auth.Password != "" {
				cred += ":" + r.Auth.Password
			}
			url = url[:idx+3] + cred + "@" + url[idx+3:]
		}
	}
	if r.Transport != "" {
		url = r.Transport + "::" + url
	}
	return url
}
