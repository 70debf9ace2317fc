package auth

import (
	"fmt"
	"net/url"
	"strings"
)

// RouteClass is the access category of a request path.
type RouteClass int

const (
	// RouteOther passes through without a session.
	RouteOther RouteClass = iota

	// RouteExcluded passes through without even looking up a session.
	RouteExcluded

	// RouteProtected requires a session; browsers are redirected to login.
	RouteProtected

	// RoutePublic is for anonymous pages; signed-in users go to the landing page.
	RoutePublic

	// RouteAPI requires a session; failures get a 401 JSON body.
	RouteAPI
)

func (c RouteClass) String() string {
	switch c {
	case RouteExcluded:
		return "excluded"
	case RouteProtected:
		return "protected"
	case RoutePublic:
		return "public"
	case RouteAPI:
		return "api"
	default:
		return "other"
	}
}

// routeEntry is one list item. A prefix entry matches the path itself and
// anything below it; an exact entry matches only itself.
type routeEntry struct {
	path  string
	exact bool
}

func (r routeEntry) match(path string) bool {
	if r.exact {
		return path == r.path
	}
	return path == r.path || strings.HasPrefix(path, r.path+"/")
}

// RoutePolicy holds the ordered route lists consulted by the gate.
type RoutePolicy struct {
	excluded  []routeEntry
	protected []routeEntry
	public    []routeEntry

	// LoginPath is where unauthenticated browsers are sent.
	LoginPath string

	// LandingPath is where authenticated users visiting public pages go.
	LandingPath string
}

// RouteLists is the raw configuration for a RoutePolicy. A path of "/"
// matches only the root.
type RouteLists struct {
	Excluded  []string
	Protected []string
	Public    []string
}

// DefaultRouteLists returns Warden's built-in route configuration.
func DefaultRouteLists() RouteLists {
	return RouteLists{
		Excluded: []string{
			"/static",
			"/favicon.ico",
			"/images",
			"/icons",
			"/healthz",
			"/api/auth/login",
			"/api/auth/logout",
			"/api/auth/me",
			"/api/auth/signup",
			"/api/auth/recovery",
		},
		Protected: []string{
			"/",
			"/profile",
		},
		Public: []string{
			"/auth/login",
			"/auth/signup",
			"/auth/recovery",
			"/auth/forgot-password",
		},
	}
}

// NewRoutePolicy builds a policy from lists. It returns an error when any
// entry of one list would also match an entry of another, so no path can
// fall into two categories.
func NewRoutePolicy(lists RouteLists) (*RoutePolicy, error) {
	p := &RoutePolicy{
		excluded:    toEntries(lists.Excluded),
		protected:   toEntries(lists.Protected),
		public:      toEntries(lists.Public),
		LoginPath:   "/auth/login",
		LandingPath: "/",
	}

	groups := []struct {
		name    string
		entries []routeEntry
	}{
		{"excluded", p.excluded},
		{"protected", p.protected},
		{"public", p.public},
	}
	for i := range groups {
		for j := i + 1; j < len(groups); j++ {
			for _, a := range groups[i].entries {
				for _, b := range groups[j].entries {
					if a.match(b.path) || b.match(a.path) {
						return nil, fmt.Errorf("route %q (%s) overlaps %q (%s)",
							a.path, groups[i].name, b.path, groups[j].name)
					}
				}
			}
		}
	}
	return p, nil
}

func toEntries(paths []string) []routeEntry {
	out := make([]routeEntry, 0, len(paths))
	for _, p := range paths {
		if p == "/" {
			out = append(out, routeEntry{path: "/", exact: true})
			continue
		}
		out = append(out, routeEntry{path: strings.TrimSuffix(p, "/")})
	}
	return out
}

// Classify maps path to exactly one RouteClass. Lists are checked in the
// order excluded, protected, public, then the /api prefix.
func (p *RoutePolicy) Classify(path string) RouteClass {
	if matchAny(p.excluded, path) {
		return RouteExcluded
	}
	if matchAny(p.protected, path) {
		return RouteProtected
	}
	if matchAny(p.public, path) {
		return RoutePublic
	}
	if path == "/api" || strings.HasPrefix(path, "/api/") {
		return RouteAPI
	}
	return RouteOther
}

func matchAny(entries []routeEntry, path string) bool {
	for _, e := range entries {
		if e.match(path) {
			return true
		}
	}
	return false
}

// LoginRedirect returns the login URL carrying path as the return target.
func (p *RoutePolicy) LoginRedirect(path string) string {
	target := strings.ReplaceAll(url.QueryEscape(path), "%2F", "/")
	return p.LoginPath + "?redirect=" + target
}
