package routes

import (
	"net/http"
	"path"
	"strings"

	"github.com/jrsteele09/go-auth-session/authmodel"
)

// Outcome is what a navigation should do.
type Outcome int

const (
	Allow Outcome = iota
	Redirect
)

func (o Outcome) String() string {
	if o == Redirect {
		return "redirect"
	}
	return "allow"
}

// Decision is the result of Guard. Target is set for redirects.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Allowed reports whether the navigation may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Allow
}

func allow() Decision { return Decision{Outcome: Allow} }

func redirect(target string) Decision { return Decision{Outcome: Redirect, Target: target} }

// Access is the authentication a path requires.
type Access int

const (
	Public Access = iota
	LoginOnly
	Authenticated
)

var publicPaths = map[string]bool{
	RouteHome:    true,
	RouteAbout:   true,
	RouteHealthz: true,
}

var loginOnlyPaths = map[string]bool{
	RouteLogin:          true,
	RouteSignup:         true,
	RouteForgotPassword: true,
}

// Landing returns the home route for role, or RouteHome if unknown.
func Landing(role authmodel.Role) string {
	switch role {
	case authmodel.RoleParent:
		return RouteParentDashboard
	case authmodel.RoleChild:
		return RouteChildHome
	}
	return RouteHome
}

// RequiredAccess classifies p. Paths that are neither public nor
// login-only require authentication.
func RequiredAccess(p string) Access {
	p = clean(p)
	switch {
	case publicPaths[p]:
		return Public
	case loginOnlyPaths[p]:
		return LoginOnly
	}
	return Authenticated
}

// RequiredRole returns the role owning p's subtree, or "" if any
// authenticated user may visit it.
func RequiredRole(p string) authmodel.Role {
	p = clean(p)
	switch {
	case within(p, RouteParentPrefix):
		return authmodel.RoleParent
	case within(p, RouteChildPrefix):
		return authmodel.RoleChild
	}
	return ""
}

// Guard decides whether a navigation to p may proceed for state. It is
// pure and deterministic.
func Guard(p string, state authmodel.AuthState) Decision {
	switch RequiredAccess(p) {
	case Public:
		return allow()
	case LoginOnly:
		if state.IsAuthenticated {
			return redirect(Landing(state.Role()))
		}
		return allow()
	}

	if !state.IsAuthenticated {
		return redirect(RouteLogin)
	}
	if role := RequiredRole(p); role != "" && role != state.Role() {
		return redirect(Landing(state.Role()))
	}
	return allow()
}

// StateFunc resolves the auth state that applies to a request.
type StateFunc func(r *http.Request) authmodel.AuthState

// Middleware applies Guard to every request using the state returned by
// stateFunc, redirecting with 303 See Other when denied.
func Middleware(stateFunc StateFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := Guard(r.URL.Path, stateFunc(r))
			if !d.Allowed() {
				http.Redirect(w, r, d.Target, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clean(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func within(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
