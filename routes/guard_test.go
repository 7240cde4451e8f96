package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/routes"
	"github.com/stretchr/testify/require"
)

func signedIn(role authmodel.Role) authmodel.AuthState {
	return authmodel.NewAuthState(
		&authmodel.User{ID: "u1", Email: "x@example.com"},
		&authmodel.Profile{ID: "p1", UserID: "u1", Username: "x", Role: role},
	)
}

func TestGuard(t *testing.T) {
	loggedOut := authmodel.LoggedOut()
	parent := signedIn(authmodel.RoleParent)
	child := signedIn(authmodel.RoleChild)

	tests := []struct {
		name  string
		path  string
		state authmodel.AuthState
		want  routes.Decision
	}{
		{"public while logged out", "/", loggedOut, routes.Decision{Outcome: routes.Allow}},
		{"public while signed in", "/about", child, routes.Decision{Outcome: routes.Allow}},
		{"protected while logged out", "/parent/dashboard", loggedOut, routes.Decision{Outcome: routes.Redirect, Target: "/auth/login"}},
		{"login while logged out", "/auth/login", loggedOut, routes.Decision{Outcome: routes.Allow}},
		{"login while child", "/auth/login", child, routes.Decision{Outcome: routes.Redirect, Target: "/child/home"}},
		{"signup while parent", "/auth/signup", parent, routes.Decision{Outcome: routes.Redirect, Target: "/parent/dashboard"}},
		{"own subtree", "/parent/settings/kids", parent, routes.Decision{Outcome: routes.Allow}},
		{"subtree root", "/child", child, routes.Decision{Outcome: routes.Allow}},
		{"other role subtree", "/parent/dashboard", child, routes.Decision{Outcome: routes.Redirect, Target: "/child/home"}},
		{"unknown path logged out", "/reports", loggedOut, routes.Decision{Outcome: routes.Redirect, Target: "/auth/login"}},
		{"unknown path signed in", "/reports", child, routes.Decision{Outcome: routes.Allow}},
		{"prefix lookalike", "/parental", child, routes.Decision{Outcome: routes.Allow}},
		{"trailing slash", "/auth/login/", parent, routes.Decision{Outcome: routes.Redirect, Target: "/parent/dashboard"}},
		{"dot segments", "/about/../parent/x", loggedOut, routes.Decision{Outcome: routes.Redirect, Target: "/auth/login"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, routes.Guard(tt.path, tt.state))
		})
	}
}

func TestGuardIsDeterministic(t *testing.T) {
	state := signedIn(authmodel.RoleParent)
	first := routes.Guard("/child/home", state)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, routes.Guard("/child/home", state))
	}
}

func TestMiddleware(t *testing.T) {
	state := authmodel.LoggedOut()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := routes.Middleware(func(*http.Request) authmodel.AuthState { return state })(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/child/home", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/auth/login", rec.Header().Get("Location"))

	state = signedIn(authmodel.RoleChild)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/child/home", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLanding(t *testing.T) {
	require.Equal(t, "/parent/dashboard", routes.Landing(authmodel.RoleParent))
	require.Equal(t, "/child/home", routes.Landing(authmodel.RoleChild))
	require.Equal(t, "/", routes.Landing(""))
}
