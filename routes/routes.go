// Package routes names the application's paths and decides, from the
// current auth state alone, whether a navigation may proceed.
package routes

// Route path constants
const (
	// Public
	RouteHome    = "/"
	RouteAbout   = "/about"
	RouteHealthz = "/healthz"

	// Login-only surfaces
	RouteLogin          = "/auth/login"
	RouteSignup         = "/auth/signup"
	RouteForgotPassword = "/auth/forgot-password"

	// Protected subtrees
	RouteParentPrefix = "/parent"
	RouteChildPrefix  = "/child"

	// Role landing pages
	RouteParentDashboard = "/parent/dashboard"
	RouteChildHome       = "/child/home"

	// Tab control API, served outside the guard
	RouteAPITabs     = "/api/tabs"
	RouteAPITab      = "/api/tabs/{tab}"
	RouteAPIState    = "/state"
	RouteAPISignIn   = "/sign-in"
	RouteAPISignOut  = "/sign-out"
	RouteAPIRefresh  = "/refresh"
	RouteAPIActivity = "/activity"
	RouteAPIOnline   = "/online"
	RouteAPIOffline  = "/offline"
	RouteAPIRetry    = "/bootstrap/retry"
	RouteAPIDismiss  = "/notifications/{kind}"
)
