package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jrsteele09/go-auth-session/activity"
	"github.com/jrsteele09/go-auth-session/auth"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/internal/config"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/monitor"
	"github.com/jrsteele09/go-auth-session/notify"
	"github.com/jrsteele09/go-auth-session/routes"
	"github.com/jrsteele09/go-auth-session/tab"
	"github.com/rs/zerolog/log"
)

// tabCookie selects which hosted tab a page request belongs to.
const tabCookie = "tab"

type handlers struct {
	tabs []*tab.Tab
}

func newRouter(cfg config.EnvConfig, tabs []*tab.Tab) http.Handler {
	h := &handlers{tabs: tabs}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.GetEnv() == "DEV" {
		r.Use(logRequests)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.GetAllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         60 * 15,
	}))

	r.Get(routes.RouteHealthz, h.healthz)
	r.Get(routes.RouteAPITabs, h.listTabs)
	r.Route(routes.RouteAPITab, func(tr chi.Router) {
		tr.Use(h.withTab)
		tr.Get(routes.RouteAPIState, h.state)
		tr.Post(routes.RouteAPISignIn, h.signIn)
		tr.Post(routes.RouteAPISignOut, h.signOut)
		tr.Post(routes.RouteAPIRefresh, h.refresh)
		tr.Post(routes.RouteAPIActivity, h.activity)
		tr.Post(routes.RouteAPIOnline, h.setOnline(true))
		tr.Post(routes.RouteAPIOffline, h.setOnline(false))
		tr.Post(routes.RouteAPIRetry, h.retryBootstrap)
		tr.Delete(routes.RouteAPIDismiss, h.dismiss)
	})

	// Everything else is an application page, guarded per tab.
	r.Group(func(pr chi.Router) {
		pr.Use(routes.Middleware(h.authStateFor))
		pr.Get("/*", h.page)
	})
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("Request")
	})
}

type tabKey struct{}

func (h *handlers) withTab(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i, err := strconv.Atoi(chi.URLParam(r, "tab"))
		if err != nil || i < 0 || i >= len(h.tabs) {
			writeError(w, http.StatusNotFound, "unknown tab")
			return
		}
		next.ServeHTTP(w, r.WithContext(withTabIndex(r.Context(), i)))
	})
}

// pageTab resolves the tab of a page request from the tab cookie or
// query parameter, defaulting to the first tab.
func (h *handlers) pageTab(r *http.Request) (int, *tab.Tab) {
	raw := r.URL.Query().Get(tabCookie)
	if raw == "" {
		if c, err := r.Cookie(tabCookie); err == nil {
			raw = c.Value
		}
	}
	i, err := strconv.Atoi(raw)
	if err != nil || i < 0 || i >= len(h.tabs) {
		i = 0
	}
	return i, h.tabs[i]
}

func (h *handlers) authStateFor(r *http.Request) authmodel.AuthState {
	_, t := h.pageTab(r)
	return t.Coordinator.AuthState()
}

func (h *handlers) page(w http.ResponseWriter, r *http.Request) {
	i, t := h.pageTab(r)
	location := t.Visit(r.URL.Path)
	writeJSON(w, http.StatusOK, map[string]any{"tab": i, "location": location})
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tabs": len(h.tabs)})
}

type tabView struct {
	Index         int                   `json:"index"`
	TabID         string                `json:"tab_id"`
	Location      string                `json:"location"`
	Online        bool                  `json:"online"`
	SessionState  monitor.State         `json:"session_state"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
	LastActive    time.Time             `json:"last_active"`
	Auth          auth.CoordinatorState `json:"auth"`
	Notifications []notify.Notification `json:"notifications"`
}

func viewOf(i int, t *tab.Tab) tabView {
	v := tabView{
		Index:         i,
		TabID:         t.Bus.TabID(),
		Location:      t.Location(),
		Online:        t.Connectivity.IsOnline(),
		SessionState:  t.Monitor.State(),
		LastActive:    t.Activity.LastActive(),
		Auth:          t.Coordinator.State(),
		Notifications: t.Inbox.Items(),
	}
	if s := t.Monitor.Session(); s != nil {
		v.ExpiresAt = &s.ExpiresAt
	}
	return v
}

func (h *handlers) listTabs(w http.ResponseWriter, _ *http.Request) {
	views := make([]tabView, 0, len(h.tabs))
	for i, t := range h.tabs {
		views = append(views, viewOf(i, t))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handlers) state(w http.ResponseWriter, r *http.Request) {
	i := tabIndex(r.Context())
	writeJSON(w, http.StatusOK, viewOf(i, h.tabs[i]))
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	i := tabIndex(r.Context())
	t := h.tabs[i]

	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := t.Coordinator.SignIn(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, statusFor(err), auth.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(i, t))
}

func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	i := tabIndex(r.Context())
	t := h.tabs[i]
	if err := t.Coordinator.SignOut(r.Context()); err != nil {
		log.Err(err).Int("tab", i).Msg("Sign out incomplete at backend")
	}
	writeJSON(w, http.StatusOK, viewOf(i, t))
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	i := tabIndex(r.Context())
	t := h.tabs[i]
	if err := t.Monitor.Refresh(r.Context()); err != nil {
		writeError(w, statusFor(err), auth.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(i, t))
}

type activityRequest struct {
	Kind activity.EventKind `json:"kind"`
}

func (h *handlers) activity(w http.ResponseWriter, r *http.Request) {
	i := tabIndex(r.Context())
	t := h.tabs[i]

	req := activityRequest{Kind: activity.Pointer}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	t.Activity.Record(req.Kind)
	writeJSON(w, http.StatusOK, viewOf(i, t))
}

func (h *handlers) setOnline(online bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i := tabIndex(r.Context())
		t := h.tabs[i]
		t.Connectivity.SetOnline(online)
		writeJSON(w, http.StatusOK, viewOf(i, t))
	}
}

func (h *handlers) retryBootstrap(w http.ResponseWriter, r *http.Request) {
	i := tabIndex(r.Context())
	t := h.tabs[i]
	if err := t.Coordinator.RetryBootstrap(r.Context()); err != nil {
		writeError(w, statusFor(err), auth.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(i, t))
}

func (h *handlers) dismiss(w http.ResponseWriter, r *http.Request) {
	i := tabIndex(r.Context())
	t := h.tabs[i]
	t.Inbox.Dismiss(notify.Kind(chi.URLParam(r, "kind")))
	writeJSON(w, http.StatusOK, viewOf(i, t))
}

func statusFor(err error) int {
	switch autherrors.Classify(err) {
	case autherrors.KindCredential, autherrors.KindUnauthenticated:
		return http.StatusUnauthorized
	case autherrors.KindProfileMissing:
		return http.StatusForbidden
	case autherrors.KindBootstrapTimeout:
		return http.StatusGatewayTimeout
	case autherrors.KindTransient:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
