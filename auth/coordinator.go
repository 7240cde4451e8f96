// Package auth holds a tab's top-level auth state. The Coordinator
// bootstraps the session, signs users in and out, keeps sibling tabs in
// step over the cross-tab bus and tells the router where to go.
package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend"
	"github.com/jrsteele09/go-auth-session/bus"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	"github.com/jrsteele09/go-auth-session/internal/config"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/monitor"
	"github.com/jrsteele09/go-auth-session/notify"
	"github.com/jrsteele09/go-auth-session/routes"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultBootstrapTimeout = 3 * time.Second

// Navigator moves the tab to a path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a func to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// CoordinatorState is what the UI renders from.
type CoordinatorState struct {
	AuthState            authmodel.AuthState `json:"auth_state"`
	Loading              bool                `json:"loading"`
	InitializationFailed bool                `json:"initialization_failed"`
	Error                string              `json:"error,omitempty"`
}

// Dependencies holds the collaborators of a Coordinator.
type Dependencies struct {
	Auth      backend.AuthBackend
	Profiles  backend.ProfileBackend
	Monitor   *monitor.Monitor
	Bus       *bus.Bus
	Navigator Navigator
}

// Coordinator owns a tab's AuthState.
type Coordinator struct {
	deps             Dependencies
	clock            clock.Clock
	bootstrapTimeout time.Duration
	notifier         notify.Notifier
	logger           zerolog.Logger

	mu        sync.Mutex
	state     CoordinatorState
	listeners map[int]func(CoordinatorState)
	nextID    int
	// generation changes whenever AuthState is established anew.
	generation int

	life         context.Context
	stop         context.CancelFunc
	unsubscribes []func()
	started      bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithClock sets the clock (primarily for testing).
func WithClock(clk clock.Clock) CoordinatorOption {
	return func(c *Coordinator) { c.clock = clk }
}

// WithBootstrapTimeout bounds how long Bootstrap waits for a restore.
func WithBootstrapTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.bootstrapTimeout = d }
}

// WithSessionConfig applies the bootstrap timeout from cfg.
func WithSessionConfig(cfg config.SessionConfig) CoordinatorOption {
	return func(c *Coordinator) { c.bootstrapTimeout = cfg.GetBootstrapTimeout() }
}

// WithNotifier sets where user-facing notifications go.
func WithNotifier(n notify.Notifier) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator returns a Coordinator in the loading state.
func NewCoordinator(deps Dependencies, options ...CoordinatorOption) (*Coordinator, error) {
	if deps.Auth == nil {
		return nil, errors.New("[NewCoordinator] auth backend is required")
	}
	if deps.Profiles == nil {
		return nil, errors.New("[NewCoordinator] profile backend is required")
	}
	if deps.Monitor == nil {
		return nil, errors.New("[NewCoordinator] session monitor is required")
	}
	if deps.Bus == nil {
		deps.Bus = bus.New(nil)
	}
	if deps.Navigator == nil {
		deps.Navigator = NavigatorFunc(func(string) {})
	}

	c := &Coordinator{
		deps:             deps,
		clock:            clock.Real(),
		bootstrapTimeout: defaultBootstrapTimeout,
		notifier:         notify.NewLogNotifier(),
		logger:           log.Logger,
		state:            CoordinatorState{AuthState: authmodel.LoggedOut(), Loading: true},
		listeners:        make(map[int]func(CoordinatorState)),
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "auth_coordinator").Str("tab_id", deps.Bus.TabID()).Logger()
	c.life, c.stop = context.WithCancel(context.Background())
	return c, nil
}

// Start wires the coordinator to the bus, the monitor and backend events
// and starts the monitor's check loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.unsubscribes = append(c.unsubscribes,
		c.deps.Bus.Subscribe(c.handleSyncMessage),
		c.deps.Monitor.Subscribe(c.handleMonitorState),
		c.deps.Auth.OnAuthStateChange(c.handleAuthChange),
	)
	c.deps.Monitor.Start(ctx)
}

// Close detaches from collaborators and stops the monitor. The bus is
// owned by the caller.
func (c *Coordinator) Close() {
	c.stop()
	for _, unsubscribe := range c.unsubscribes {
		unsubscribe()
	}
	c.unsubscribes = nil
	c.deps.Monitor.Close()
}

// State returns a snapshot of the coordinator state.
func (c *Coordinator) State() CoordinatorState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AuthState returns the current AuthState.
func (c *Coordinator) AuthState() authmodel.AuthState {
	return c.State().AuthState
}

// Subscribe registers listener for state changes and returns a func that
// removes it.
func (c *Coordinator) Subscribe(listener func(CoordinatorState)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = listener

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.listeners, id)
		})
	}
}

// Guard evaluates a navigation against the current state.
func (c *Coordinator) Guard(path string) routes.Decision {
	return routes.Guard(path, c.AuthState())
}

type restoreResult struct {
	state authmodel.AuthState
	err   error
}

// Bootstrap restores the persisted session. If the restore has not
// settled within the bootstrap timeout the state is marked
// InitializationFailed and ErrBootstrapTimeout is returned; the restore
// itself is cancelled, and a session it restores late is dropped.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	var generation int
	c.update(func(s *CoordinatorState) {
		s.Loading = true
		s.InitializationFailed = false
		s.Error = ""
		c.generation++
		generation = c.generation
	})

	restoreCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	timedOut := make(chan struct{})
	timer := c.clock.AfterFunc(c.bootstrapTimeout, func() { close(timedOut) })
	defer timer.Stop()

	var settle sync.Mutex
	abandoned := false
	results := make(chan restoreResult, 1)
	go func() {
		state, err := c.restore(restoreCtx)
		settle.Lock()
		defer settle.Unlock()
		if abandoned {
			c.dropLateRestore(generation, state, err)
			return
		}
		results <- restoreResult{state: state, err: err}
	}()

	// abandon stops the restore goroutine from reporting, unless it has
	// already done so.
	abandon := func() (restoreResult, bool) {
		settle.Lock()
		defer settle.Unlock()
		select {
		case r := <-results:
			return r, true
		default:
			abandoned = true
			return restoreResult{}, false
		}
	}

	select {
	case r := <-results:
		return c.settleBootstrap(r)

	case <-timedOut:
		if r, ok := abandon(); ok {
			return c.settleBootstrap(r)
		}
		err := errors.Wrapf(autherrors.ErrBootstrapTimeout, "[Coordinator Bootstrap] no session after %s", c.bootstrapTimeout)
		c.logger.Error().Err(err).Msg("Bootstrap timed out")
		c.update(func(s *CoordinatorState) {
			s.AuthState = authmodel.LoggedOut()
			s.Loading = false
			s.InitializationFailed = true
			s.Error = UserMessage(err)
		})
		c.notifier.Notify(notify.Notification{
			Kind:        notify.KindBootstrapFailed,
			Level:       notify.Error,
			Message:     MsgBootstrapTimeout,
			Dismissable: false,
		})
		return err

	case <-ctx.Done():
		if r, ok := abandon(); ok {
			return c.settleBootstrap(r)
		}
		c.update(func(s *CoordinatorState) { s.Loading = false })
		return ctx.Err()
	}
}

// dropLateRestore clears a session restored after its Bootstrap gave up,
// so the monitor does not keep refreshing it for a logged-out tab. A
// sign-in or bootstrap since then owns the session and is left alone.
func (c *Coordinator) dropLateRestore(generation int, state authmodel.AuthState, err error) {
	if err != nil || !state.IsAuthenticated {
		return
	}
	c.mu.Lock()
	stale := c.generation == generation
	c.mu.Unlock()
	if !stale {
		return
	}
	c.logger.Warn().Str("user_id", state.User.ID).Msg("Dropping session restored after bootstrap timeout")
	c.deps.Monitor.Clear()
}

// RetryBootstrap clears a failed initialization and bootstraps again.
func (c *Coordinator) RetryBootstrap(ctx context.Context) error {
	c.logger.Info().Msg("Retrying bootstrap")
	return c.Bootstrap(ctx)
}

func (c *Coordinator) settleBootstrap(r restoreResult) error {
	if r.err != nil {
		if autherrors.Is(r.err, autherrors.ErrProfileMissing) {
			c.logger.Warn().Err(r.err).Msg("Session has no profile, continuing logged out")
		} else {
			c.logger.Error().Err(r.err).Msg("Failed to restore session")
		}
		c.update(func(s *CoordinatorState) {
			s.AuthState = authmodel.LoggedOut()
			s.Loading = false
			s.Error = UserMessage(r.err)
		})
		return errors.Wrap(r.err, "[Coordinator Bootstrap]")
	}

	c.update(func(s *CoordinatorState) {
		s.AuthState = r.state
		s.Loading = false
	})
	if r.state.IsAuthenticated {
		c.logger.Info().Str("user_id", r.state.User.ID).Str("role", string(r.state.Role())).Msg("Session restored")
	}
	return nil
}

// restore re-derives the AuthState from the backend. No stored session
// yields a logged-out state and no error. A failed profile lookup for
// the user already signed in keeps the monitor's session; any other
// profile failure clears it.
func (c *Coordinator) restore(ctx context.Context) (authmodel.AuthState, error) {
	session, err := c.deps.Monitor.Restore(ctx)
	if autherrors.Is(err, autherrors.ErrNoSession) {
		return authmodel.LoggedOut(), nil
	}
	if err != nil {
		return authmodel.LoggedOut(), err
	}

	user := &authmodel.User{ID: session.UserID}
	profile, err := c.loadProfile(ctx, user.ID)
	if err != nil {
		current := c.AuthState()
		sameUser := current.IsAuthenticated && current.User.ID == user.ID
		if !sameUser || autherrors.Is(err, autherrors.ErrProfileMissing) {
			c.deps.Monitor.Clear()
		}
		return authmodel.LoggedOut(), err
	}
	return authmodel.NewAuthState(user, profile), nil
}

func (c *Coordinator) loadProfile(ctx context.Context, userID string) (*authmodel.Profile, error) {
	profile, err := c.deps.Profiles.GetProfileByUserID(ctx, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load profile for user %s", userID)
	}
	if profile == nil {
		return nil, errors.Wrapf(autherrors.ErrProfileMissing, "user %s", userID)
	}
	return profile, nil
}

// SignIn checks credentials, attaches the profile, tells sibling tabs
// and navigates to the role's landing route. On failure the current
// AuthState is kept and the state carries a user-facing error.
func (c *Coordinator) SignIn(ctx context.Context, email, password string) error {
	c.update(func(s *CoordinatorState) { s.Error = "" })

	user, err := c.deps.Auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return c.signInFailed(errors.Wrap(err, "[Coordinator SignIn]"))
	}

	session, err := c.deps.Auth.GetSession(ctx)
	if err != nil {
		return c.signInFailed(errors.Wrap(err, "[Coordinator SignIn] failed to read new session"))
	}
	if session == nil {
		return c.signInFailed(errors.Wrap(autherrors.ErrNoSession, "[Coordinator SignIn]"))
	}

	profile, err := c.loadProfile(ctx, user.ID)
	if err != nil {
		if signOutErr := c.deps.Auth.SignOut(ctx); signOutErr != nil {
			c.logger.Warn().Err(signOutErr).Msg("Failed to sign out user without profile")
		}
		return c.signInFailed(errors.Wrap(err, "[Coordinator SignIn]"))
	}

	state := authmodel.NewAuthState(user, profile)
	c.deps.Monitor.Adopt(session)
	c.update(func(s *CoordinatorState) {
		s.AuthState = state
		s.Loading = false
		s.InitializationFailed = false
		c.generation++
	})
	c.logger.Info().Str("user_id", user.ID).Str("role", string(profile.Role)).Msg("Signed in")

	c.deps.Bus.Publish(ctx, bus.SignIn)
	c.deps.Navigator.Navigate(routes.Landing(profile.Role))
	return nil
}

func (c *Coordinator) signInFailed(err error) error {
	c.logger.Warn().Err(err).Str("kind", autherrors.Classify(err).String()).Msg("Sign in failed")
	msg := UserMessage(err)
	c.update(func(s *CoordinatorState) { s.Error = msg })
	c.notifier.Notify(notify.Notification{
		Kind:        notify.KindSignInFailed,
		Level:       notify.Error,
		Message:     msg,
		Dismissable: true,
	})
	return err
}

// SignOut ends the session locally and at the backend, tells sibling
// tabs and navigates to the login route. The local sign-out happens even
// when the backend call fails; that failure is logged and returned.
func (c *Coordinator) SignOut(ctx context.Context) error {
	c.clearLocal()
	c.deps.Monitor.Clear()
	backendErr := c.deps.Auth.SignOut(ctx)
	if backendErr != nil {
		c.logger.Warn().Err(backendErr).Msg("Backend sign out failed")
	}
	c.logger.Info().Msg("Signed out")

	c.deps.Bus.Publish(ctx, bus.SignOut)
	c.deps.Navigator.Navigate(routes.RouteLogin)
	return errors.Wrap(backendErr, "[Coordinator SignOut]")
}

// handleSyncMessage applies a sibling tab's signal. Payload identity is
// never trusted; sign-in re-reads the session from the backend.
func (c *Coordinator) handleSyncMessage(msg bus.Message) {
	logger := c.logger.With().Str("type", string(msg.Type)).Str("from_tab", msg.TabID).Logger()

	switch msg.Type {
	case bus.SignOut:
		logger.Info().Msg("Signed out in another tab")
		wasAuthenticated := c.clearLocal()
		c.deps.Monitor.Clear()
		if wasAuthenticated {
			c.notifier.Notify(notify.Notification{
				Kind:        notify.KindSignedOut,
				Level:       notify.Info,
				Message:     "You were signed out in another tab.",
				Dismissable: true,
			})
		}
		c.deps.Navigator.Navigate(routes.RouteLogin)

	case bus.SignIn:
		logger.Info().Msg("Signed in in another tab")
		state, err := c.restore(c.life)
		if err != nil {
			// The monitor keeps or drops its session on its own; a logout
			// reaches this tab through handleMonitorState.
			logger.Warn().Err(err).Msg("Failed to adopt session from another tab")
			return
		}
		c.update(func(s *CoordinatorState) {
			s.AuthState = state
			s.Loading = false
			s.InitializationFailed = false
			s.Error = ""
			c.generation++
		})
	}
}

// handleMonitorState logs the tab out when the monitor loses the session
// on its own, such as on hard expiry.
func (c *Coordinator) handleMonitorState(from, to monitor.State) {
	if to != monitor.StateLoggedOut {
		return
	}
	if !c.clearLocal() {
		return
	}
	c.logger.Info().Str("from", string(from)).Msg("Session lost, returning to login")
	c.update(func(s *CoordinatorState) { s.Error = MsgSessionEnded })
	c.deps.Navigator.Navigate(routes.RouteLogin)
}

func (c *Coordinator) handleAuthChange(change backend.AuthChange) {
	switch change.Event {
	case backend.EventTokenRefreshed:
		if change.Session == nil {
			return
		}
		switch c.deps.Monitor.State() {
		case monitor.StateRefreshing:
			// The monitor adopts its own refresh results.
			return
		case monitor.StateLoggedOut, monitor.StateUnknown:
			return
		}
		c.deps.Monitor.Adopt(change.Session)
	case backend.EventSignedOut:
		if c.clearLocal() {
			c.deps.Monitor.Clear()
			c.deps.Navigator.Navigate(routes.RouteLogin)
		}
	}
}

// clearLocal resets to logged out and reports whether a user had been
// signed in.
func (c *Coordinator) clearLocal() bool {
	wasAuthenticated := false
	c.update(func(s *CoordinatorState) {
		wasAuthenticated = s.AuthState.IsAuthenticated
		s.AuthState = authmodel.LoggedOut()
		s.Loading = false
	})
	return wasAuthenticated
}

// update applies fn under the lock and notifies listeners outside it.
func (c *Coordinator) update(fn func(*CoordinatorState)) {
	c.mu.Lock()
	fn(&c.state)
	state := c.state
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(CoordinatorState), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}
