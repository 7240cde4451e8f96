// Package monitor owns a tab's session: it restores it, watches its
// remaining lifetime, refreshes it ahead of expiry with bounded backoff
// and lets it lapse when the tab has been idle for long.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend"
	"github.com/jrsteele09/go-auth-session/connectivity"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	"github.com/jrsteele09/go-auth-session/internal/config"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/notify"
	"github.com/jrsteele09/go-auth-session/retry"
	"github.com/jrsteele09/go-auth-session/statemachine"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// ActivitySource reports the last user interaction.
type ActivitySource interface {
	LastActive() time.Time
}

// Connectivity reports and publishes online/offline transitions.
type Connectivity interface {
	IsOffline() bool
	Subscribe(connectivity.Listener) func()
}

// CheckResult is the outcome of one CheckExpiration run.
type CheckResult string

const (
	CheckNoSession     CheckResult = "no_session"
	CheckExpired       CheckResult = "expired"
	CheckOffline       CheckResult = "offline"
	CheckIdle          CheckResult = "idle"
	CheckHealthy       CheckResult = "healthy"
	CheckAlreadyWarned CheckResult = "already_warned"
	CheckRefreshed     CheckResult = "refresh_triggered"
)

// Monitor is the authoritative holder of one tab's Session.
type Monitor struct {
	auth     backend.AuthBackend
	activity ActivitySource
	conn     Connectivity
	notifier notify.Notifier
	clock    clock.Clock
	policy   retry.Policy
	sleep    retry.SleepFunc
	logger   zerolog.Logger

	checkInterval    time.Duration
	warningThreshold time.Duration
	idleTimeout      time.Duration

	machine *statemachine.Machine[State, Event]
	flights singleflight.Group

	mu           sync.Mutex
	session      *authmodel.Session
	warned       bool
	flightID     int
	flightCancel context.CancelFunc

	life        context.Context
	stop        context.CancelFunc
	wg          sync.WaitGroup
	started     bool
	closed      bool
	unsubscribe func()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock (primarily for testing).
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithPolicy sets the refresh retry policy.
func WithPolicy(p retry.Policy) Option {
	return func(m *Monitor) { m.policy = p }
}

// WithSleep replaces the backoff wait (primarily for testing).
func WithSleep(sleep retry.SleepFunc) Option {
	return func(m *Monitor) { m.sleep = sleep }
}

// WithNotifier sets where user-facing notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Monitor) { m.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithSessionConfig applies check interval, warning threshold and idle timeout.
func WithSessionConfig(cfg config.SessionConfig) Option {
	return func(m *Monitor) {
		m.checkInterval = cfg.GetCheckInterval()
		m.warningThreshold = cfg.GetWarningThreshold()
		m.idleTimeout = cfg.GetIdleTimeout()
	}
}

// New returns a Monitor in StateUnknown. Call Start to begin periodic
// checks and Close to release its timers.
func New(auth backend.AuthBackend, activity ActivitySource, conn Connectivity, options ...Option) (*Monitor, error) {
	if auth == nil {
		return nil, errors.New("[monitor New] auth backend is required")
	}
	if activity == nil {
		return nil, errors.New("[monitor New] activity source is required")
	}
	if conn == nil {
		return nil, errors.New("[monitor New] connectivity is required")
	}

	m := &Monitor{
		auth:             auth,
		activity:         activity,
		conn:             conn,
		notifier:         notify.NewLogNotifier(),
		clock:            clock.Real(),
		policy:           retry.Default(),
		logger:           log.Logger,
		checkInterval:    time.Minute,
		warningThreshold: 5 * time.Minute,
		idleTimeout:      30 * time.Minute,
		machine:          newMachine(),
	}
	for _, opt := range options {
		opt(m)
	}
	if m.sleep == nil {
		m.sleep = retry.ClockSleep(m.clock)
	}
	if m.checkInterval <= 0 {
		return nil, fmt.Errorf("[monitor New] check interval must be positive, got %s", m.checkInterval)
	}
	m.logger = m.logger.With().Str("component", "session_monitor").Logger()
	m.life, m.stop = context.WithCancel(context.Background())
	return m, nil
}

// Start begins the periodic expiration check and follows connectivity
// until ctx ends or Close is called.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started || m.closed {
		return
	}
	m.started = true

	m.unsubscribe = m.conn.Subscribe(m.handleConnectivity)
	ticker := m.clock.NewTicker(m.checkInterval)
	m.wg.Add(2)
	go m.loop(ticker)
	go func() {
		defer m.wg.Done()
		select {
		case <-ctx.Done():
			m.stop()
		case <-m.life.Done():
		}
	}()
}

// Close stops the check loop, cancels any pending backoff and waits for
// background work to finish. It is safe to call more than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.stop()
	m.wg.Wait()
}

func (m *Monitor) loop(ticker *clock.Ticker) {
	defer m.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-m.life.Done():
			return
		case <-ticker.C:
			// Refresh runs inline, so ticks arriving meanwhile are dropped
			// instead of starting overlapping refreshes.
			result := m.CheckExpiration(m.life)
			m.logger.Debug().Str("result", string(result)).Msg("Expiration check")
		}
	}
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return m.machine.State()
}

// Subscribe registers a listener for state changes.
func (m *Monitor) Subscribe(listener func(from, to State)) func() {
	return m.machine.Subscribe(func(from State, _ Event, to State) {
		listener(from, to)
	})
}

// Session returns a copy of the current session, or nil.
func (m *Monitor) Session() *authmodel.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Restore adopts the backend's persisted session if it has not expired.
// When the monitor already holds a session a failed read leaves it, and
// the current state, untouched.
func (m *Monitor) Restore(ctx context.Context) (*authmodel.Session, error) {
	held := m.holding()
	if !held {
		m.dispatch(EventRestore)
	}

	session, err := m.auth.GetSession(ctx)
	if err != nil && !errors.Is(err, autherrors.ErrNoSession) {
		err = autherrors.Wrapf(err, "[monitor Restore] failed to read session")
		if held {
			m.logger.Warn().Err(err).Msg("Keeping current session")
			return nil, err
		}
		m.setSession(nil)
		m.dispatch(EventRestoreFailed)
		return nil, err
	}
	if held {
		m.dispatch(EventRestore)
	}
	if err != nil || !session.Valid(m.clock.Now()) {
		m.setSession(nil)
		m.dispatch(EventRestoreFailed)
		return nil, autherrors.ErrNoSession
	}

	m.setSession(session)
	m.dispatch(EventRestored)
	if m.conn.IsOffline() {
		m.dispatch(EventOffline)
	}
	m.logger.Info().Str("user_id", session.UserID).Time("expires_at", session.ExpiresAt).Msg("Session restored")
	return session.Clone(), nil
}

// Adopt replaces the session with one obtained elsewhere (sign-in or a
// backend token-refreshed event) and starts a new expiry cycle.
func (m *Monitor) Adopt(session *authmodel.Session) {
	if session == nil {
		return
	}
	m.setSession(session)
	m.dispatch(EventSignedIn)
	if m.conn.IsOffline() {
		m.dispatch(EventOffline)
	}
}

// Clear drops the session and cancels any refresh in flight.
func (m *Monitor) Clear() {
	m.setSession(nil)
	m.cancelFlight()
	m.dispatch(EventSignedOut)
}

// Refresh asks the backend for a new token. While offline it only logs
// a warning. Failures are retried with the retry policy; when retries
// run out one re-login notification is sent and the monitor waits in
// StateStale for an external trigger. Concurrent calls share one run.
func (m *Monitor) Refresh(ctx context.Context) error {
	if m.conn.IsOffline() {
		m.logger.Warn().Msg("Offline, skipping session refresh")
		return nil
	}
	if m.Session() == nil {
		return autherrors.ErrNoSession
	}

	results := m.flights.DoChan(refreshKey, func() (interface{}, error) {
		if !m.track() {
			return nil, fmt.Errorf("[monitor Refresh] monitor closed: %w", context.Canceled)
		}
		defer m.wg.Done()
		return nil, m.runRefresh()
	})
	select {
	case r := <-results:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) runRefresh() error {
	ctx, cancel := context.WithCancel(m.life)
	m.mu.Lock()
	m.flightID++
	id := m.flightID
	m.flightCancel = cancel
	m.mu.Unlock()
	defer func() {
		cancel()
		m.mu.Lock()
		if m.flightID == id {
			m.flightCancel = nil
		}
		m.mu.Unlock()
	}()

	m.dispatch(EventRefresh)

	var session *authmodel.Session
	err := m.policy.Do(ctx, m.sleep, func(ctx context.Context, attempt int) error {
		if m.conn.IsOffline() {
			return retry.Permanent(autherrors.ErrOffline)
		}
		s, err := m.auth.RefreshSession(ctx)
		if errors.Is(err, autherrors.ErrNoSession) {
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		if s == nil {
			return autherrors.ErrRefreshFailed
		}
		session = s
		return nil
	}, func(attempt int, delay time.Duration, err error) {
		m.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("retry_in", delay).Msg("Session refresh failed, retrying")
	})

	switch {
	case err == nil:
		m.setSession(session)
		m.dispatch(EventRefreshed)
		m.logger.Info().Time("expires_at", session.ExpiresAt).Msg("Session refreshed")
		return nil

	case errors.Is(err, autherrors.ErrOffline), errors.Is(err, context.Canceled):
		m.logger.Info().Err(err).Msg("Session refresh abandoned")
		return autherrors.ErrOffline

	case errors.Is(err, autherrors.ErrNoSession):
		m.setSession(nil)
		m.dispatch(EventSignedOut)
		return err
	}

	m.dispatch(EventRefreshExhausted)
	m.logger.Error().Err(err).Msg("Session refresh retries exhausted")
	m.notifier.Notify(notify.Notification{
		Kind:        notify.KindReloginRequired,
		Level:       notify.Error,
		Message:     "We could not keep you signed in. Please sign in again.",
		Dismissable: true,
	})
	return fmt.Errorf("%w: %w", autherrors.ErrRefreshExhausted, err)
}

// CheckExpiration evaluates the session once. It destroys an expired
// session, skips idle or offline tabs, and within the warning threshold
// warns once per expiry cycle and refreshes.
func (m *Monitor) CheckExpiration(ctx context.Context) CheckResult {
	now := m.clock.Now()
	session := m.Session()
	if session == nil {
		return CheckNoSession
	}
	if !session.Valid(now) {
		m.expire()
		return CheckExpired
	}
	if m.conn.IsOffline() {
		return CheckOffline
	}
	if idle := now.Sub(m.activity.LastActive()); idle > m.idleTimeout {
		m.logger.Debug().Dur("idle", idle).Msg("Tab idle, letting session lapse")
		return CheckIdle
	}

	remaining := session.TimeUntilExpiry(now)
	if remaining > m.warningThreshold {
		return CheckHealthy
	}

	m.mu.Lock()
	if m.warned || m.session == nil || m.session.AccessToken != session.AccessToken {
		m.mu.Unlock()
		return CheckAlreadyWarned
	}
	m.warned = true
	m.mu.Unlock()

	m.dispatch(EventNearExpiry)
	m.notifier.Notify(notify.Notification{
		Kind:        notify.KindExpiryWarning,
		Level:       notify.Warning,
		Message:     fmt.Sprintf("Your session ends in %d minutes.", int(remaining.Round(time.Minute)/time.Minute)),
		Dismissable: true,
	})
	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Refresh after expiry warning failed")
	}
	return CheckRefreshed
}

func (m *Monitor) expire() {
	m.setSession(nil)
	m.cancelFlight()
	m.dispatch(EventExpired)
	m.logger.Info().Msg("Session expired")
	m.notifier.Notify(notify.Notification{
		Kind:        notify.KindSessionExpired,
		Level:       notify.Info,
		Message:     "Your session has ended. Please sign in again.",
		Dismissable: true,
	})
}

func (m *Monitor) handleConnectivity(online bool) {
	if !online {
		m.dispatch(EventOffline)
		m.cancelFlight()
		return
	}
	if m.State() != StateSuspended {
		return
	}
	m.dispatch(EventOnline)
	m.goRefresh()
}

// track registers background work with Close. It reports false once
// the monitor is closed.
func (m *Monitor) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.wg.Add(1)
	return true
}

// holding reports whether a live session is being managed.
func (m *Monitor) holding() bool {
	if m.Session() == nil {
		return false
	}
	switch m.State() {
	case StateValid, StateWarning, StateRefreshing, StateStale, StateSuspended:
		return true
	}
	return false
}

// goRefresh runs Refresh in the background, tied to the monitor's lifetime.
func (m *Monitor) goRefresh() {
	if !m.track() {
		return
	}

	go func() {
		defer m.wg.Done()
		if err := m.Refresh(m.life); err != nil {
			m.logger.Warn().Err(err).Msg("Background session refresh failed")
		}
	}()
}

// cancelFlight aborts an in-flight refresh and its pending backoff so
// that the next trigger starts a fresh one.
func (m *Monitor) cancelFlight() {
	m.mu.Lock()
	cancel := m.flightCancel
	m.flightCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.flights.Forget(refreshKey)
}

func (m *Monitor) setSession(session *authmodel.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session.Clone()
	m.warned = false
}

func (m *Monitor) dispatch(event Event) {
	if _, err := m.machine.Dispatch(event); err != nil {
		m.logger.Debug().Err(err).Msg("Ignored session event")
	}
}
