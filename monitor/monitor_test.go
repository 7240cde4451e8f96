package monitor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/activity"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend/fakebackend"
	"github.com/jrsteele09/go-auth-session/connectivity"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/monitor"
	"github.com/jrsteele09/go-auth-session/notify"
	"github.com/jrsteele09/go-auth-session/notify/notifyfake"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/stretchr/testify/require"
)

var errBlip = errors.New("network blip")

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type fixture struct {
	clock    *clock.FakeClock
	server   *fakebackend.Server
	client   *fakebackend.Client
	conn     *connectivity.Monitor
	activity *activity.Tracker
	notes    *notifyfake.Recorder
	sleeps   *sleepRecorder
	monitor  *monitor.Monitor
}

// newFixture signs a user in with a ten minute access token and returns
// a monitor that has restored that session.
func newFixture(t *testing.T, options ...monitor.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		clock:  clock.Fake(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)),
		conn:   connectivity.New(true),
		notes:  notifyfake.NewRecorder(),
		sleeps: &sleepRecorder{},
	}
	f.server = fakebackend.NewServer(f.clock, fakebackend.WithAccessTTL(10*time.Minute))
	f.client = f.server.NewClient(storage.NewInMemoryStore())
	f.activity = activity.New(f.clock)

	_, err := f.server.AddUser("parent@example.com", "Password123", "Pat", authmodel.RoleParent)
	require.NoError(t, err)
	_, err = f.client.SignInWithPassword(ctx, "parent@example.com", "Password123")
	require.NoError(t, err)

	all := append([]monitor.Option{
		monitor.WithClock(f.clock),
		monitor.WithSleep(f.sleeps.sleep),
		monitor.WithNotifier(f.notes),
	}, options...)
	f.monitor, err = monitor.New(f.client, f.activity, f.conn, all...)
	require.NoError(t, err)
	t.Cleanup(f.monitor.Close)

	_, err = f.monitor.Restore(ctx)
	require.NoError(t, err)
	require.Equal(t, monitor.StateValid, f.monitor.State())
	return f
}

func TestNewValidatesDependencies(t *testing.T) {
	c := clock.Fake(time.Now())
	client := fakebackend.NewServer(c).NewClient(storage.NewInMemoryStore())

	_, err := monitor.New(nil, activity.New(c), connectivity.New(true))
	require.Error(t, err)
	_, err = monitor.New(client, nil, connectivity.New(true))
	require.Error(t, err)
	_, err = monitor.New(client, activity.New(c), nil)
	require.Error(t, err)
}

func TestRestoreWithoutSession(t *testing.T) {
	c := clock.Fake(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	client := fakebackend.NewServer(c).NewClient(storage.NewInMemoryStore())
	m, err := monitor.New(client, activity.New(c), connectivity.New(true), monitor.WithClock(c))
	require.NoError(t, err)
	defer m.Close()

	session, err := m.Restore(context.Background())
	require.ErrorIs(t, err, autherrors.ErrNoSession)
	require.Nil(t, session)
	require.Equal(t, monitor.StateLoggedOut, m.State())
}

func TestRestoreDropsExpiredSession(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(11 * time.Minute)

	_, err := f.monitor.Restore(context.Background())
	require.ErrorIs(t, err, autherrors.ErrNoSession)
	require.Nil(t, f.monitor.Session())
	require.Equal(t, monitor.StateLoggedOut, f.monitor.State())
}

func TestRestoreWhileOfflineSuspends(t *testing.T) {
	f := newFixture(t)
	f.conn.SetOnline(false)

	_, err := f.monitor.Restore(context.Background())
	require.NoError(t, err)
	require.Equal(t, monitor.StateSuspended, f.monitor.State())
}

func TestCheckExpirationHealthy(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(time.Minute)

	require.Equal(t, monitor.CheckHealthy, f.monitor.CheckExpiration(context.Background()))
	require.Zero(t, f.server.RefreshCalls())
	require.Empty(t, f.notes.All())
}

func TestWarningTriggersOneRefreshPerCycle(t *testing.T) {
	f := newFixture(t)
	before := f.monitor.Session()
	f.clock.Advance(5*time.Minute + 30*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.monitor.CheckExpiration(context.Background())
		}()
	}
	wg.Wait()

	require.Equal(t, 1, f.server.RefreshCalls())
	require.Equal(t, 1, f.notes.Count(notify.KindExpiryWarning))
	require.Equal(t, monitor.StateValid, f.monitor.State())

	after := f.monitor.Session()
	require.NotEqual(t, before.AccessToken, after.AccessToken)
	require.True(t, after.ExpiresAt.After(before.ExpiresAt))

	// The refreshed session starts a new cycle with a full lifetime.
	require.Equal(t, monitor.CheckHealthy, f.monitor.CheckExpiration(context.Background()))
}

func TestWarningFiresAgainForReplacedSession(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(6 * time.Minute)
	require.Equal(t, monitor.CheckRefreshed, f.monitor.CheckExpiration(context.Background()))

	f.clock.Advance(6 * time.Minute)
	f.activity.Record(activity.Pointer)
	require.Equal(t, monitor.CheckRefreshed, f.monitor.CheckExpiration(context.Background()))

	require.Equal(t, 2, f.server.RefreshCalls())
	require.Equal(t, 2, f.notes.Count(notify.KindExpiryWarning))
}

func TestRefreshBackoffAndSingleNotification(t *testing.T) {
	f := newFixture(t)
	f.server.FailRefreshes(4, errBlip)

	err := f.monitor.Refresh(context.Background())
	require.ErrorIs(t, err, autherrors.ErrRefreshExhausted)
	require.ErrorIs(t, err, errBlip)

	require.Equal(t, 4, f.server.RefreshCalls())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, f.sleeps.Delays())
	require.Equal(t, 1, f.notes.Count(notify.KindReloginRequired))
	require.Equal(t, monitor.StateStale, f.monitor.State())
	require.NotNil(t, f.monitor.Session())
}

func TestRefreshRecoversWithinRetries(t *testing.T) {
	f := newFixture(t)
	f.server.FailRefreshes(2, errBlip)

	require.NoError(t, f.monitor.Refresh(context.Background()))
	require.Equal(t, 3, f.server.RefreshCalls())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeps.Delays())
	require.Zero(t, f.notes.Count(notify.KindReloginRequired))
	require.Equal(t, monitor.StateValid, f.monitor.State())
}

func TestStaleDoesNotRetryOnLaterTicks(t *testing.T) {
	f := newFixture(t)
	f.server.FailRefreshes(4, errBlip)
	f.clock.Advance(6 * time.Minute)

	require.Equal(t, monitor.CheckRefreshed, f.monitor.CheckExpiration(context.Background()))
	require.Equal(t, monitor.StateStale, f.monitor.State())

	f.clock.Advance(time.Minute)
	require.Equal(t, monitor.CheckAlreadyWarned, f.monitor.CheckExpiration(context.Background()))
	require.Equal(t, 4, f.server.RefreshCalls())

	// An explicit refresh still works from Stale.
	require.NoError(t, f.monitor.Refresh(context.Background()))
	require.Equal(t, monitor.StateValid, f.monitor.State())
}

func TestOfflineSkipsRefreshUntilOnline(t *testing.T) {
	f := newFixture(t)
	f.clock.Advance(6 * time.Minute)
	f.monitor.Start(context.Background())

	f.conn.SetOnline(false)
	require.Equal(t, monitor.StateSuspended, f.monitor.State())

	require.Equal(t, monitor.CheckOffline, f.monitor.CheckExpiration(context.Background()))
	require.NoError(t, f.monitor.Refresh(context.Background()))
	require.Zero(t, f.server.RefreshCalls())

	f.conn.SetOnline(true)
	require.Eventually(t, func() bool {
		return f.server.RefreshCalls() == 1 && f.monitor.State() == monitor.StateValid
	}, time.Second, 5*time.Millisecond)

	f.monitor.Close()
	require.Equal(t, 1, f.server.RefreshCalls())
}

func TestGoingOfflineAbandonsBackoff(t *testing.T) {
	f := newFixture(t, monitor.WithSleep(func(ctx context.Context, _ time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	f.monitor.Start(context.Background())
	f.server.FailRefreshes(10, errBlip)

	done := make(chan error, 1)
	go func() { done <- f.monitor.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return f.server.RefreshCalls() == 1 }, time.Second, 5*time.Millisecond)

	f.conn.SetOnline(false)
	select {
	case err := <-done:
		require.ErrorIs(t, err, autherrors.ErrOffline)
	case <-time.After(time.Second):
		t.Fatal("refresh did not stop when going offline")
	}
	require.Equal(t, monitor.StateSuspended, f.monitor.State())
	require.Zero(t, f.notes.Count(notify.KindReloginRequired))
}

func TestIdleTabLetsSessionLapse(t *testing.T) {
	f := newFixture(t, monitor.WithSessionConfig(shortIdle{}))
	f.clock.Advance(6 * time.Minute)

	require.Equal(t, monitor.CheckIdle, f.monitor.CheckExpiration(context.Background()))
	require.Zero(t, f.server.RefreshCalls())

	f.activity.Record(activity.Keyboard)
	require.Equal(t, monitor.CheckRefreshed, f.monitor.CheckExpiration(context.Background()))
}

func TestExpiredSessionIsDestroyed(t *testing.T) {
	f := newFixture(t)
	var transitions []monitor.State
	f.monitor.Subscribe(func(_, to monitor.State) { transitions = append(transitions, to) })

	f.clock.Advance(11 * time.Minute)
	require.Equal(t, monitor.CheckExpired, f.monitor.CheckExpiration(context.Background()))
	require.Nil(t, f.monitor.Session())
	require.Equal(t, monitor.StateLoggedOut, f.monitor.State())
	require.Equal(t, []monitor.State{monitor.StateLoggedOut}, transitions)
	require.Equal(t, 1, f.notes.Count(notify.KindSessionExpired))

	require.Equal(t, monitor.CheckNoSession, f.monitor.CheckExpiration(context.Background()))
}

func TestCheckLoopRefreshesNearExpiry(t *testing.T) {
	f := newFixture(t)
	f.monitor.Start(context.Background())

	f.clock.Advance(6 * time.Minute)
	require.Eventually(t, func() bool { return f.server.RefreshCalls() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.monitor.State() == monitor.StateValid }, time.Second, 5*time.Millisecond)
}

func TestAdoptAndClear(t *testing.T) {
	f := newFixture(t)

	f.monitor.Clear()
	require.Nil(t, f.monitor.Session())
	require.Equal(t, monitor.StateLoggedOut, f.monitor.State())
	require.ErrorIs(t, f.monitor.Refresh(context.Background()), autherrors.ErrNoSession)

	f.monitor.Adopt(&authmodel.Session{
		AccessToken:  "a",
		RefreshToken: "r",
		UserID:       "u",
		ExpiresAt:    f.clock.Now().Add(time.Hour),
	})
	require.Equal(t, monitor.StateValid, f.monitor.State())
	require.Equal(t, "a", f.monitor.Session().AccessToken)
}

type shortIdle struct{}

func (shortIdle) GetCheckInterval() time.Duration    { return time.Minute }
func (shortIdle) GetWarningThreshold() time.Duration { return 5 * time.Minute }
func (shortIdle) GetIdleTimeout() time.Duration      { return 5 * time.Minute }
func (shortIdle) GetBootstrapTimeout() time.Duration { return 3 * time.Second }

func TestRestoreReadErrorKeepsHeldSession(t *testing.T) {
	f := newFixture(t)
	before := f.monitor.Session()
	f.client.FailGetSession(errBlip)

	_, err := f.monitor.Restore(context.Background())
	require.ErrorIs(t, err, errBlip)
	require.Equal(t, monitor.StateValid, f.monitor.State())
	require.Equal(t, before, f.monitor.Session())

	f.client.FailGetSession(nil)
	f.clock.Advance(6 * time.Minute)
	require.Equal(t, monitor.CheckRefreshed, f.monitor.CheckExpiration(context.Background()))
	require.Equal(t, monitor.StateValid, f.monitor.State())
}

func TestRestoreReadErrorWithoutSessionLogsOut(t *testing.T) {
	f := newFixture(t)
	f.monitor.Clear()
	f.client.FailGetSession(errBlip)

	_, err := f.monitor.Restore(context.Background())
	require.ErrorIs(t, err, errBlip)
	require.Equal(t, monitor.StateLoggedOut, f.monitor.State())
	require.Nil(t, f.monitor.Session())
	require.Equal(t, monitor.CheckNoSession, f.monitor.CheckExpiration(context.Background()))
}

func TestCloseWaitsForRefreshInFlight(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	var unwound atomic.Bool
	f := newFixture(t, monitor.WithSleep(func(ctx context.Context, _ time.Duration) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		unwound.Store(true)
		return ctx.Err()
	}))
	f.server.FailRefreshes(10, errBlip)

	go func() { _ = f.monitor.Refresh(context.Background()) }()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("refresh never started its backoff")
	}

	f.monitor.Close()
	require.True(t, unwound.Load())
	require.ErrorIs(t, f.monitor.Refresh(context.Background()), context.Canceled)
}
