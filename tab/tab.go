package tab

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-auth-session/activity"
	"github.com/jrsteele09/go-auth-session/auth"
	"github.com/jrsteele09/go-auth-session/backend"
	"github.com/jrsteele09/go-auth-session/backend/oidcbackend"
	"github.com/jrsteele09/go-auth-session/bus"
	"github.com/jrsteele09/go-auth-session/bus/amqpbus"
	"github.com/jrsteele09/go-auth-session/bus/kafkabus"
	"github.com/jrsteele09/go-auth-session/connectivity"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/monitor"
	"github.com/jrsteele09/go-auth-session/retry"
	"github.com/jrsteele09/go-auth-session/routes"
)

// Tab is one headless browser tab.
type Tab struct {
	Coordinator  *auth.Coordinator
	Monitor      *monitor.Monitor
	Activity     *activity.Tracker
	Connectivity *connectivity.Monitor
	Bus          *bus.Bus
	Inbox        *Inbox

	mu       sync.Mutex
	location string
}

// NewTab wires a tab on the origin's storage, backend and configured
// cross-tab transport.
func (o *Origin) NewTab(ctx context.Context) (*Tab, error) {
	authBackend, err := o.newAuthBackend(ctx)
	if err != nil {
		return nil, err
	}
	transport, err := o.newTransport()
	if err != nil {
		// Tabs keep working without sync; the bus logs the degraded mode.
		o.logger.Warn().Err(err).Msg("Cross-tab transport unavailable")
		transport = nil
	}

	t := &Tab{
		Activity:     activity.New(o.clock),
		Connectivity: connectivity.New(true, connectivity.WithLogger(o.logger)),
		Inbox:        NewInbox(o.logger),
		location:     routes.RouteHome,
	}
	t.Bus = bus.New(transport, bus.WithClock(o.clock), bus.WithLogger(o.logger))
	logger := o.logger.With().Str("tab_id", t.Bus.TabID()).Logger()

	t.Monitor, err = monitor.New(authBackend, t.Activity, t.Connectivity,
		monitor.WithClock(o.clock),
		monitor.WithSessionConfig(o.cfg),
		monitor.WithPolicy(retry.FromConfig(o.cfg)),
		monitor.WithNotifier(t.Inbox),
		monitor.WithLogger(logger),
	)
	if err != nil {
		_ = t.Bus.Close()
		return nil, fmt.Errorf("[tab NewTab] %w", err)
	}

	t.Coordinator, err = auth.NewCoordinator(auth.Dependencies{
		Auth:      authBackend,
		Profiles:  o.profiles,
		Monitor:   t.Monitor,
		Bus:       t.Bus,
		Navigator: auth.NavigatorFunc(t.navigate),
	},
		auth.WithClock(o.clock),
		auth.WithSessionConfig(o.cfg),
		auth.WithNotifier(t.Inbox),
		auth.WithLogger(logger),
	)
	if err != nil {
		t.Monitor.Close()
		_ = t.Bus.Close()
		return nil, fmt.Errorf("[tab NewTab] %w", err)
	}
	return t, nil
}

func (o *Origin) newAuthBackend(ctx context.Context) (backend.AuthBackend, error) {
	if o.fake != nil {
		return o.fake.NewClient(o.store), nil
	}
	logger := o.logger
	b, err := oidcbackend.New(ctx, oidcbackend.Options{
		Issuer:       o.cfg.GetIssuer(),
		TokenURL:     o.cfg.GetTokenURL(),
		ClientID:     o.cfg.GetClientID(),
		ClientSecret: o.cfg.GetClientSecret(),
		Scopes:       o.cfg.GetScopes(),
		Logger:       &logger,
		Now:          o.clock.Now,
	}, o.store)
	if err != nil {
		return nil, fmt.Errorf("[tab newAuthBackend] %w", err)
	}
	return b, nil
}

func (o *Origin) newTransport() (bus.Transport, error) {
	switch o.cfg.GetBusTransport() {
	case config.TransportNone:
		return nil, nil
	case config.TransportMemory:
		return o.hub.Transport(o.cfg.GetBusChannel()), nil
	case config.TransportRabbitMQ:
		t, err := amqpbus.Dial(o.cfg.GetRabbitMQURL(), o.cfg.GetBusChannel())
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportKafka:
		return kafkabus.New(o.cfg.GetKafkaBrokers(), o.cfg.GetKafkaTopic()), nil
	}
	return nil, fmt.Errorf("[tab newTransport] unknown transport %q", o.cfg.GetBusTransport())
}

// Open starts the tab and bootstraps its session. A bootstrap failure is
// returned but leaves the tab running so it can be retried.
func (t *Tab) Open(ctx context.Context) error {
	t.Coordinator.Start(ctx)
	return t.Coordinator.Bootstrap(ctx)
}

// Close stops the tab.
func (t *Tab) Close() error {
	t.Coordinator.Close()
	return t.Bus.Close()
}

// Visit navigates to path through the route guard and returns where
// the tab ended up.
func (t *Tab) Visit(path string) string {
	d := t.Coordinator.Guard(path)
	if d.Allowed() {
		t.navigate(path)
		return path
	}
	t.navigate(d.Target)
	return d.Target
}

// Location returns the current path.
func (t *Tab) Location() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.location
}

func (t *Tab) navigate(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.location = path
}
