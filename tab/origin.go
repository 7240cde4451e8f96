// Package tab assembles headless browser tabs. An Origin holds what tabs
// of one site share (storage, the auth backend, the in-process bus hub);
// each Tab wires its own monitor, bus endpoint and coordinator.
package tab

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-auth-session/backend"
	"github.com/jrsteele09/go-auth-session/backend/fakebackend"
	"github.com/jrsteele09/go-auth-session/backend/pgprofiles"
	"github.com/jrsteele09/go-auth-session/bus/membus"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/storage/sqlitestore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Origin is the state shared by all tabs of one site.
type Origin struct {
	cfg      config.Config
	clock    clock.Clock
	logger   zerolog.Logger
	store    storage.Store
	hub      *membus.Hub
	fake     *fakebackend.Server
	profiles backend.ProfileBackend
	closers  []func() error
}

// OriginOption configures an Origin.
type OriginOption func(*Origin)

// WithClock sets the clock shared by the origin's tabs.
func WithClock(c clock.Clock) OriginOption {
	return func(o *Origin) { o.clock = c }
}

// WithStore replaces the configured storage driver.
func WithStore(s storage.Store) OriginOption {
	return func(o *Origin) { o.store = s }
}

// WithLogger sets the logger passed to every component.
func WithLogger(l zerolog.Logger) OriginOption {
	return func(o *Origin) { o.logger = l }
}

// NewOrigin opens the configured storage and backend.
func NewOrigin(ctx context.Context, cfg config.Config, options ...OriginOption) (*Origin, error) {
	o := &Origin{
		cfg:    cfg,
		clock:  clock.Real(),
		logger: log.Logger,
		hub:    membus.NewHub(),
	}
	for _, opt := range options {
		opt(o)
	}

	if o.store == nil {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		o.store = store
		o.closers = append(o.closers, store.Close)
	}

	switch cfg.GetBackendKind() {
	case config.BackendFake:
		o.fake = fakebackend.NewServer(o.clock)
		o.profiles = o.fake
	case config.BackendOIDC:
		pool, err := pgprofiles.Connect(ctx, cfg.GetProfilesDSN())
		if err != nil {
			_ = o.Close()
			return nil, fmt.Errorf("[tab NewOrigin] failed to connect profile database: %w", err)
		}
		o.closers = append(o.closers, func() error { pool.Close(); return nil })
		o.profiles = pgprofiles.New(pool)
	default:
		_ = o.Close()
		return nil, fmt.Errorf("[tab NewOrigin] unknown backend %q", cfg.GetBackendKind())
	}

	o.logger.Info().
		Str("storage", cfg.GetStorageDriver()).
		Str("backend", cfg.GetBackendKind()).
		Str("bus", cfg.GetBusTransport()).
		Msg("Origin ready")
	return o, nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.GetStorageDriver() {
	case config.StorageMemory:
		return storage.NewInMemoryStore(), nil
	case config.StorageSQLite:
		store, err := sqlitestore.Open(ctx, cfg.GetStoragePath())
		if err != nil {
			return nil, fmt.Errorf("[tab openStore] %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("[tab openStore] unknown storage driver %q", cfg.GetStorageDriver())
}

// FakeBackend returns the in-process backend, or nil when the origin
// talks to a real authorization server.
func (o *Origin) FakeBackend() *fakebackend.Server {
	return o.fake
}

// Store returns the origin storage.
func (o *Origin) Store() storage.Store {
	return o.store
}

// Close releases storage and backend connections.
func (o *Origin) Close() error {
	var first error
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	o.closers = nil
	return first
}
