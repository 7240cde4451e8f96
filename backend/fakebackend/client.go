package fakebackend

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/storage"
)

// SessionKey is the storage key of the persisted session.
const SessionKey = "auth.session"

var _ backend.AuthBackend = (*Client)(nil)

// Client is one tab's view of the Server.
type Client struct {
	server    *Server
	store     storage.Store
	listeners backend.Listeners

	mu             sync.Mutex
	getSessionGate <-chan struct{}
	getSessionErr  error
	getSessionCall int
}

// NewClient returns a Client that persists its session in store. Tabs
// of the same origin share store.
func (s *Server) NewClient(store storage.Store) *Client {
	return &Client{server: s, store: store}
}

// BlockGetSession makes GetSession wait until gate is closed or the
// call's context ends. Pass nil to unblock future calls.
func (c *Client) BlockGetSession(gate <-chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getSessionGate = gate
}

// FailGetSession makes GetSession return err until reset with nil.
func (c *Client) FailGetSession(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getSessionErr = err
}

// GetSessionCalls returns how many times GetSession ran.
func (c *Client) GetSessionCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getSessionCall
}

// StoreSession plants a session in origin storage.
func (c *Client) StoreSession(ctx context.Context, session *authmodel.Session) error {
	return storage.SetJSON(ctx, c.store, SessionKey, session)
}

func (c *Client) GetSession(ctx context.Context) (*authmodel.Session, error) {
	c.mu.Lock()
	c.getSessionCall++
	gate, failure := c.getSessionGate, c.getSessionErr
	c.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failure != nil {
		return nil, failure
	}
	return c.loadSession(ctx)
}

func (c *Client) RefreshSession(ctx context.Context) (*authmodel.Session, error) {
	current, err := c.loadSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, autherrors.ErrNoSession
	}

	session, err := c.server.refresh(current.RefreshToken)
	if err != nil {
		return nil, autherrors.Wrapf(err, "[fakebackend RefreshSession]")
	}
	if err := storage.SetJSON(ctx, c.store, SessionKey, session); err != nil {
		return nil, err
	}
	c.listeners.Emit(backend.AuthChange{Event: backend.EventTokenRefreshed, Session: session.Clone()})
	return session, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*authmodel.User, error) {
	user, session, err := c.server.signIn(email, password)
	if err != nil {
		return nil, err
	}
	if err := storage.SetJSON(ctx, c.store, SessionKey, session); err != nil {
		return nil, err
	}
	c.listeners.Emit(backend.AuthChange{Event: backend.EventSignedIn, Session: session.Clone()})
	return user, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	current, err := c.loadSession(ctx)
	if err != nil {
		return err
	}
	if current != nil {
		c.server.revoke(current.RefreshToken)
	}
	if err := c.store.Delete(ctx, SessionKey); err != nil {
		return err
	}
	c.listeners.Emit(backend.AuthChange{Event: backend.EventSignedOut})
	return nil
}

func (c *Client) OnAuthStateChange(callback func(backend.AuthChange)) func() {
	return c.listeners.Add(callback)
}

func (c *Client) loadSession(ctx context.Context) (*authmodel.Session, error) {
	var session authmodel.Session
	found, err := storage.GetJSON(ctx, c.store, SessionKey, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}
