// Package oidcbackend talks to an OAuth2/OIDC authorization server. It
// signs in with the resource owner password grant, refreshes with the
// refresh token grant and keeps the session in origin storage.
package oidcbackend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// SessionKey is the storage key of the persisted session.
const SessionKey = "oidc.session"

var _ backend.AuthBackend = (*Backend)(nil)

// Options configures the authorization server connection. Issuer wins
// over TokenURL when both are set.
type Options struct {
	Issuer       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
	Now          func() time.Time
}

// Backend implements backend.AuthBackend over OAuth2.
type Backend struct {
	oauth      *oauth2.Config
	store      storage.Store
	httpClient *http.Client
	listeners  backend.Listeners
	now        func() time.Time
	logger     zerolog.Logger
}

// New builds a Backend. With an Issuer the token endpoint is discovered
// from the issuer's OpenID configuration.
func New(ctx context.Context, opts Options, store storage.Store) (*Backend, error) {
	if store == nil {
		return nil, errors.New("[oidcbackend New] store is required")
	}
	if opts.ClientID == "" {
		return nil, errors.New("[oidcbackend New] client id is required")
	}

	b := &Backend{
		store:      store,
		httpClient: opts.HTTPClient,
		now:        time.Now,
		logger:     log.Logger,
	}
	if opts.Now != nil {
		b.now = opts.Now
	}
	if opts.Logger != nil {
		b.logger = *opts.Logger
	}
	b.logger = b.logger.With().Str("component", "oidcbackend").Logger()

	var endpoint oauth2.Endpoint
	switch {
	case opts.Issuer != "":
		provider, err := oidc.NewProvider(b.withClient(ctx), opts.Issuer)
		if err != nil {
			return nil, fmt.Errorf("[oidcbackend New] discovery failed for %s: %w", opts.Issuer, err)
		}
		endpoint = provider.Endpoint()
	case opts.TokenURL != "":
		endpoint = oauth2.Endpoint{TokenURL: opts.TokenURL}
	default:
		return nil, errors.New("[oidcbackend New] issuer or token url is required")
	}

	b.oauth = &oauth2.Config{
		ClientID:     opts.ClientID,
		ClientSecret: opts.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       opts.Scopes,
	}
	return b, nil
}

func (b *Backend) GetSession(ctx context.Context) (*authmodel.Session, error) {
	var session authmodel.Session
	found, err := storage.GetJSON(ctx, b.store, SessionKey, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

func (b *Backend) RefreshSession(ctx context.Context) (*authmodel.Session, error) {
	current, err := b.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil || current.RefreshToken == "" {
		return nil, autherrors.ErrNoSession
	}

	// An already expired token forces the source to use the refresh grant.
	source := b.oauth.TokenSource(b.withClient(ctx), &oauth2.Token{
		RefreshToken: current.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherrors.ErrRefreshFailed, err)
	}

	session, err := b.sessionFromToken(token, current.UserID)
	if err != nil {
		return nil, err
	}
	if err := storage.SetJSON(ctx, b.store, SessionKey, session); err != nil {
		return nil, err
	}
	b.listeners.Emit(backend.AuthChange{Event: backend.EventTokenRefreshed, Session: session.Clone()})
	return session, nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*authmodel.User, error) {
	if !backend.ValidEmail(email) {
		return nil, backend.NewCodedError(backend.CodeInvalidEmail, email)
	}

	token, err := b.oauth.PasswordCredentialsToken(b.withClient(ctx), email, password)
	if err != nil {
		return nil, mapGrantError(err)
	}

	session, err := b.sessionFromToken(token, "")
	if err != nil {
		return nil, err
	}
	if err := storage.SetJSON(ctx, b.store, SessionKey, session); err != nil {
		return nil, err
	}
	b.logger.Info().Str("user_id", session.UserID).Msg("Signed in")
	b.listeners.Emit(backend.AuthChange{Event: backend.EventSignedIn, Session: session.Clone()})
	return &authmodel.User{ID: session.UserID, Email: email}, nil
}

// SignOut forgets the local session. Token revocation is left to the
// authorization server's expiry.
func (b *Backend) SignOut(ctx context.Context) error {
	if err := b.store.Delete(ctx, SessionKey); err != nil {
		return fmt.Errorf("[oidcbackend SignOut] %w", err)
	}
	b.listeners.Emit(backend.AuthChange{Event: backend.EventSignedOut})
	return nil
}

func (b *Backend) OnAuthStateChange(callback func(backend.AuthChange)) func() {
	return b.listeners.Add(callback)
}

func (b *Backend) withClient(ctx context.Context) context.Context {
	if b.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

// sessionFromToken reads sub and exp from the access token when it is a
// JWT. The server is trusted here; verification belongs to the APIs the
// token is presented to.
func (b *Backend) sessionFromToken(token *oauth2.Token, fallbackUserID string) (*authmodel.Session, error) {
	session := &authmodel.Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		UserID:       fallbackUserID,
		ExpiresAt:    token.Expiry,
	}

	claims := &jwtlib.RegisteredClaims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token.AccessToken, claims); err == nil {
		if claims.Subject != "" {
			session.UserID = claims.Subject
		}
		if claims.ExpiresAt != nil {
			session.ExpiresAt = claims.ExpiresAt.Time
		}
	}

	if session.UserID == "" {
		return nil, errors.New("[oidcbackend] token carries no subject")
	}
	if session.ExpiresAt.IsZero() {
		return nil, errors.New("[oidcbackend] token carries no expiry")
	}
	if !session.ExpiresAt.After(b.now()) {
		return nil, autherrors.ErrSessionExpired
	}
	session.ExpiresAt = session.ExpiresAt.UTC()
	return session, nil
}

// mapGrantError turns an OAuth2 error response into a coded credential
// error where possible.
func mapGrantError(err error) error {
	var retrieve *oauth2.RetrieveError
	if !errors.As(err, &retrieve) {
		return err
	}
	description := strings.ToLower(retrieve.ErrorDescription)
	switch {
	case retrieve.ErrorCode == "user_not_found", strings.Contains(description, "not found"), strings.Contains(description, "unknown user"):
		return backend.NewCodedError(backend.CodeUserNotFound, retrieve.ErrorDescription)
	case retrieve.ErrorCode == "invalid_grant":
		return backend.NewCodedError(backend.CodeWrongPassword, retrieve.ErrorDescription)
	case retrieve.ErrorCode == "invalid_request" && strings.Contains(description, "email"):
		return backend.NewCodedError(backend.CodeInvalidEmail, retrieve.ErrorDescription)
	}
	return err
}
