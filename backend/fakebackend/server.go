// Package fakebackend is an in-process auth and profile service. One
// Server plays the remote backend; each tab gets its own Client, which
// persists its session in that tab's origin storage.
package fakebackend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

const refreshTokenLength = 32

var _ backend.ProfileBackend = (*Server)(nil)

type account struct {
	user         authmodel.User
	passwordHash string
}

// Server holds accounts, profiles and issued refresh tokens.
type Server struct {
	mu            sync.Mutex
	clock         clock.Clock
	signingKey    []byte
	accessTTL     time.Duration
	accounts      map[string]*account // user id -> account
	emails        map[string]string   // email -> user id
	profiles      map[string]*authmodel.Profile
	refreshTokens map[string]string // refresh token -> user id

	refreshFailures []error
	refreshCalls    int
	signInCalls     int
	profileCalls    int
	profileErr      error
	profileGate     <-chan struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) ServerOption {
	return func(s *Server) { s.accessTTL = ttl }
}

// WithSigningKey sets the HS256 key for access tokens.
func WithSigningKey(key []byte) ServerOption {
	return func(s *Server) { s.signingKey = key }
}

// NewServer returns an empty Server.
func NewServer(c clock.Clock, options ...ServerOption) *Server {
	s := &Server{
		clock:         c,
		signingKey:    []byte("fake-backend-signing-key"),
		accessTTL:     time.Hour,
		accounts:      make(map[string]*account),
		emails:        make(map[string]string),
		profiles:      make(map[string]*authmodel.Profile),
		refreshTokens: make(map[string]string),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// AddUser registers an account. A non-empty role also creates a profile.
func (s *Server) AddUser(email, password, username string, role authmodel.Role) (*authmodel.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, fmt.Errorf("[fakebackend AddUser] failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	if _, ok := s.emails[email]; ok {
		return nil, fmt.Errorf("[fakebackend AddUser] %s already registered", email)
	}
	user := authmodel.User{ID: uuid.New().String(), Email: email}
	s.accounts[user.ID] = &account{user: user, passwordHash: string(hash)}
	s.emails[email] = user.ID

	if role != "" {
		s.profiles[user.ID] = &authmodel.Profile{
			ID:       uuid.New().String(),
			UserID:   user.ID,
			Username: username,
			Role:     role,
		}
	}
	return &user, nil
}

// DeleteProfile removes the profile row of userID.
func (s *Server) DeleteProfile(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, userID)
}

// FailRefreshes makes the next n RefreshSession calls fail with err.
func (s *Server) FailRefreshes(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.refreshFailures = append(s.refreshFailures, err)
	}
}

// FailProfiles makes GetProfileByUserID fail with err until reset with nil.
func (s *Server) FailProfiles(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileErr = err
}

// BlockProfiles makes GetProfileByUserID wait until gate is closed,
// ignoring the call's context like a backend that does not observe
// cancellation. Pass nil to unblock future calls.
func (s *Server) BlockProfiles(gate <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileGate = gate
}

// RefreshCalls returns how many refreshes were requested.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// SignInCalls returns how many password sign-ins were attempted.
func (s *Server) SignInCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signInCalls
}

// ProfileCalls returns how many profile lookups were made.
func (s *Server) ProfileCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileCalls
}

func (s *Server) GetProfileByUserID(_ context.Context, userID string) (*authmodel.Profile, error) {
	s.mu.Lock()
	s.profileCalls++
	gate := s.profileGate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	profile := *p
	return &profile, nil
}

func (s *Server) signIn(email, password string) (*authmodel.User, *authmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signInCalls++

	if !backend.ValidEmail(email) {
		return nil, nil, backend.NewCodedError(backend.CodeInvalidEmail, email)
	}
	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, nil, backend.NewCodedError(backend.CodeUserNotFound, email)
	}
	acct := s.accounts[id]
	if bcrypt.CompareHashAndPassword([]byte(acct.passwordHash), []byte(password)) != nil {
		return nil, nil, backend.NewCodedError(backend.CodeWrongPassword, "")
	}

	session, err := s.issueLocked(id)
	if err != nil {
		return nil, nil, err
	}
	user := acct.user
	return &user, session, nil
}

func (s *Server) refresh(refreshToken string) (*authmodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	if len(s.refreshFailures) > 0 {
		err := s.refreshFailures[0]
		s.refreshFailures = s.refreshFailures[1:]
		return nil, err
	}
	userID, ok := s.refreshTokens[refreshToken]
	if !ok {
		return nil, errors.New("invalid refresh token")
	}
	delete(s.refreshTokens, refreshToken)
	return s.issueLocked(userID)
}

func (s *Server) revoke(refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, refreshToken)
}

// issueLocked mints an access token and rotates the refresh token.
func (s *Server) issueLocked(userID string) (*authmodel.Session, error) {
	now := s.clock.Now()
	expiresAt := now.Add(s.accessTTL)

	claims := jwtlib.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		ID:        uuid.New().String(),
	}
	accessToken, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, autherrors.Wrapf(err, "[fakebackend issue] failed to sign access token")
	}

	tokenBytes := make([]byte, refreshTokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	refreshToken := hex.EncodeToString(tokenBytes)
	s.refreshTokens[refreshToken] = userID

	return &authmodel.Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		UserID:       userID,
		ExpiresAt:    time.Unix(expiresAt.Unix(), 0).UTC(),
	}, nil
}

// UserIDFromToken verifies an access token issued by this server and
// returns its subject.
func (s *Server) UserIDFromToken(accessToken string) (string, error) {
	claims := &jwtlib.RegisteredClaims{}
	_, err := jwtlib.ParseWithClaims(accessToken, claims, func(t *jwtlib.Token) (interface{}, error) {
		return s.signingKey, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
