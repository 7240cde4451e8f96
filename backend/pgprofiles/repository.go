// Package pgprofiles reads profile rows from Postgres.
package pgprofiles

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend"
)

const (
	table       = "profiles"
	colID       = "id"
	colUserID   = "user_id"
	colUsername = "username"
	colRole     = "role"
)

// Querier is the part of pgxpool.Pool the repository uses.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type repo struct {
	dbc Querier
}

var _ backend.ProfileBackend = (*repo)(nil)

// New returns a ProfileBackend over dbc.
func New(dbc Querier) backend.ProfileBackend {
	return &repo{dbc: dbc}
}

// Connect opens a pool for dsn and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("[pgprofiles Connect] failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("[pgprofiles Connect] ping failed: %w", err)
	}
	return pool, nil
}

// GetProfileByUserID returns the profile row of userID, or nil when the
// row is missing.
func (r *repo) GetProfileByUserID(ctx context.Context, userID string) (*authmodel.Profile, error) {
	query := sq.Select(colID, colUserID, colUsername, colRole).
		From(table).
		Where(sq.Eq{colUserID: userID}).
		Limit(1).
		PlaceholderFormat(sq.Dollar)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var profile authmodel.Profile
	var role string
	err = r.dbc.QueryRow(ctx, sqlStr, args...).Scan(&profile.ID, &profile.UserID, &profile.Username, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[pgprofiles GetProfileByUserID] %s: %w", userID, err)
	}

	profile.Role = authmodel.Role(role)
	if !profile.Role.Valid() {
		return nil, fmt.Errorf("[pgprofiles GetProfileByUserID] unknown role %q for user %s", role, userID)
	}
	return &profile, nil
}
