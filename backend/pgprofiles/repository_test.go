package pgprofiles_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jrsteele09/go-auth-session/authmodel"
	"github.com/jrsteele09/go-auth-session/backend/pgprofiles"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []string
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		*(dest[i].(*string)) = r.values[i]
	}
	return nil
}

type fakeQuerier struct {
	row  fakeRow
	sql  string
	args []any
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql = sql
	q.args = args
	return q.row
}

func TestGetProfileByUserID(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: []string{"p1", "u1", "sam", "child"}}}
	profile, err := pgprofiles.New(q).GetProfileByUserID(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, &authmodel.Profile{ID: "p1", UserID: "u1", Username: "sam", Role: authmodel.RoleChild}, profile)
	require.Equal(t, "SELECT id, user_id, username, role FROM profiles WHERE user_id = $1 LIMIT 1", q.sql)
	require.Equal(t, []any{"u1"}, q.args)
}

func TestGetProfileMissing(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}
	profile, err := pgprofiles.New(q).GetProfileByUserID(context.Background(), "u1")
	require.NoError(t, err)
	require.Nil(t, profile)
}

func TestGetProfileErrors(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{err: errors.New("connection reset")}}
	_, err := pgprofiles.New(q).GetProfileByUserID(context.Background(), "u1")
	require.Error(t, err)

	q = &fakeQuerier{row: fakeRow{values: []string{"p1", "u1", "sam", "admin"}}}
	_, err = pgprofiles.New(q).GetProfileByUserID(context.Background(), "u1")
	require.ErrorContains(t, err, "unknown role")
}
