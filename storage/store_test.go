package storage_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/stretchr/testify/require"
)

type record struct {
	Token string `json:"token"`
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := storage.NewInMemoryStore()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	require.Error(t, s.Set(ctx, "", nil))
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	s := storage.NewInMemoryStore()

	var r record
	found, err := storage.GetJSON(ctx, s, "session", &r)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, storage.SetJSON(ctx, s, "session", record{Token: "t1"}))
	found, err = storage.GetJSON(ctx, s, "session", &r)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "t1", r.Token)

	require.NoError(t, s.Set(ctx, "session", []byte("{")))
	_, err = storage.GetJSON(ctx, s, "session", &r)
	require.Error(t, err)
}
