package memstore

import (
	"context"
	"github.com/stretchr/testify/require"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/storetest"
	"testing"
	"time"
)

func TestStore(t *testing.T) {
	storetest.Run(t, New())
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	s := New(Clock(func() time.Time { return now }))
	ctx := context.Background()

	u := storage.User{Name: "Ann", Email: "ann@example.com", Password: "hash"}
	require.NoError(t, s.CreateUser(ctx, &u))
	require.NoError(t, s.PutToken(ctx, storage.TokenPasswordReset, u.ID, "h"))

	now = now.Add(storage.TokenTTL - time.Second)
	_, err := s.TokenByOwner(ctx, storage.TokenPasswordReset, u.ID)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.TokenByOwner(ctx, storage.TokenPasswordReset, u.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReturnedUserIsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()

	u := storage.User{Name: "Bob", Email: "bob@example.com", Password: "hash"}
	require.NoError(t, s.CreateUser(ctx, &u))
	require.NoError(t, s.AddRefreshToken(ctx, u.ID, "r1"))

	got, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	got.Tokens[0] = "mutated"

	again, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"r1"}, again.Tokens)
}
