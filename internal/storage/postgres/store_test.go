package postgres

import (
	"context"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/storetest"
	"os"
	"testing"
	"time"
)

func bootstrap(t *testing.T) *Store {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN is not set")
	}

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, logger.Sugar(), dsn, ConnectionTimeout(10*time.Second), MaxConns(8))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, bootstrap(t))
}

func TestValidID(t *testing.T) {
	s := &Store{}
	require.True(t, s.ValidID(newID()))
	require.False(t, s.ValidID("64b7f0c2e13f4a2d9c1b0a11"))
}

func TestTokenTable(t *testing.T) {
	name, err := tokenTable(storage.TokenPasswordReset)
	require.NoError(t, err)
	require.Equal(t, `"password_reset_tokens"`, name)

	_, err = tokenTable("session")
	require.Error(t, err)
}

func TestLimit(t *testing.T) {
	require.Nil(t, limit(0))
	require.Equal(t, int64(10), *limit(10))
}
