package auth

import (
	"errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("secret", time.Minute, time.Hour)

	pair, err := tokens.IssuePair("user-1")
	require.NoError(t, err)
	require.NotEqual(t, pair.Access, pair.Refresh)

	claims, err := tokens.Verify(pair.Access, KindAccess)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)

	claims, err = tokens.Verify(pair.Refresh, KindRefresh)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("secret", time.Minute, time.Hour)
	pair, err := tokens.IssuePair("user-1")
	require.NoError(t, err)

	_, err = tokens.Verify(pair.Refresh, KindAccess)
	require.True(t, errors.Is(err, ErrTokenInvalid))
	_, err = tokens.Verify(pair.Access, KindRefresh)
	require.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestVerifyExpired(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("secret", time.Minute, time.Hour)
	issued := time.Now()
	tokens.now = func() time.Time { return issued }

	access, err := tokens.Issue("user-1", KindAccess)
	require.NoError(t, err)

	tokens.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tokens.Verify(access, KindAccess)
	require.True(t, errors.Is(err, ErrTokenExpired))
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("secret", time.Minute, time.Hour)
	other := NewTokens("other", time.Minute, time.Hour)

	access, err := other.Issue("user-1", KindAccess)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: access},
		{name: "garbage", token: "not.a.token"},
		{name: "empty", token: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := tokens.Verify(tc.token, KindAccess)
			require.True(t, errors.Is(err, ErrTokenInvalid))
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("secret", time.Minute, time.Hour)
	claims := Claims{
		UserID: "user-1",
		Kind:   KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tokens.Verify(token, KindAccess)
	require.True(t, errors.Is(err, ErrTokenInvalid))
}

func TestTokensAreUnique(t *testing.T) {
	t.Parallel()

	tokens := NewTokens("secret", time.Minute, time.Hour)
	a, err := tokens.Issue("user-1", KindRefresh)
	require.NoError(t, err)
	b, err := tokens.Issue("user-1", KindRefresh)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestRandomToken(t *testing.T) {
	t.Parallel()

	a, err := randomToken()
	require.NoError(t, err)
	b, err := randomToken()
	require.NoError(t, err)

	require.Len(t, a, 72)
	require.NotEqual(t, a, b)
}
