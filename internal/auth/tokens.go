package auth

import (
	"errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"time"
)

var (
	ErrTokenExpired = errors.New("jwt expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Kind tells access tokens from refresh tokens
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims carried by every issued token
type Claims struct {
	UserID string `json:"id"`
	Kind   Kind   `json:"kind"`
	jwt.RegisteredClaims
}

// Pair is returned on sign-in and refresh
type Pair struct {
	Access  string `json:"accessToken"`
	Refresh string `json:"refreshToken"`
}

// Tokens issues and verifies HS256 tokens
type Tokens struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokens(secret string, accessTTL, refreshTTL time.Duration) *Tokens {
	return &Tokens{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue signs a token of the given kind for userID
// jti keeps two tokens issued within the same second distinct
func (t *Tokens) Issue(userID string, kind Kind) (string, error) {
	ttl := t.accessTTL
	if kind == KindRefresh {
		ttl = t.refreshTTL
	}

	now := t.now()
	claims := Claims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *Tokens) IssuePair(userID string) (Pair, error) {
	access, err := t.Issue(userID, KindAccess)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := t.Issue(userID, KindRefresh)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Verify parses token and checks it is of the expected kind
// It returns ErrTokenExpired or ErrTokenInvalid
func (t *Tokens) Verify(token string, kind Kind) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrTokenExpired
	case err != nil:
		return Claims{}, ErrTokenInvalid
	}

	if claims.Kind != kind || claims.UserID == "" {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}
