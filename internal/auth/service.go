// Package auth implements accounts, sessions and profiles.
package auth

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"io"
	"marketplace-api/internal/apperr"
	"marketplace-api/internal/media"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/zapadapter"
	"net/url"
	"strings"
)

// ErrUnknownUser is returned by Authenticate when a valid token names a missing user
var ErrUnknownUser = errors.New("user does not exist")

// Store is the part of storage.Store used by the Service
type Store interface {
	storage.UserStore
	storage.TokenStore
	ValidID(id string) bool
}

// Notifier delivers account emails
type Notifier interface {
	SendVerification(ctx context.Context, to, link string) error
	SendPasswordResetLink(ctx context.Context, to, link string) error
	SendPasswordUpdated(ctx context.Context, to string) error
}

// Session is returned on sign-in and refresh
type Session struct {
	User   storage.User
	Tokens Pair
}

// Service defines fields used by account flows
type Service struct {
	logger *zap.SugaredLogger
	store  Store
	tokens *Tokens
	mail   Notifier
	images media.Uploader
	cfg    Config
}

func NewService(logger *zap.SugaredLogger, cfg Config, store Store, mail Notifier, images media.Uploader) *Service {
	return &Service{
		logger: logger,
		store:  store,
		tokens: NewTokens(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
		mail:   mail,
		images: images,
		cfg:    cfg,
	}
}

// Tokens exposes the token issuer, e.g. for the realtime handshake
func (s *Service) Tokens() *Tokens {
	return s.tokens
}

// NormalizeEmail lower-cases and trims email
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func link(base, id, token string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("token", token)
	if strings.Contains(base, "?") {
		return base + "&" + q.Encode()
	}
	return base + "?" + q.Encode()
}

// notify logs delivery failures, mail never fails the calling flow
func (s *Service) notify(ctx context.Context, what string, send func() error) {
	if err := send(); err != nil {
		zapadapter.WithRequestID(ctx, s.logger).Warnf("Failed to send %s: %v", what, err)
	}
}

// issueToken replaces the one-time token of kind held by owner and returns its plain value
func (s *Service) issueToken(ctx context.Context, kind storage.TokenKind, owner string) (string, error) {
	plain, err := randomToken()
	if err != nil {
		return "", err
	}
	hashed, err := hash(plain, s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}
	if err := s.store.PutToken(ctx, kind, owner, hashed); err != nil {
		return "", err
	}
	return plain, nil
}

// checkToken reports whether plain matches the live token of kind held by owner
func (s *Service) checkToken(ctx context.Context, kind storage.TokenKind, owner, plain string) (bool, error) {
	if !s.store.ValidID(owner) {
		return false, nil
	}
	t, err := s.store.TokenByOwner(ctx, kind, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return matches(t.Hash, plain), nil
}

func (s *Service) SignUp(ctx context.Context, name, email, password string) (storage.User, error) {
	email = NormalizeEmail(email)

	hashed, err := hash(password, s.cfg.BcryptCost)
	if err != nil {
		return storage.User{}, err
	}

	u := storage.User{Name: strings.TrimSpace(name), Email: email, Password: hashed}
	err = s.store.CreateUser(ctx, &u)
	if errors.Is(err, storage.ErrDuplicate) {
		return storage.User{}, apperr.Validation("User already exist")
	}
	if err != nil {
		return storage.User{}, err
	}

	token, err := s.issueToken(ctx, storage.TokenVerification, u.ID)
	if err != nil {
		return storage.User{}, err
	}
	s.notify(ctx, "verification link", func() error {
		return s.mail.SendVerification(ctx, u.Email, link(s.cfg.VerificationLink, u.ID, token))
	})

	zapadapter.WithRequestID(ctx, s.logger).Infof("User (id: %s) signed up", u.ID)

	return u, nil
}

func (s *Service) Verify(ctx context.Context, id, token string) error {
	if !s.store.ValidID(id) {
		return apperr.Forbidden("Unauthorized request")
	}
	t, err := s.store.TokenByOwner(ctx, storage.TokenVerification, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Forbidden("Unauthorized request")
	}
	if err != nil {
		return err
	}
	if !matches(t.Hash, token) {
		return apperr.Forbidden("Unauthorized request, invalid token")
	}

	err = s.store.SetVerified(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Forbidden("Unauthorized request, invalid user")
	}
	if err != nil {
		return err
	}

	return s.store.DeleteToken(ctx, storage.TokenVerification, id)
}

// ResendVerification replaces the verification token of u and mails a new link
func (s *Service) ResendVerification(ctx context.Context, u storage.User) error {
	token, err := s.issueToken(ctx, storage.TokenVerification, u.ID)
	if err != nil {
		return err
	}
	s.notify(ctx, "verification link", func() error {
		return s.mail.SendVerification(ctx, u.Email, link(s.cfg.VerificationLink, u.ID, token))
	})
	return nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.UserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return Session{}, apperr.Forbidden("Email and or password mismatch")
	}
	if err != nil {
		return Session{}, err
	}
	if !matches(u.Password, password) {
		return Session{}, apperr.Forbidden("Email and or password mismatch")
	}

	pair, err := s.tokens.IssuePair(u.ID)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.AddRefreshToken(ctx, u.ID, pair.Refresh); err != nil {
		return Session{}, err
	}

	return Session{User: u, Tokens: pair}, nil
}

// Refresh rotates refreshToken. Presenting a token the user no longer holds
// revokes every session of that user
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, apperr.Forbidden("Unauthorized request")
	}
	claims, err := s.tokens.Verify(refreshToken, KindRefresh)
	if err != nil {
		return Session{}, apperr.Auth("Unauthorized request")
	}

	pair, err := s.tokens.IssuePair(claims.UserID)
	if err != nil {
		return Session{}, err
	}

	err = s.store.ReplaceRefreshToken(ctx, claims.UserID, refreshToken, pair.Refresh)
	if errors.Is(err, storage.ErrNotFound) {
		zapadapter.WithRequestID(ctx, s.logger).Warnf("Refresh token reuse for user (id: %s), revoking sessions", claims.UserID)
		if err := s.store.ClearRefreshTokens(ctx, claims.UserID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return Session{}, err
		}
		return Session{}, apperr.Auth("Unauthorized request")
	}
	if err != nil {
		return Session{}, err
	}

	u, err := s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		return Session{}, err
	}

	return Session{User: u, Tokens: pair}, nil
}

func (s *Service) SignOut(ctx context.Context, userID, refreshToken string) error {
	err := s.store.RemoveRefreshToken(ctx, userID, refreshToken)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Forbidden("Unauthorized request, user not found")
	}
	return err
}

// Authenticate resolves an access token to its user
// It returns ErrTokenExpired, ErrTokenInvalid or ErrUnknownUser
func (s *Service) Authenticate(ctx context.Context, accessToken string) (storage.User, error) {
	claims, err := s.tokens.Verify(accessToken, KindAccess)
	if err != nil {
		return storage.User{}, err
	}
	if !s.store.ValidID(claims.UserID) {
		return storage.User{}, ErrTokenInvalid
	}

	u, err := s.store.UserByID(ctx, claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrUnknownUser
	}
	if err != nil {
		return storage.User{}, err
	}

	return u, nil
}

func (s *Service) ForgetPassword(ctx context.Context, email string) error {
	u, err := s.store.UserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("Account not found")
	}
	if err != nil {
		return err
	}

	token, err := s.issueToken(ctx, storage.TokenPasswordReset, u.ID)
	if err != nil {
		return err
	}
	s.notify(ctx, "password reset link", func() error {
		return s.mail.SendPasswordResetLink(ctx, u.Email, link(s.cfg.PasswordResetLink, u.ID, token))
	})

	return nil
}

func (s *Service) CheckResetToken(ctx context.Context, id, token string) error {
	ok, err := s.checkToken(ctx, storage.TokenPasswordReset, id, token)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Auth("Unauthorized access, invalid token")
	}
	return nil
}

// ResetPassword sets a new password, which revokes every refresh token of the user
func (s *Service) ResetPassword(ctx context.Context, id, token, password string) error {
	if err := s.CheckResetToken(ctx, id, token); err != nil {
		return err
	}

	u, err := s.store.UserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Forbidden("Unauthorized access")
	}
	if err != nil {
		return err
	}
	if matches(u.Password, password) {
		return apperr.Validation("The new password must be different")
	}

	hashed, err := hash(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.SetPassword(ctx, id, hashed); err != nil {
		return err
	}
	if err := s.store.DeleteToken(ctx, storage.TokenPasswordReset, id); err != nil {
		return err
	}

	s.notify(ctx, "password update notice", func() error {
		return s.mail.SendPasswordUpdated(ctx, u.Email)
	})

	return nil
}

func (s *Service) UpdateName(ctx context.Context, u storage.User, name string) (storage.User, error) {
	name = strings.TrimSpace(name)
	if len([]rune(name)) < 3 {
		return storage.User{}, apperr.Validation("Invalid name")
	}
	if err := s.store.UpdateName(ctx, u.ID, name); err != nil {
		return storage.User{}, err
	}
	u.Name = name
	return u, nil
}

// UpdateAvatar uploads a new avatar and destroys the previous one
func (s *Service) UpdateAvatar(ctx context.Context, u storage.User, r io.Reader) (storage.User, error) {
	img, err := s.images.Upload(ctx, r, media.Avatar)
	switch {
	case errors.Is(err, media.ErrNotImage):
		return storage.User{}, apperr.Validation("Invalid image file")
	case err != nil:
		return storage.User{}, apperr.Upstream("Image upload failed", err)
	}

	if err := s.store.SetAvatar(ctx, u.ID, img); err != nil {
		return storage.User{}, err
	}

	if u.Avatar != nil && u.Avatar.ID != "" {
		if err := s.images.Destroy(ctx, u.Avatar.ID); err != nil {
			zapadapter.WithRequestID(ctx, s.logger).Warnf("Failed to destroy previous avatar (%s): %v", u.Avatar.ID, err)
		}
	}

	u.Avatar = &img
	return u, nil
}

func (s *Service) PublicProfile(ctx context.Context, id string) (storage.Profile, error) {
	if !s.store.ValidID(id) {
		return storage.Profile{}, apperr.Validation("Invalid profile ID")
	}
	u, err := s.store.UserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Profile{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return storage.Profile{}, err
	}
	return u.Profile(), nil
}
