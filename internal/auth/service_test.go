package auth

import (
	"bytes"
	"context"
	"errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"io"
	"marketplace-api/internal/apperr"
	"marketplace-api/internal/media"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/memstore"
	tt "marketplace-api/internal/testing"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type sentMail struct {
	to   string
	link string
}

type fakeNotifier struct {
	mu      sync.Mutex
	verify  []sentMail
	reset   []sentMail
	updated []string
	err     error
}

func (f *fakeNotifier) SendVerification(_ context.Context, to, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verify = append(f.verify, sentMail{to, link})
	return f.err
}

func (f *fakeNotifier) SendPasswordResetLink(_ context.Context, to, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reset = append(f.reset, sentMail{to, link})
	return f.err
}

func (f *fakeNotifier) SendPasswordUpdated(_ context.Context, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, to)
	return f.err
}

type fakeUploader struct {
	uploaded  int
	destroyed []string
}

func (f *fakeUploader) Upload(_ context.Context, r io.Reader, _ media.Transform) (storage.Image, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return storage.Image{}, err
	}
	if !bytes.HasPrefix(b, []byte("img")) {
		return storage.Image{}, media.ErrNotImage
	}
	f.uploaded++
	id := "avatar-" + string(rune('0'+f.uploaded))
	return storage.Image{ID: id, URL: "https://cdn/" + id}, nil
}

func (f *fakeUploader) Destroy(_ context.Context, ids ...string) error {
	f.destroyed = append(f.destroyed, ids...)
	return nil
}

type fixture struct {
	svc    *Service
	store  *memstore.Store
	mail   *fakeNotifier
	images *fakeUploader
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	cfg := Config{
		JWTSecret:         "test-secret",
		AccessTTL:         time.Minute,
		RefreshTTL:        time.Hour,
		BcryptCost:        bcrypt.MinCost,
		VerificationLink:  "http://localhost/verify",
		PasswordResetLink: "http://localhost/reset-password",
	}
	f := fixture{
		store:  memstore.New(),
		mail:   &fakeNotifier{},
		images: &fakeUploader{},
	}
	f.svc = NewService(zap.NewNop().Sugar(), cfg, f.store, f.mail, f.images)
	return f
}

func linkParams(t *testing.T, link string) (id, token string) {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	return u.Query().Get("id"), u.Query().Get("token")
}

func requireKind(t *testing.T, err error, kind apperr.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err))
	require.Equal(t, msg, apperr.MessageOf(err))
}

func (f fixture) signUp(t *testing.T) (storage.User, tt.Identity) {
	t.Helper()
	id := tt.NewIdentity()
	u, err := f.svc.SignUp(context.Background(), id.Name, id.Email, id.Password)
	require.NoError(t, err)
	return u, id
}

func TestSignUp(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	id := tt.NewIdentity()
	u, err := f.svc.SignUp(ctx, id.Name, "  "+strings.ToUpper(id.Email)+" ", id.Password)
	require.NoError(t, err)
	require.Equal(t, id.Email, u.Email)
	require.False(t, u.Verified)
	require.NotEqual(t, id.Password, u.Password)

	require.Len(t, f.mail.verify, 1)
	require.Equal(t, id.Email, f.mail.verify[0].to)
	owner, token := linkParams(t, f.mail.verify[0].link)
	require.Equal(t, u.ID, owner)
	require.NotEmpty(t, token)

	_, err = f.svc.SignUp(ctx, id.Name, id.Email, id.Password)
	requireKind(t, err, apperr.KindValidation, "User already exist")
}

func TestSignUpSurvivesMailFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.mail.err = errors.New("smtp down")

	u, _ := f.signUp(t)
	require.NotEmpty(t, u.ID)
}

func TestVerify(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, _ := f.signUp(t)
	owner, token := linkParams(t, f.mail.verify[0].link)

	err := f.svc.Verify(ctx, owner, "wrong")
	requireKind(t, err, apperr.KindForbidden, "Unauthorized request, invalid token")

	err = f.svc.Verify(ctx, "not-an-id", token)
	requireKind(t, err, apperr.KindForbidden, "Unauthorized request")

	require.NoError(t, f.svc.Verify(ctx, owner, token))
	stored, err := f.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, stored.Verified)

	// tokens are single use
	err = f.svc.Verify(ctx, owner, token)
	requireKind(t, err, apperr.KindForbidden, "Unauthorized request")
}

func TestResendVerificationReplacesToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, _ := f.signUp(t)
	_, first := linkParams(t, f.mail.verify[0].link)

	require.NoError(t, f.svc.ResendVerification(ctx, u))
	require.Len(t, f.mail.verify, 2)
	_, second := linkParams(t, f.mail.verify[1].link)

	err := f.svc.Verify(ctx, u.ID, first)
	requireKind(t, err, apperr.KindForbidden, "Unauthorized request, invalid token")
	require.NoError(t, f.svc.Verify(ctx, u.ID, second))
}

func TestSignIn(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, id := f.signUp(t)

	_, err := f.svc.SignIn(ctx, id.Email, id.Password+"x")
	requireKind(t, err, apperr.KindForbidden, "Email and or password mismatch")
	_, err = f.svc.SignIn(ctx, "nobody@example.com", id.Password)
	requireKind(t, err, apperr.KindForbidden, "Email and or password mismatch")

	session, err := f.svc.SignIn(ctx, strings.ToUpper(id.Email), id.Password)
	require.NoError(t, err)
	require.Equal(t, u.ID, session.User.ID)

	stored, err := f.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{session.Tokens.Refresh}, stored.Tokens)

	authed, err := f.svc.Authenticate(ctx, session.Tokens.Access)
	require.NoError(t, err)
	require.Equal(t, u.ID, authed.ID)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Authenticate(ctx, "garbage")
	require.True(t, errors.Is(err, ErrTokenInvalid))

	other := memstore.New()
	stranger := storage.User{Email: "x@example.com"}
	require.NoError(t, other.CreateUser(ctx, &stranger))
	ghost, err := f.svc.Tokens().Issue(stranger.ID, KindAccess)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, ghost)
	require.True(t, errors.Is(err, ErrUnknownUser))

	f.svc.tokens.now = func() time.Time { return time.Now().Add(-time.Hour) }
	u, _ := f.signUp(t)
	stale, err := f.svc.tokens.Issue(u.ID, KindAccess)
	require.NoError(t, err)
	f.svc.tokens.now = time.Now
	_, err = f.svc.Authenticate(ctx, stale)
	require.True(t, errors.Is(err, ErrTokenExpired))
}

func TestRefreshRotates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, id := f.signUp(t)
	session, err := f.svc.SignIn(ctx, id.Email, id.Password)
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, session.Tokens.Refresh)
	require.NoError(t, err)
	require.NotEqual(t, session.Tokens.Refresh, rotated.Tokens.Refresh)

	stored, err := f.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{rotated.Tokens.Refresh}, stored.Tokens)

	_, err = f.svc.Refresh(ctx, "")
	requireKind(t, err, apperr.KindForbidden, "Unauthorized request")
	_, err = f.svc.Refresh(ctx, session.Tokens.Access)
	requireKind(t, err, apperr.KindAuth, "Unauthorized request")
}

func TestRefreshReuseRevokesSessions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, id := f.signUp(t)
	first, err := f.svc.SignIn(ctx, id.Email, id.Password)
	require.NoError(t, err)
	second, err := f.svc.SignIn(ctx, id.Email, id.Password)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, first.Tokens.Refresh)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, first.Tokens.Refresh)
	requireKind(t, err, apperr.KindAuth, "Unauthorized request")

	stored, err := f.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Tokens)

	_, err = f.svc.Refresh(ctx, second.Tokens.Refresh)
	requireKind(t, err, apperr.KindAuth, "Unauthorized request")
}

func TestSignOut(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, id := f.signUp(t)
	session, err := f.svc.SignIn(ctx, id.Email, id.Password)
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, u.ID, session.Tokens.Refresh))

	err = f.svc.SignOut(ctx, u.ID, session.Tokens.Refresh)
	requireKind(t, err, apperr.KindForbidden, "Unauthorized request, user not found")
}

func TestPasswordReset(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, id := f.signUp(t)
	session, err := f.svc.SignIn(ctx, id.Email, id.Password)
	require.NoError(t, err)

	err = f.svc.ForgetPassword(ctx, "nobody@example.com")
	requireKind(t, err, apperr.KindNotFound, "Account not found")

	require.NoError(t, f.svc.ForgetPassword(ctx, id.Email))
	require.Len(t, f.mail.reset, 1)
	owner, token := linkParams(t, f.mail.reset[0].link)
	require.Equal(t, u.ID, owner)

	err = f.svc.CheckResetToken(ctx, owner, "wrong")
	requireKind(t, err, apperr.KindAuth, "Unauthorized access, invalid token")
	require.NoError(t, f.svc.CheckResetToken(ctx, owner, token))

	err = f.svc.ResetPassword(ctx, owner, token, id.Password)
	requireKind(t, err, apperr.KindValidation, "The new password must be different")

	const next = "Another#Pass9"
	require.NoError(t, f.svc.ResetPassword(ctx, owner, token, next))
	require.Equal(t, []string{id.Email}, f.mail.updated)

	// the reset revoked every session and consumed the token
	_, err = f.svc.Refresh(ctx, session.Tokens.Refresh)
	requireKind(t, err, apperr.KindAuth, "Unauthorized request")
	err = f.svc.CheckResetToken(ctx, owner, token)
	requireKind(t, err, apperr.KindAuth, "Unauthorized access, invalid token")

	_, err = f.svc.SignIn(ctx, id.Email, id.Password)
	require.Error(t, err)
	_, err = f.svc.SignIn(ctx, id.Email, next)
	require.NoError(t, err)
}

func TestUpdateName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, _ := f.signUp(t)

	_, err := f.svc.UpdateName(ctx, u, "  ab ")
	requireKind(t, err, apperr.KindValidation, "Invalid name")

	updated, err := f.svc.UpdateName(ctx, u, "  Jane Doe ")
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", updated.Name)

	stored, err := f.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "Jane Doe", stored.Name)
}

func TestUpdateAvatar(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, _ := f.signUp(t)

	_, err := f.svc.UpdateAvatar(ctx, u, strings.NewReader("pdf"))
	requireKind(t, err, apperr.KindValidation, "Invalid image file")

	u, err = f.svc.UpdateAvatar(ctx, u, strings.NewReader("img-1"))
	require.NoError(t, err)
	first := u.Avatar.ID
	require.Empty(t, f.images.destroyed)

	u, err = f.svc.UpdateAvatar(ctx, u, strings.NewReader("img-2"))
	require.NoError(t, err)
	require.Equal(t, []string{first}, f.images.destroyed)

	profile, err := f.svc.PublicProfile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Avatar.URL, profile.Avatar)
}

func TestPublicProfile(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	u, id := f.signUp(t)

	profile, err := f.svc.PublicProfile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, storage.Profile{ID: u.ID, Name: id.Name}, profile)

	_, err = f.svc.PublicProfile(ctx, "bogus")
	requireKind(t, err, apperr.KindValidation, "Invalid profile ID")

	other := memstore.New()
	stranger := storage.User{Email: "x@example.com"}
	require.NoError(t, other.CreateUser(ctx, &stranger))
	_, err = f.svc.PublicProfile(ctx, stranger.ID)
	requireKind(t, err, apperr.KindNotFound, "User not found")
}
