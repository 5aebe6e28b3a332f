package product

import (
	"context"
	"errors"
	"fmt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"io"
	"marketplace-api/internal/apperr"
	"marketplace-api/internal/media"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/memstore"
	tt "marketplace-api/internal/testing"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeImages struct {
	mu         sync.Mutex
	uploaded   int
	destroyed  []string
	destroyErr error
}

func (f *fakeImages) UploadAll(_ context.Context, files []io.Reader, _ media.Transform) ([]storage.Image, error) {
	images := make([]storage.Image, 0, len(files))
	for _, r := range files {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(string(b), "img") {
			return nil, media.ErrNotImage
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for range files {
		f.uploaded++
		id := fmt.Sprintf("img-%d", f.uploaded)
		images = append(images, storage.Image{ID: id, URL: "https://cdn/" + id + ".jpg"})
	}
	return images, nil
}

func (f *fakeImages) Destroy(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	f.destroyed = append(f.destroyed, ids...)
	return nil
}

func files(n int) []io.Reader {
	r := make([]io.Reader, n)
	for i := range r {
		r[i] = strings.NewReader("img")
	}
	return r
}

func fields() storage.ProductFields {
	return storage.ProductFields{
		Name:           tt.ProductName(),
		Price:          120.5,
		PurchasingDate: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		Category:       "Electronics",
		Description:    tt.Sentence(),
	}
}

type fixture struct {
	svc    *Service
	store  *memstore.Store
	images *fakeImages
	owner  storage.User
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{store: memstore.New(), images: &fakeImages{}}
	f.svc = NewService(zap.NewNop().Sugar(), f.store, f.images)

	id := tt.NewIdentity()
	f.owner = storage.User{Name: id.Name, Email: id.Email, Password: "hash"}
	require.NoError(t, f.store.CreateUser(context.Background(), &f.owner))
	return f
}

func requireMessage(t *testing.T, err error, kind apperr.Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, apperr.KindOf(err))
	require.Equal(t, msg, apperr.MessageOf(err))
}

func TestPaging(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		paging Paging
		want   storage.ListOptions
	}{
		{name: "defaults", paging: Paging{}, want: storage.ListOptions{Skip: 0, Limit: 10}},
		{name: "third page", paging: Paging{PageNo: 3, Limit: 5}, want: storage.ListOptions{Skip: 10, Limit: 5}},
		{name: "negative page", paging: Paging{PageNo: -2, Limit: 5}, want: storage.ListOptions{Skip: 0, Limit: 5}},
		{name: "capped limit", paging: Paging{PageNo: 2, Limit: 1000}, want: storage.ListOptions{Skip: 100, Limit: 100}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.paging.options())
		})
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner.ID, fields(), files(3))
	require.NoError(t, err)
	require.Len(t, p.Images, 3)
	require.Equal(t, p.Images[0].URL, p.Thumbnail)

	d, err := f.svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.Name, d.Name)
	require.Equal(t, f.owner.Profile(), d.Seller)
	require.Len(t, d.Images, 3)
	require.Equal(t, p.PurchasingDate, d.Date)
}

func TestCreateKeepsPlainText(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	in := fields()
	in.Name = "Tom & Jerry's <b>box set</b>"
	in.Description = "Works if price < 5 and > 2, I <3 it"

	p, err := f.svc.Create(ctx, f.owner.ID, in, files(1))
	require.NoError(t, err)

	d, err := f.svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, "Tom & Jerry's box set", d.Name)
	require.Equal(t, in.Description, d.Description)
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.owner.ID, fields(), files(6))
	requireMessage(t, err, apperr.KindValidation, "Image files cannot be more than five")

	bad := fields()
	bad.Category = "Weapons"
	_, err = f.svc.Create(ctx, f.owner.ID, bad, files(1))
	requireMessage(t, err, apperr.KindValidation, "Invalid category")

	_, err = f.svc.Create(ctx, f.owner.ID, fields(), []io.Reader{strings.NewReader("img"), strings.NewReader("pdf")})
	requireMessage(t, err, apperr.KindValidation, "Invalid file type, files must be an image")
	require.Zero(t, f.images.uploaded)
}

func TestCreateWithoutImages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	p, err := f.svc.Create(context.Background(), f.owner.ID, fields(), nil)
	require.NoError(t, err)
	require.Empty(t, p.Images)
	require.Empty(t, p.Thumbnail)
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner.ID, fields(), files(2))
	require.NoError(t, err)

	next := fields()
	next.Name = "Renamed"
	next.Category = "Books"
	thumbnail := "https://cdn/custom.jpg"
	updated, err := f.svc.Update(ctx, p.ID, f.owner.ID, next, &thumbnail, files(2))
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, "Books", updated.Category)
	require.Equal(t, thumbnail, updated.Thumbnail)
	require.Len(t, updated.Images, 4)

	_, err = f.svc.Update(ctx, p.ID, f.owner.ID, next, nil, files(2))
	requireMessage(t, err, apperr.KindValidation, "Image files cannot be more than five")

	updated, err = f.svc.Update(ctx, p.ID, f.owner.ID, next, nil, files(1))
	require.NoError(t, err)
	require.Len(t, updated.Images, 5)

	_, err = f.svc.Update(ctx, p.ID, f.owner.ID, next, nil, files(1))
	requireMessage(t, err, apperr.KindValidation, "Product already has five images")
}

func TestUpdateOwnership(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner.ID, fields(), files(1))
	require.NoError(t, err)

	stranger := storage.User{Email: "stranger@example.com"}
	require.NoError(t, f.store.CreateUser(ctx, &stranger))

	_, err = f.svc.Update(ctx, p.ID, stranger.ID, fields(), nil, nil)
	requireMessage(t, err, apperr.KindNotFound, "No product found")

	_, err = f.svc.Update(ctx, "bad", f.owner.ID, fields(), nil, nil)
	requireMessage(t, err, apperr.KindValidation, "Invalid product ID")

	err = f.svc.Delete(ctx, p.ID, stranger.ID)
	requireMessage(t, err, apperr.KindNotFound, "No product found")
}

func TestDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner.ID, fields(), files(2))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, p.ID, f.owner.ID))
	require.ElementsMatch(t, []string{p.Images[0].ID, p.Images[1].ID}, f.images.destroyed)

	_, err = f.svc.Detail(ctx, p.ID)
	requireMessage(t, err, apperr.KindNotFound, "Product not found")
}

func TestDeleteKeepsProductWhenDestroyFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner.ID, fields(), files(1))
	require.NoError(t, err)

	f.images.destroyErr = errors.New("provider down")
	err = f.svc.Delete(ctx, p.ID, f.owner.ID)
	require.Equal(t, apperr.KindUpstream, apperr.KindOf(err))

	_, err = f.svc.Detail(ctx, p.ID)
	require.NoError(t, err)
}

func TestDeleteImage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner.ID, fields(), files(2))
	require.NoError(t, err)
	first, second := p.Images[0], p.Images[1]

	err = f.svc.DeleteImage(ctx, p.ID, f.owner.ID, "missing")
	requireMessage(t, err, apperr.KindNotFound, "Image not found")

	require.NoError(t, f.svc.DeleteImage(ctx, p.ID, f.owner.ID, first.ID))
	require.Equal(t, []string{first.ID}, f.images.destroyed)

	d, err := f.svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{second.URL}, d.Images)
	require.Equal(t, second.URL, d.Thumbnail)

	err = f.svc.DeleteImage(ctx, p.ID, f.owner.ID, second.ID)
	requireMessage(t, err, apperr.KindValidation, "Product images cannot be less than one")
}

func TestDeleteImageKeepsCustomThumbnail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, f.owner.ID, fields(), files(2))
	require.NoError(t, err)

	thumbnail := p.Images[1].URL
	_, err = f.svc.Update(ctx, p.ID, f.owner.ID, fields(), &thumbnail, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteImage(ctx, p.ID, f.owner.ID, p.Images[0].ID))

	d, err := f.svc.Detail(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, thumbnail, d.Thumbnail)
}

func TestListings(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	var created []storage.Product
	for i := 0; i < 3; i++ {
		fs := fields()
		if i == 2 {
			fs.Category = "Books"
		}
		p, err := f.svc.Create(ctx, f.owner.ID, fs, files(1))
		require.NoError(t, err)
		created = append(created, p)
	}

	electronics, err := f.svc.ByCategory(ctx, "Electronics", Paging{})
	require.NoError(t, err)
	require.Len(t, electronics, 2)

	_, err = f.svc.ByCategory(ctx, "Weapons", Paging{})
	requireMessage(t, err, apperr.KindValidation, "Invalid category")

	latest, err := f.svc.Latest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 3)

	own, err := f.svc.Listings(ctx, f.owner, Paging{PageNo: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, own, 2)
	for _, d := range own {
		require.Equal(t, f.owner.Profile(), d.Seller)
	}

	own, err = f.svc.Listings(ctx, f.owner, Paging{PageNo: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, own, 1)

	ids := map[string]bool{}
	for _, p := range created {
		ids[p.ID] = true
	}
	for _, l := range latest {
		require.True(t, ids[l.ID])
	}
}

func TestValidCategory(t *testing.T) {
	t.Parallel()

	for _, c := range Categories {
		require.True(t, ValidCategory(c))
	}
	require.False(t, ValidCategory("electronics"))
	require.False(t, ValidCategory(""))
}
