// Package product implements listings and their image bookkeeping.
package product

import (
	"context"
	"errors"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"html"
	"io"
	"marketplace-api/internal/apperr"
	"marketplace-api/internal/media"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/zapadapter"
	"strings"
	"time"
)

// LatestCount is the number of products returned by Latest
const LatestCount = 10

// Categories every product belongs to one of
var Categories = []string{
	"Electronics",
	"Fashion",
	"Fitness",
	"Home",
	"Books",
	"Toys",
	"Cars",
	"Music",
	"Others",
}

func ValidCategory(c string) bool {
	for _, category := range Categories {
		if category == c {
			return true
		}
	}
	return false
}

// Store is the part of storage.Store used by the Service
type Store interface {
	storage.ProductStore
	UserByID(ctx context.Context, id string) (storage.User, error)
	ValidID(id string) bool
}

// Images stores product pictures
type Images interface {
	UploadAll(ctx context.Context, files []io.Reader, t media.Transform) ([]storage.Image, error)
	Destroy(ctx context.Context, ids ...string) error
}

// Detail is the full public view of a product
type Detail struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       float64         `json:"price"`
	Date        time.Time       `json:"date"`
	Category    string          `json:"category"`
	Images      []string        `json:"images"`
	Thumbnail   string          `json:"thumbnail,omitempty"`
	Description string          `json:"description"`
	Seller      storage.Profile `json:"seller"`
}

// Listing is the short view of a product used in lists
type Listing struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Thumbnail string  `json:"thumbnail,omitempty"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
}

// Paging selects a page of a product list, pages are numbered from 1
type Paging struct {
	PageNo int64
	Limit  int64
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func (p Paging) options() storage.ListOptions {
	if p.PageNo < 1 {
		p.PageNo = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return storage.ListOptions{Skip: (p.PageNo - 1) * p.Limit, Limit: p.Limit}
}

// Service defines fields used by listing operations
type Service struct {
	logger *zap.SugaredLogger
	store  Store
	images Images
	policy *bluemonday.Policy
}

func NewService(logger *zap.SugaredLogger, store Store, images Images) *Service {
	return &Service{
		logger: logger,
		store:  store,
		images: images,
		policy: bluemonday.StrictPolicy(),
	}
}

// clean sanitizes the user supplied text of f and checks its category
func (s *Service) clean(f storage.ProductFields) (storage.ProductFields, error) {
	if !ValidCategory(f.Category) {
		return f, apperr.Validation("Invalid category")
	}
	f.Name = strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(f.Name)))
	f.Description = strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(f.Description)))
	if f.Name == "" {
		return f, apperr.Validation("Name is missing")
	}
	if f.Description == "" {
		return f, apperr.Validation("Description is missing")
	}
	if f.Price < 0 {
		return f, apperr.Validation("Invalid price")
	}
	return f, nil
}

// upload stores files as listing images
func (s *Service) upload(ctx context.Context, files []io.Reader) ([]storage.Image, error) {
	if len(files) == 0 {
		return nil, nil
	}
	images, err := s.images.UploadAll(ctx, files, media.Listing)
	switch {
	case errors.Is(err, media.ErrNotImage):
		return nil, apperr.Validation("Invalid file type, files must be an image")
	case err != nil:
		return nil, apperr.Upstream("Image upload failed", err)
	}
	return images, nil
}

// discard destroys images that could not be attached to a product
func (s *Service) discard(ctx context.Context, images []storage.Image) {
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := s.images.Destroy(context.Background(), ids...); err != nil {
		zapadapter.WithRequestID(ctx, s.logger).Warnf("Failed to remove %d orphaned images: %v", len(ids), err)
	}
}

func (s *Service) Create(ctx context.Context, owner string, f storage.ProductFields, files []io.Reader) (storage.Product, error) {
	f, err := s.clean(f)
	if err != nil {
		return storage.Product{}, err
	}
	if len(files) > storage.MaxProductImages {
		return storage.Product{}, apperr.Validation("Image files cannot be more than five")
	}

	images, err := s.upload(ctx, files)
	if err != nil {
		return storage.Product{}, err
	}

	p := storage.Product{
		Owner:          owner,
		Name:           f.Name,
		Price:          f.Price,
		PurchasingDate: f.PurchasingDate,
		Category:       f.Category,
		Description:    f.Description,
		Images:         images,
	}
	if len(images) > 0 {
		p.Thumbnail = images[0].URL
	}

	if err := s.store.CreateProduct(ctx, &p); err != nil {
		s.discard(ctx, images)
		return storage.Product{}, err
	}

	zapadapter.WithRequestID(ctx, s.logger).Infof("Product (id: %s) listed by (%s)", p.ID, owner)

	return p, nil
}

// Update replaces the editable fields of a product owned by owner and appends files to its images
// A non-nil thumbnail replaces the current one
func (s *Service) Update(ctx context.Context, id, owner string, f storage.ProductFields, thumbnail *string, files []io.Reader) (storage.Product, error) {
	if !s.store.ValidID(id) {
		return storage.Product{}, apperr.Validation("Invalid product ID")
	}
	f, err := s.clean(f)
	if err != nil {
		return storage.Product{}, err
	}

	current, err := s.store.OwnedProduct(ctx, id, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Product{}, apperr.NotFound("No product found")
	}
	if err != nil {
		return storage.Product{}, err
	}

	if len(files) > 0 {
		if len(current.Images) >= storage.MaxProductImages {
			return storage.Product{}, apperr.Validation("Product already has five images")
		}
		if len(current.Images)+len(files) > storage.MaxProductImages {
			return storage.Product{}, apperr.Validation("Image files cannot be more than five")
		}
	}

	images, err := s.upload(ctx, files)
	if err != nil {
		return storage.Product{}, err
	}

	p, err := s.store.UpdateProduct(ctx, id, owner, f, thumbnail)
	if err != nil {
		s.discard(ctx, images)
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Product{}, apperr.NotFound("No product found")
		}
		return storage.Product{}, err
	}

	if len(images) == 0 {
		return p, nil
	}

	p, err = s.store.PushImages(ctx, id, owner, images)
	if err != nil {
		s.discard(ctx, images)
		switch {
		case errors.Is(err, storage.ErrImageLimit):
			return storage.Product{}, apperr.Validation("Image files cannot be more than five")
		case errors.Is(err, storage.ErrNotFound):
			return storage.Product{}, apperr.NotFound("No product found")
		}
		return storage.Product{}, err
	}

	return p, nil
}

// Delete removes a product owned by owner along with its stored images
func (s *Service) Delete(ctx context.Context, id, owner string) error {
	if !s.store.ValidID(id) {
		return apperr.Validation("Invalid product ID")
	}

	p, err := s.store.OwnedProduct(ctx, id, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("No product found")
	}
	if err != nil {
		return err
	}

	if len(p.Images) > 0 {
		ids := make([]string, 0, len(p.Images))
		for _, img := range p.Images {
			ids = append(ids, img.ID)
		}
		if err := s.images.Destroy(ctx, ids...); err != nil {
			return apperr.Upstream("Failed to remove product images", err)
		}
	}

	err = s.store.DeleteProduct(ctx, id, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("No product found")
	}
	return err
}

// DeleteImage detaches imageID from a product owned by owner, the thumbnail moves to the first
// remaining image when it pointed at the removed one
func (s *Service) DeleteImage(ctx context.Context, id, owner, imageID string) error {
	if !s.store.ValidID(id) {
		return apperr.Validation("Invalid product ID")
	}

	p, err := s.store.OwnedProduct(ctx, id, owner)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.NotFound("No product found")
	}
	if err != nil {
		return err
	}

	var removed *storage.Image
	for i := range p.Images {
		if p.Images[i].ID == imageID {
			removed = &p.Images[i]
			break
		}
	}
	if removed == nil {
		return apperr.NotFound("Image not found")
	}

	updated, err := s.store.PullImage(ctx, id, owner, imageID)
	switch {
	case errors.Is(err, storage.ErrImageLimit):
		return apperr.Validation("Product images cannot be less than one")
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound("Image not found")
	case err != nil:
		return err
	}

	if err := s.images.Destroy(ctx, imageID); err != nil {
		zapadapter.WithRequestID(ctx, s.logger).Warnf("Failed to destroy image (%s): %v", imageID, err)
	}

	if updated.Thumbnail == removed.URL || updated.Thumbnail == "" {
		thumbnail := ""
		if len(updated.Images) > 0 {
			thumbnail = updated.Images[0].URL
		}
		if err := s.store.SetThumbnail(ctx, id, owner, thumbnail); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	return nil
}

func imageURLs(images []storage.Image) []string {
	urls := make([]string, 0, len(images))
	for _, img := range images {
		urls = append(urls, img.URL)
	}
	return urls
}

func detail(p storage.Product, seller storage.Profile) Detail {
	return Detail{
		ID:          p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Date:        p.PurchasingDate,
		Category:    p.Category,
		Images:      imageURLs(p.Images),
		Thumbnail:   p.Thumbnail,
		Description: p.Description,
		Seller:      seller,
	}
}

func listings(products []storage.Product) []Listing {
	l := make([]Listing, 0, len(products))
	for _, p := range products {
		l = append(l, Listing{
			ID:        p.ID,
			Name:      p.Name,
			Thumbnail: p.Thumbnail,
			Category:  p.Category,
			Price:     p.Price,
		})
	}
	return l
}

func (s *Service) Detail(ctx context.Context, id string) (Detail, error) {
	if !s.store.ValidID(id) {
		return Detail{}, apperr.Validation("Invalid product ID")
	}

	p, err := s.store.ProductByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Detail{}, apperr.NotFound("Product not found")
	}
	if err != nil {
		return Detail{}, err
	}

	seller := storage.Profile{ID: p.Owner}
	u, err := s.store.UserByID(ctx, p.Owner)
	switch {
	case err == nil:
		seller = u.Profile()
	case !errors.Is(err, storage.ErrNotFound):
		return Detail{}, err
	}

	return detail(p, seller), nil
}

func (s *Service) ByCategory(ctx context.Context, category string, paging Paging) ([]Listing, error) {
	if !ValidCategory(category) {
		return nil, apperr.Validation("Invalid category")
	}
	products, err := s.store.ProductsByCategory(ctx, category, paging.options())
	if err != nil {
		return nil, err
	}
	return listings(products), nil
}

func (s *Service) Latest(ctx context.Context) ([]Listing, error) {
	products, err := s.store.LatestProducts(ctx, LatestCount)
	if err != nil {
		return nil, err
	}
	return listings(products), nil
}

// Listings returns the products of owner in their detailed form, newest first
func (s *Service) Listings(ctx context.Context, owner storage.User, paging Paging) ([]Detail, error) {
	products, err := s.store.ProductsByOwner(ctx, owner.ID, paging.options())
	if err != nil {
		return nil, err
	}

	seller := owner.Profile()
	l := make([]Detail, 0, len(products))
	for _, p := range products {
		l = append(l, detail(p, seller))
	}
	return l, nil
}
