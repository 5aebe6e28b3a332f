package memstore

import (
	"context"
	"marketplace-api/internal/storage"
	"sort"
)

func cloneProduct(p storage.Product) storage.Product {
	p.Images = append([]storage.Image{}, p.Images...)
	return p
}

func (s *Store) CreateProduct(_ context.Context, p *storage.Product) error {
	if len(p.Images) > storage.MaxProductImages {
		return storage.ErrImageLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[p.Owner]; !ok {
		return storage.ErrNotFound
	}

	now := s.now().UTC()
	p.ID, p.CreatedAt, p.UpdatedAt = newID(), now, now
	if p.Thumbnail == "" && len(p.Images) > 0 {
		p.Thumbnail = p.Images[0].URL
	}
	if p.Images == nil {
		p.Images = []storage.Image{}
	}
	cp := cloneProduct(*p)
	s.products[p.ID] = &cp
	return nil
}

func (s *Store) ProductByID(_ context.Context, id string) (storage.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return storage.Product{}, storage.ErrNotFound
	}
	return cloneProduct(*p), nil
}

func (s *Store) OwnedProduct(ctx context.Context, id, owner string) (storage.Product, error) {
	p, err := s.ProductByID(ctx, id)
	if err != nil {
		return storage.Product{}, err
	}
	if p.Owner != owner {
		return storage.Product{}, storage.ErrNotFound
	}
	return p, nil
}

// updateProduct applies fn to the product owned by owner under the write lock
func (s *Store) updateProduct(id, owner string, fn func(p *storage.Product) error) (storage.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.Owner != owner {
		return storage.Product{}, storage.ErrNotFound
	}
	if err := fn(p); err != nil {
		return storage.Product{}, err
	}
	p.UpdatedAt = s.now().UTC()
	return cloneProduct(*p), nil
}

func (s *Store) UpdateProduct(_ context.Context, id, owner string, f storage.ProductFields, thumbnail *string) (storage.Product, error) {
	return s.updateProduct(id, owner, func(p *storage.Product) error {
		p.Name, p.Price, p.PurchasingDate, p.Category, p.Description = f.Name, f.Price, f.PurchasingDate, f.Category, f.Description
		if thumbnail != nil {
			p.Thumbnail = *thumbnail
		}
		return nil
	})
}

func (s *Store) PushImages(_ context.Context, id, owner string, images []storage.Image) (storage.Product, error) {
	return s.updateProduct(id, owner, func(p *storage.Product) error {
		if len(p.Images)+len(images) > storage.MaxProductImages {
			return storage.ErrImageLimit
		}
		p.Images = append(p.Images, images...)
		if p.Thumbnail == "" && len(p.Images) > 0 {
			p.Thumbnail = p.Images[0].URL
		}
		return nil
	})
}

func (s *Store) PullImage(_ context.Context, id, owner, imageID string) (storage.Product, error) {
	return s.updateProduct(id, owner, func(p *storage.Product) error {
		for i, img := range p.Images {
			if img.ID != imageID {
				continue
			}
			if len(p.Images) <= 1 {
				return storage.ErrImageLimit
			}
			p.Images = append(p.Images[:i], p.Images[i+1:]...)
			return nil
		}
		return storage.ErrNotFound
	})
}

func (s *Store) SetThumbnail(_ context.Context, id, owner, thumbnail string) error {
	_, err := s.updateProduct(id, owner, func(p *storage.Product) error {
		p.Thumbnail = thumbnail
		return nil
	})
	return err
}

func (s *Store) DeleteProduct(_ context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || p.Owner != owner {
		return storage.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// list returns products accepted by keep, newest first, windowed by opts
func (s *Store) list(keep func(p *storage.Product) bool, opts storage.ListOptions) []storage.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []storage.Product
	for _, p := range s.products {
		if keep(p) {
			matched = append(matched, cloneProduct(*p))
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	out := []storage.Product{}
	if opts.Skip >= int64(len(matched)) {
		return out
	}
	matched = matched[opts.Skip:]
	if opts.Limit > 0 && opts.Limit < int64(len(matched)) {
		matched = matched[:opts.Limit]
	}
	return append(out, matched...)
}

func (s *Store) ProductsByCategory(_ context.Context, category string, opts storage.ListOptions) ([]storage.Product, error) {
	return s.list(func(p *storage.Product) bool { return p.Category == category }, opts), nil
}

func (s *Store) LatestProducts(_ context.Context, limit int64) ([]storage.Product, error) {
	return s.list(func(*storage.Product) bool { return true }, storage.ListOptions{Limit: limit}), nil
}

func (s *Store) ProductsByOwner(_ context.Context, owner string, opts storage.ListOptions) ([]storage.Product, error) {
	return s.list(func(p *storage.Product) bool { return p.Owner == owner }, opts), nil
}
