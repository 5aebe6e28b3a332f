package postgres

import (
	"context"
	"github.com/jackc/pgx/v4"
	"marketplace-api/internal/storage"
	"time"
)

const productColumns = "id, owner, name, price, purchasing_date, category, thumbnail, description, created_at, updated_at"

func scanProduct(row pgx.Row) (storage.Product, error) {
	var p storage.Product
	err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.Price, &p.PurchasingDate, &p.Category, &p.Thumbnail, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return storage.Product{}, translate(err)
	}
	return p, nil
}

// attachImages loads images of every product in a single query
func (s *Store) attachImages(ctx context.Context, q pgx.Tx, products []storage.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]string, len(products))
	index := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		index[p.ID] = i
		products[i].Images = []storage.Image{}
	}

	sql := "select product_id, image_id, url from product_images where product_id = any($1) order by product_id, position"
	var (
		rows pgx.Rows
		err  error
	)
	if q != nil {
		rows, err = q.Query(ctx, sql, ids)
	} else {
		rows, err = s.db.Query(ctx, sql, ids)
	}
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID string
			img       storage.Image
		)
		if err := rows.Scan(&productID, &img.ID, &img.URL); err != nil {
			return err
		}
		i := index[productID]
		products[i].Images = append(products[i].Images, img)
	}

	return rows.Err()
}

func (s *Store) queryProducts(ctx context.Context, sql string, args ...interface{}) ([]storage.Product, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []storage.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	rows.Close()

	if err := s.attachImages(ctx, nil, products); err != nil {
		return nil, err
	}

	return products, nil
}

// CreateProduct performs two-step transaction to create product
// (1. insert product record; 2. bulk insert on "product_images" table)
func (s *Store) CreateProduct(ctx context.Context, p *storage.Product) error {
	s.logger.Debugf("Creating product (%s) for user (id: %s)", p.Name, p.Owner)

	if len(p.Images) > storage.MaxProductImages {
		return storage.ErrImageLimit
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	// error handling can be omitted for rollback according docs
	defer tx.Rollback(context.Background())

	now := time.Now().UTC()
	id := newID()
	if p.Thumbnail == "" && len(p.Images) > 0 {
		p.Thumbnail = p.Images[0].URL
	}

	sql := `insert into products (id, owner, name, price, purchasing_date, category, thumbnail, description, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`
	_, err = tx.Exec(ctx, sql, id, p.Owner, p.Name, p.Price, p.PurchasingDate, p.Category, p.Thumbnail, p.Description, now)
	if err != nil {
		return translate(err)
	}

	if len(p.Images) > 0 {
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"product_images"}, imageColumns, copyFromBulk(imageRows(id, 0, p.Images)))
		if err != nil {
			return translate(err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}

	p.ID, p.CreatedAt, p.UpdatedAt = id, now, now
	if p.Images == nil {
		p.Images = []storage.Image{}
	}

	s.logger.Debugf("Created product (%s) with id %s", p.Name, id)

	return nil
}

func (s *Store) ProductByID(ctx context.Context, id string) (storage.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, "select "+productColumns+" from products where id = $1", id))
	if err != nil {
		return storage.Product{}, err
	}
	products := []storage.Product{p}
	if err := s.attachImages(ctx, nil, products); err != nil {
		return storage.Product{}, err
	}
	return products[0], nil
}

func (s *Store) OwnedProduct(ctx context.Context, id, owner string) (storage.Product, error) {
	p, err := scanProduct(s.db.QueryRow(ctx, "select "+productColumns+" from products where id = $1 and owner = $2", id, owner))
	if err != nil {
		return storage.Product{}, err
	}
	products := []storage.Product{p}
	if err := s.attachImages(ctx, nil, products); err != nil {
		return storage.Product{}, err
	}
	return products[0], nil
}

func (s *Store) UpdateProduct(ctx context.Context, id, owner string, f storage.ProductFields, thumbnail *string) (storage.Product, error) {
	s.logger.Debugf("Updating product (id: %s)", id)

	sql := `update products
			   set name = $3, price = $4, purchasing_date = $5, category = $6, description = $7,
				   thumbnail = coalesce($8, thumbnail), updated_at = $9
			 where id = $1 and owner = $2
			returning ` + productColumns
	p, err := scanProduct(s.db.QueryRow(ctx, sql, id, owner, f.Name, f.Price, f.PurchasingDate, f.Category, f.Description, thumbnail, time.Now().UTC()))
	if err != nil {
		return storage.Product{}, err
	}

	products := []storage.Product{p}
	if err := s.attachImages(ctx, nil, products); err != nil {
		return storage.Product{}, err
	}
	return products[0], nil
}

// lockOwned locks the product row for the rest of tx so image bounds hold under concurrent updates
func lockOwned(ctx context.Context, tx pgx.Tx, id, owner string) (storage.Product, error) {
	return scanProduct(tx.QueryRow(ctx, "select "+productColumns+" from products where id = $1 and owner = $2 for update", id, owner))
}

func (s *Store) PushImages(ctx context.Context, id, owner string, images []storage.Image) (storage.Product, error) {
	s.logger.Debugf("Adding %d images to product (id: %s)", len(images), id)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storage.Product{}, err
	}
	defer tx.Rollback(context.Background())

	p, err := lockOwned(ctx, tx, id, owner)
	if err != nil {
		return storage.Product{}, err
	}

	var (
		count int64
		last  int32
	)
	err = tx.QueryRow(ctx, "select count(*), coalesce(max(position), 0) from product_images where product_id = $1", id).Scan(&count, &last)
	if err != nil {
		return storage.Product{}, err
	}
	if int(count)+len(images) > storage.MaxProductImages {
		return storage.Product{}, storage.ErrImageLimit
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"product_images"}, imageColumns, copyFromBulk(imageRows(id, last, images)))
	if err != nil {
		return storage.Product{}, translate(err)
	}

	if p.Thumbnail == "" && len(images) > 0 {
		p.Thumbnail = images[0].URL
	}
	p.UpdatedAt = time.Now().UTC()
	_, err = tx.Exec(ctx, "update products set thumbnail = $2, updated_at = $3 where id = $1", id, p.Thumbnail, p.UpdatedAt)
	if err != nil {
		return storage.Product{}, err
	}

	products := []storage.Product{p}
	if err := s.attachImages(ctx, tx, products); err != nil {
		return storage.Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.Product{}, err
	}

	return products[0], nil
}

func (s *Store) PullImage(ctx context.Context, id, owner, imageID string) (storage.Product, error) {
	s.logger.Debugf("Removing image (id: %s) from product (id: %s)", imageID, id)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return storage.Product{}, err
	}
	defer tx.Rollback(context.Background())

	p, err := lockOwned(ctx, tx, id, owner)
	if err != nil {
		return storage.Product{}, err
	}

	var count, held int64
	sql := `select count(*), count(*) filter (where image_id = $2) from product_images where product_id = $1`
	if err := tx.QueryRow(ctx, sql, id, imageID).Scan(&count, &held); err != nil {
		return storage.Product{}, err
	}
	if held == 0 {
		return storage.Product{}, storage.ErrNotFound
	}
	if count <= 1 {
		return storage.Product{}, storage.ErrImageLimit
	}

	_, err = tx.Exec(ctx, "delete from product_images where product_id = $1 and image_id = $2", id, imageID)
	if err != nil {
		return storage.Product{}, err
	}
	_, err = tx.Exec(ctx, "update products set updated_at = $2 where id = $1", id, time.Now().UTC())
	if err != nil {
		return storage.Product{}, err
	}

	products := []storage.Product{p}
	if err := s.attachImages(ctx, tx, products); err != nil {
		return storage.Product{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return storage.Product{}, err
	}

	return products[0], nil
}

func (s *Store) SetThumbnail(ctx context.Context, id, owner, thumbnail string) error {
	sql := "update products set thumbnail = $3, updated_at = $4 where id = $1 and owner = $2"
	return expectRow(s.db.Exec(ctx, sql, id, owner, thumbnail, time.Now().UTC()))
}

func (s *Store) DeleteProduct(ctx context.Context, id, owner string) error {
	s.logger.Debugf("Deleting product (id: %s)", id)
	return expectRow(s.db.Exec(ctx, "delete from products where id = $1 and owner = $2", id, owner))
}

func (s *Store) ProductsByCategory(ctx context.Context, category string, opts storage.ListOptions) ([]storage.Product, error) {
	sql := "select " + productColumns + " from products where category = $1 order by created_at desc offset $2 limit $3"
	return s.queryProducts(ctx, sql, category, opts.Skip, limit(opts.Limit))
}

func (s *Store) LatestProducts(ctx context.Context, n int64) ([]storage.Product, error) {
	sql := "select " + productColumns + " from products order by created_at desc limit $1"
	return s.queryProducts(ctx, sql, limit(n))
}

func (s *Store) ProductsByOwner(ctx context.Context, owner string, opts storage.ListOptions) ([]storage.Product, error) {
	sql := "select " + productColumns + " from products where owner = $1 order by created_at desc offset $2 limit $3"
	return s.queryProducts(ctx, sql, owner, opts.Skip, limit(opts.Limit))
}

// limit maps a non-positive limit to "limit all"
func limit(n int64) *int64 {
	if n <= 0 {
		return nil
	}
	return &n
}
