package mongo

import (
	"context"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"marketplace-api/internal/storage"
)

func (s *Store) CreateProduct(ctx context.Context, p *storage.Product) error {
	s.logger.Debugf("Creating product (%s) for user (id: %s)", p.Name, p.Owner)

	if len(p.Images) > storage.MaxProductImages {
		return storage.ErrImageLimit
	}
	owner, err := objectID(p.Owner)
	if err != nil {
		return err
	}

	t := now()
	if p.Thumbnail == "" && len(p.Images) > 0 {
		p.Thumbnail = p.Images[0].URL
	}
	doc := productDoc{
		ID:             primitive.NewObjectID(),
		Owner:          owner,
		Name:           p.Name,
		Price:          p.Price,
		PurchasingDate: p.PurchasingDate,
		Category:       p.Category,
		Images:         imageDocs(p.Images),
		Thumbnail:      p.Thumbnail,
		Description:    p.Description,
		CreatedAt:      t,
		UpdatedAt:      t,
	}

	if _, err := s.collection(productsCollection).InsertOne(ctx, doc); err != nil {
		return translate(err)
	}

	p.ID, p.CreatedAt, p.UpdatedAt = doc.ID.Hex(), t, t
	if p.Images == nil {
		p.Images = []storage.Image{}
	}

	s.logger.Debugf("Created product (%s) with id %s", p.Name, p.ID)

	return nil
}

func (s *Store) findProduct(ctx context.Context, filter bson.M) (storage.Product, error) {
	var doc productDoc
	if err := s.collection(productsCollection).FindOne(ctx, filter).Decode(&doc); err != nil {
		return storage.Product{}, translate(err)
	}
	return doc.product(), nil
}

// ownedFilter matches the product id held by owner
func ownedFilter(id, owner string) (bson.M, error) {
	pid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	oid, err := objectID(owner)
	if err != nil {
		return nil, err
	}
	return bson.M{"_id": pid, "owner": oid}, nil
}

func (s *Store) ProductByID(ctx context.Context, id string) (storage.Product, error) {
	pid, err := objectID(id)
	if err != nil {
		return storage.Product{}, err
	}
	return s.findProduct(ctx, bson.M{"_id": pid})
}

func (s *Store) OwnedProduct(ctx context.Context, id, owner string) (storage.Product, error) {
	filter, err := ownedFilter(id, owner)
	if err != nil {
		return storage.Product{}, err
	}
	return s.findProduct(ctx, filter)
}

func (s *Store) findOneAndUpdate(ctx context.Context, filter, update bson.M) (storage.Product, error) {
	var doc productDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.collection(productsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return storage.Product{}, translate(err)
	}
	return doc.product(), nil
}

func (s *Store) UpdateProduct(ctx context.Context, id, owner string, f storage.ProductFields, thumbnail *string) (storage.Product, error) {
	s.logger.Debugf("Updating product (id: %s)", id)

	filter, err := ownedFilter(id, owner)
	if err != nil {
		return storage.Product{}, err
	}

	set := bson.M{
		"name":           f.Name,
		"price":          f.Price,
		"purchasingDate": f.PurchasingDate,
		"category":       f.Category,
		"description":    f.Description,
		"updatedAt":      now(),
	}
	if thumbnail != nil {
		set["thumbnail"] = *thumbnail
	}

	return s.findOneAndUpdate(ctx, filter, bson.M{"$set": set})
}

// PushImages only matches while images.(MaxProductImages-len(images)) is absent, which keeps the cap under concurrent pushes
func (s *Store) PushImages(ctx context.Context, id, owner string, images []storage.Image) (storage.Product, error) {
	s.logger.Debugf("Adding %d images to product (id: %s)", len(images), id)

	free := storage.MaxProductImages - len(images)
	if free < 0 {
		return storage.Product{}, storage.ErrImageLimit
	}
	filter, err := ownedFilter(id, owner)
	if err != nil {
		return storage.Product{}, err
	}
	filter[fmt.Sprintf("images.%d", free)] = bson.M{"$exists": false}

	p, err := s.findOneAndUpdate(ctx, filter, bson.M{
		"$push": bson.M{"images": bson.M{"$each": imageDocs(images)}},
		"$set":  bson.M{"updatedAt": now()},
	})
	if isNotFound(err) {
		if _, err := s.OwnedProduct(ctx, id, owner); err != nil {
			return storage.Product{}, err
		}
		return storage.Product{}, storage.ErrImageLimit
	}
	if err != nil {
		return storage.Product{}, err
	}

	if p.Thumbnail == "" && len(p.Images) > 0 {
		p.Thumbnail = p.Images[0].URL
		if err := s.SetThumbnail(ctx, id, owner, p.Thumbnail); err != nil {
			return storage.Product{}, err
		}
	}

	return p, nil
}

// PullImage only matches while a second image exists so the last one can never be removed
func (s *Store) PullImage(ctx context.Context, id, owner, imageID string) (storage.Product, error) {
	s.logger.Debugf("Removing image (id: %s) from product (id: %s)", imageID, id)

	filter, err := ownedFilter(id, owner)
	if err != nil {
		return storage.Product{}, err
	}
	filter["images.id"] = imageID
	filter["images.1"] = bson.M{"$exists": true}

	p, err := s.findOneAndUpdate(ctx, filter, bson.M{
		"$pull": bson.M{"images": bson.M{"id": imageID}},
		"$set":  bson.M{"updatedAt": now()},
	})
	if isNotFound(err) {
		current, err := s.OwnedProduct(ctx, id, owner)
		if err != nil {
			return storage.Product{}, err
		}
		for _, img := range current.Images {
			if img.ID == imageID {
				return storage.Product{}, storage.ErrImageLimit
			}
		}
		return storage.Product{}, storage.ErrNotFound
	}

	return p, err
}

func (s *Store) SetThumbnail(ctx context.Context, id, owner, thumbnail string) error {
	filter, err := ownedFilter(id, owner)
	if err != nil {
		return err
	}
	return matched(s.collection(productsCollection).UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"thumbnail": thumbnail, "updatedAt": now()}}))
}

func (s *Store) DeleteProduct(ctx context.Context, id, owner string) error {
	s.logger.Debugf("Deleting product (id: %s)", id)

	filter, err := ownedFilter(id, owner)
	if err != nil {
		return err
	}
	res, err := s.collection(productsCollection).DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) findProducts(ctx context.Context, filter bson.M, opts storage.ListOptions) ([]storage.Product, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cur, err := s.collection(productsCollection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	products := make([]storage.Product, len(docs))
	for i, d := range docs {
		products[i] = d.product()
	}
	return products, nil
}

func (s *Store) ProductsByCategory(ctx context.Context, category string, opts storage.ListOptions) ([]storage.Product, error) {
	return s.findProducts(ctx, bson.M{"category": category}, opts)
}

func (s *Store) LatestProducts(ctx context.Context, limit int64) ([]storage.Product, error) {
	return s.findProducts(ctx, bson.M{}, storage.ListOptions{Limit: limit})
}

func (s *Store) ProductsByOwner(ctx context.Context, owner string, opts storage.ListOptions) ([]storage.Product, error) {
	oid, err := objectID(owner)
	if err != nil {
		return []storage.Product{}, nil
	}
	return s.findProducts(ctx, bson.M{"owner": oid}, opts)
}
