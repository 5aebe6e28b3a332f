package mongo

import (
	"context"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"marketplace-api/internal/storage"
)

// CreateUser creates user and sets its id
func (s *Store) CreateUser(ctx context.Context, u *storage.User) error {
	s.logger.Debugf("Creating user (%s)", u.Email)

	t := now()
	doc := userDoc{
		ID:        primitive.NewObjectID(),
		Name:      u.Name,
		Email:     u.Email,
		Password:  u.Password,
		Verified:  u.Verified,
		Tokens:    u.Tokens,
		CreatedAt: t,
		UpdatedAt: t,
	}
	if doc.Tokens == nil {
		doc.Tokens = []string{}
	}

	if _, err := s.collection(usersCollection).InsertOne(ctx, doc); err != nil {
		return translate(err)
	}

	u.ID = doc.ID.Hex()
	u.Tokens, u.CreatedAt, u.UpdatedAt = doc.Tokens, t, t

	s.logger.Debugf("Created user (%s) with id %s", u.Email, u.ID)

	return nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (storage.User, error) {
	var doc userDoc
	if err := s.collection(usersCollection).FindOne(ctx, filter).Decode(&doc); err != nil {
		return storage.User{}, translate(err)
	}
	return doc.user(), nil
}

func (s *Store) UserByID(ctx context.Context, id string) (storage.User, error) {
	oid, err := objectID(id)
	if err != nil {
		return storage.User{}, err
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *Store) UserByEmail(ctx context.Context, email string) (storage.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]storage.User, error) {
	cur, err := s.collection(usersCollection).Find(ctx, bson.M{"_id": bson.M{"$in": objectIDs(ids)}})
	if err != nil {
		return nil, err
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	users := make([]storage.User, len(docs))
	for i, d := range docs {
		users[i] = d.user()
	}
	return users, nil
}

func (s *Store) updateUser(ctx context.Context, id string, filter bson.M, update bson.M) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	if filter == nil {
		filter = bson.M{}
	}
	filter["_id"] = oid
	return matched(s.collection(usersCollection).UpdateOne(ctx, filter, update))
}

func (s *Store) SetVerified(ctx context.Context, id string) error {
	return s.updateUser(ctx, id, nil, bson.M{"$set": bson.M{"verified": true, "updatedAt": now()}})
}

func (s *Store) UpdateName(ctx context.Context, id, name string) error {
	return s.updateUser(ctx, id, nil, bson.M{"$set": bson.M{"name": name, "updatedAt": now()}})
}

func (s *Store) SetAvatar(ctx context.Context, id string, avatar storage.Image) error {
	return s.updateUser(ctx, id, nil, bson.M{"$set": bson.M{"avatar": imageDoc(avatar), "updatedAt": now()}})
}

func (s *Store) SetPassword(ctx context.Context, id, hash string) error {
	return s.updateUser(ctx, id, nil, bson.M{"$set": bson.M{"password": hash, "tokens": []string{}, "updatedAt": now()}})
}

func (s *Store) AddRefreshToken(ctx context.Context, id, token string) error {
	return s.updateUser(ctx, id, nil, bson.M{"$push": bson.M{"tokens": token}})
}

// ReplaceRefreshToken swaps the token in place through the positional operator
func (s *Store) ReplaceRefreshToken(ctx context.Context, id, old, new string) error {
	return s.updateUser(ctx, id, bson.M{"tokens": old}, bson.M{"$set": bson.M{"tokens.$": new}})
}

func (s *Store) RemoveRefreshToken(ctx context.Context, id, token string) error {
	return s.updateUser(ctx, id, bson.M{"tokens": token}, bson.M{"$pull": bson.M{"tokens": token}})
}

func (s *Store) ClearRefreshTokens(ctx context.Context, id string) error {
	return s.updateUser(ctx, id, nil, bson.M{"$set": bson.M{"tokens": []string{}}})
}
