// Package mongo implements storage.Store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"marketplace-api/internal/storage"
	"time"
)

const (
	usersCollection              = "users"
	conversationsCollection      = "conversations"
	productsCollection           = "products"
	verificationTokensCollection = "authVerificationTokens"
	resetTokensCollection        = "passwordResetTokens"
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	client *mongo.Client
	db     *mongo.Database
}

var _ storage.Store = (*Store)(nil)

// New connects to uri, verifies the deployment is reachable and ensures indexes on database
func New(ctx context.Context, logger *zap.SugaredLogger, uri, database string, timeout time.Duration) (*Store, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := &Store{
		logger: logger,
		client: client,
		db:     client.Database(database),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	ttl := int32(storage.TokenTTL / time.Second)

	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		conversationsCollection: {
			{Keys: bson.D{{Key: "participantsId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "participants", Value: 1}}},
		},
		productsCollection: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		verificationTokensCollection: {
			{Keys: bson.D{{Key: "owner", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(ttl)},
		},
		resetTokensCollection: {
			{Keys: bson.D{{Key: "owner", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(ttl)},
		},
	}

	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
		s.logger.Debugf("Ensured %d indexes on %s", len(models), name)
	}

	return nil
}

func (s *Store) ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Drop removes the database, used by integration tests
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// objectID parses a hex id, malformed ids cannot match any document
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, storage.ErrNotFound
	}
	return oid, nil
}

func objectIDs(ids []string) []primitive.ObjectID {
	oids := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	return oids
}

func hexes(oids []primitive.ObjectID) []string {
	ids := make([]string, len(oids))
	for i, oid := range oids {
		ids[i] = oid.Hex()
	}
	return ids
}

// translate maps driver errors onto storage sentinels
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return storage.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return storage.ErrDuplicate
	}
	return err
}

func matched(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// timePrecision is the resolution of BSON dates
const timePrecision = time.Millisecond

func now() time.Time {
	return time.Now().UTC().Truncate(timePrecision)
}
