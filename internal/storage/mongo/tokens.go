package mongo

import (
	"context"
	"fmt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"marketplace-api/internal/storage"
)

func tokenCollection(kind storage.TokenKind) (string, error) {
	switch kind {
	case storage.TokenVerification:
		return verificationTokensCollection, nil
	case storage.TokenPasswordReset:
		return resetTokensCollection, nil
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
}

func (s *Store) PutToken(ctx context.Context, kind storage.TokenKind, owner, hash string) error {
	name, err := tokenCollection(kind)
	if err != nil {
		return err
	}
	oid, err := objectID(owner)
	if err != nil {
		return err
	}

	s.logger.Debugf("Storing %s token for user (id: %s)", kind, owner)

	_, err = s.collection(name).UpdateOne(ctx,
		bson.M{"owner": oid},
		bson.M{"$set": bson.M{"token": hash, "createdAt": now()}},
		options.Update().SetUpsert(true),
	)
	return translate(err)
}

// TokenByOwner filters on createdAt as well since the TTL monitor only runs periodically
func (s *Store) TokenByOwner(ctx context.Context, kind storage.TokenKind, owner string) (storage.Token, error) {
	name, err := tokenCollection(kind)
	if err != nil {
		return storage.Token{}, err
	}
	oid, err := objectID(owner)
	if err != nil {
		return storage.Token{}, err
	}

	var doc tokenDoc
	filter := bson.M{"owner": oid, "createdAt": bson.M{"$gt": now().Add(-storage.TokenTTL)}}
	if err := s.collection(name).FindOne(ctx, filter).Decode(&doc); err != nil {
		return storage.Token{}, translate(err)
	}

	return storage.Token{Owner: doc.Owner.Hex(), Hash: doc.Token, CreatedAt: doc.CreatedAt}, nil
}

func (s *Store) DeleteToken(ctx context.Context, kind storage.TokenKind, owner string) error {
	name, err := tokenCollection(kind)
	if err != nil {
		return err
	}
	oid, err := objectID(owner)
	if err != nil {
		return err
	}
	_, err = s.collection(name).DeleteOne(ctx, bson.M{"owner": oid})
	return err
}
