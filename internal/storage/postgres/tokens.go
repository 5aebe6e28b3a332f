package postgres

import (
	"context"
	"fmt"
	"github.com/jackc/pgx/v4"
	"marketplace-api/internal/storage"
	"time"
)

func tokenTable(kind storage.TokenKind) (string, error) {
	switch kind {
	case storage.TokenVerification:
		return pgx.Identifier{"auth_verification_tokens"}.Sanitize(), nil
	case storage.TokenPasswordReset:
		return pgx.Identifier{"password_reset_tokens"}.Sanitize(), nil
	default:
		return "", fmt.Errorf("unknown token kind %q", kind)
	}
}

func (s *Store) PutToken(ctx context.Context, kind storage.TokenKind, owner, hash string) error {
	table, err := tokenTable(kind)
	if err != nil {
		return err
	}

	s.logger.Debugf("Storing %s token for user (id: %s)", kind, owner)

	sql := `insert into ` + table + ` (owner, token, created_at) values ($1, $2, $3)
			on conflict (owner) do update set token = excluded.token, created_at = excluded.created_at`
	_, err = s.db.Exec(ctx, sql, owner, hash, time.Now().UTC())
	return translate(err)
}

// TokenByOwner ignores rows older than storage.TokenTTL, the same rows a TTL index would have purged
func (s *Store) TokenByOwner(ctx context.Context, kind storage.TokenKind, owner string) (storage.Token, error) {
	table, err := tokenTable(kind)
	if err != nil {
		return storage.Token{}, err
	}

	var t storage.Token
	sql := "select owner, token, created_at from " + table + " where owner = $1 and created_at > $2"
	err = s.db.QueryRow(ctx, sql, owner, time.Now().UTC().Add(-storage.TokenTTL)).Scan(&t.Owner, &t.Hash, &t.CreatedAt)
	if err != nil {
		return storage.Token{}, translate(err)
	}

	return t, nil
}

func (s *Store) DeleteToken(ctx context.Context, kind storage.TokenKind, owner string) error {
	table, err := tokenTable(kind)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, "delete from "+table+" where owner = $1", owner)
	return err
}
