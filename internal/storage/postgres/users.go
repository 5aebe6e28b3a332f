package postgres

import (
	"context"
	"github.com/jackc/pgx/v4"
	"marketplace-api/internal/storage"
	"time"
)

const userColumns = "id, name, email, password, verified, avatar_id, avatar_url, tokens, created_at, updated_at"

func scanUser(row pgx.Row) (storage.User, error) {
	var (
		u                   storage.User
		avatarID, avatarURL *string
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Verified, &avatarID, &avatarURL, &u.Tokens, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return storage.User{}, translate(err)
	}
	if avatarID != nil && avatarURL != nil {
		u.Avatar = &storage.Image{ID: *avatarID, URL: *avatarURL}
	}
	return u, nil
}

// CreateUser creates user and sets its id
func (s *Store) CreateUser(ctx context.Context, u *storage.User) error {
	s.logger.Debugf("Creating user (%s)", u.Email)

	now := time.Now().UTC()
	id := newID()
	if u.Tokens == nil {
		u.Tokens = []string{}
	}

	sql := `insert into users (id, name, email, password, verified, tokens, created_at, updated_at)
			values ($1, $2, $3, $4, $5, $6, $7, $7)`
	_, err := s.db.Exec(ctx, sql, id, u.Name, u.Email, u.Password, u.Verified, u.Tokens, now)
	if err != nil {
		return translate(err)
	}

	u.ID, u.CreatedAt, u.UpdatedAt = id, now, now

	s.logger.Debugf("Created user (%s) with id %s", u.Email, id)

	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (storage.User, error) {
	return scanUser(s.db.QueryRow(ctx, "select "+userColumns+" from users where id = $1", id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (storage.User, error) {
	return scanUser(s.db.QueryRow(ctx, "select "+userColumns+" from users where email = $1", email))
}

func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]storage.User, error) {
	rows, err := s.db.Query(ctx, "select "+userColumns+" from users where id = any($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []storage.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (s *Store) SetVerified(ctx context.Context, id string) error {
	return expectRow(s.db.Exec(ctx, "update users set verified = true, updated_at = $2 where id = $1", id, time.Now().UTC()))
}

func (s *Store) UpdateName(ctx context.Context, id, name string) error {
	return expectRow(s.db.Exec(ctx, "update users set name = $2, updated_at = $3 where id = $1", id, name, time.Now().UTC()))
}

func (s *Store) SetAvatar(ctx context.Context, id string, avatar storage.Image) error {
	sql := "update users set avatar_id = $2, avatar_url = $3, updated_at = $4 where id = $1"
	return expectRow(s.db.Exec(ctx, sql, id, avatar.ID, avatar.URL, time.Now().UTC()))
}

func (s *Store) SetPassword(ctx context.Context, id, hash string) error {
	sql := "update users set password = $2, tokens = '{}', updated_at = $3 where id = $1"
	return expectRow(s.db.Exec(ctx, sql, id, hash, time.Now().UTC()))
}

func (s *Store) AddRefreshToken(ctx context.Context, id, token string) error {
	sql := "update users set tokens = array_append(tokens, $2) where id = $1"
	return expectRow(s.db.Exec(ctx, sql, id, token))
}

func (s *Store) ReplaceRefreshToken(ctx context.Context, id, old, new string) error {
	sql := `update users
			   set tokens = array_append(array_remove(tokens, $2), $3)
			 where id = $1 and $2 = any(tokens)`
	return expectRow(s.db.Exec(ctx, sql, id, old, new))
}

func (s *Store) RemoveRefreshToken(ctx context.Context, id, token string) error {
	sql := "update users set tokens = array_remove(tokens, $2) where id = $1 and $2 = any(tokens)"
	return expectRow(s.db.Exec(ctx, sql, id, token))
}

func (s *Store) ClearRefreshTokens(ctx context.Context, id string) error {
	return expectRow(s.db.Exec(ctx, "update users set tokens = '{}' where id = $1", id))
}
