// Package postgres implements storage.Store on PostgreSQL, keeping conversation chats in a jsonb column.
package postgres

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
	"marketplace-api/internal/storage"
	"marketplace-api/internal/storage/zapadapter"
)

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// New sets provided zap.Logger via zapadapter to pgxpool.Pool, applies the schema and returns instance of Store struct
func New(ctx context.Context, logger *zap.SugaredLogger, dsn string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())
	config.ConnConfig.LogLevel = pgx.LogLevelWarn

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	s := &Store{
		logger: logger,
		db:     pool,
	}

	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) Close(_ context.Context) error {
	s.db.Close()
	return nil
}

func newID() string {
	return uuid.NewString()
}

// translate maps driver errors onto storage sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return storage.ErrDuplicate
		case pgerrcode.ForeignKeyViolation:
			return storage.ErrNotFound
		}
	}
	return err
}

// expectRow turns an update that touched nothing into storage.ErrNotFound
func expectRow(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
