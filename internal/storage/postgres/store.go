// Package postgres implements internal/storage's MessageStore,
// SessionStore and KeyStore on top of pgx, grounded on the teacher's
// pkg/storage/postgres package (same pgxpool.Pool-per-Store,
// sub-store-per-concern shape), generalized from session/nonce/DID rows
// to this module's MessageMeta/SessionRow/key-upload rows.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/e2ee-core/relay/internal/storage"
)

// Config holds PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Store bundles the three sub-stores over one connection pool.
type Store struct {
	pool *pgxpool.Pool

	messages *MessageStore
	sessions *SessionStore
	keys     *KeyStore
}

// NewStore opens a pool and verifies connectivity before returning.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool:     pool,
		messages: &MessageStore{db: pool},
		sessions: &SessionStore{db: pool},
		keys:     &KeyStore{db: pool},
	}, nil
}

// NewStoreFromDSN opens a pool from an already-assembled DSN (the shape
// internal/storage config.StorageConfig.DSN carries).
func NewStoreFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool:     pool,
		messages: &MessageStore{db: pool},
		sessions: &SessionStore{db: pool},
		keys:     &KeyStore{db: pool},
	}, nil
}

func (s *Store) MessageStore() storage.MessageStore { return s.messages }
func (s *Store) SessionStore() storage.SessionStore { return s.sessions }
func (s *Store) KeyStore() storage.KeyStore         { return s.keys }

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Schema is the DDL creating the tables these sub-stores query, including
// the two unique indexes §4.8 and I1 require. Applied by migration
// tooling, not at runtime.
const Schema = `
CREATE TABLE IF NOT EXISTS messages (
	message_id     TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	sender         TEXT NOT NULL,
	receiver       TEXT NOT NULL,
	type           TEXT NOT NULL,
	timestamp      BIGINT NOT NULL,
	seq            BIGINT NOT NULL,
	nonce_hash     TEXT NOT NULL,
	meta           JSONB,
	metadata_hash  TEXT NOT NULL,
	delivered      BOOLEAN NOT NULL DEFAULT FALSE,
	delivered_at   TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS messages_session_nonce_idx ON messages (session_id, nonce_hash);
CREATE UNIQUE INDEX IF NOT EXISTS messages_session_seq_ts_idx ON messages (session_id, seq, timestamp);
CREATE INDEX IF NOT EXISTS messages_receiver_delivered_idx ON messages (receiver, delivered);

CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	pair_key      TEXT NOT NULL UNIQUE,
	participant_a TEXT NOT NULL,
	participant_b TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS identity_keys (
	user_id  TEXT PRIMARY KEY,
	jwk      JSONB NOT NULL,
	key_hash TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
