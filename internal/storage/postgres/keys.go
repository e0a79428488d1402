package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/e2ee-core/relay/internal/storage"
)

// KeyStore implements storage.KeyStore for PostgreSQL: identity public
// keys uploaded by §6's "POST /keys/upload", content-addressed by the
// keyHash C1's canonical JWK hashing produces.
type KeyStore struct {
	db *pgxpool.Pool
}

func (k *KeyStore) Upload(ctx context.Context, userID string, jwk []byte, keyHash string) error {
	const query = `
		INSERT INTO identity_keys (user_id, jwk, key_hash, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET jwk = $2, key_hash = $3, updated_at = NOW()
	`
	_, err := k.db.Exec(ctx, query, userID, jwk, keyHash)
	if err != nil {
		return fmt.Errorf("failed to upload key: %w", err)
	}
	return nil
}

func (k *KeyStore) Get(ctx context.Context, userID string) ([]byte, string, error) {
	const query = `SELECT jwk, key_hash FROM identity_keys WHERE user_id = $1`
	var jwk []byte
	var keyHash string
	err := k.db.QueryRow(ctx, query, userID).Scan(&jwk, &keyHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", storage.ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get key: %w", err)
	}
	return jwk, keyHash, nil
}

var _ storage.KeyStore = (*KeyStore)(nil)
