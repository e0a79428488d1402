package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/e2ee-core/relay/internal/storage"
)

// MessageStore implements storage.MessageStore for PostgreSQL, grounded
// on pkg/storage/postgres/nonces.go's CheckAndStore shape, generalized
// from a bare nonce row to the full MessageMeta row §3 defines.
type MessageStore struct {
	db *pgxpool.Pool
}

func (m *MessageStore) Insert(ctx context.Context, meta *storage.MessageMeta) error {
	const query = `
		INSERT INTO messages
			(message_id, session_id, sender, receiver, type, timestamp, seq, nonce_hash, meta, metadata_hash, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := m.db.Exec(ctx, query,
		meta.MessageID, meta.SessionID, meta.Sender, meta.Receiver, meta.Type,
		meta.Timestamp, meta.Seq, meta.NonceHash, meta.Meta, meta.MetadataHash, meta.Delivered,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return storage.ErrNonceConflict
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (m *MessageStore) MarkDelivered(ctx context.Context, messageID string) error {
	const query = `UPDATE messages SET delivered = TRUE, delivered_at = NOW() WHERE message_id = $1`
	tag, err := m.db.Exec(ctx, query, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (m *MessageStore) PendingForUser(ctx context.Context, userID string) ([]*storage.MessageMeta, error) {
	const query = `
		SELECT message_id, session_id, sender, receiver, type, timestamp, seq, nonce_hash, meta, metadata_hash, delivered, delivered_at, created_at
		FROM messages
		WHERE receiver = $1 AND delivered = FALSE
		ORDER BY created_at
	`
	rows, err := m.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer rows.Close()

	var out []*storage.MessageMeta
	for rows.Next() {
		var msg storage.MessageMeta
		if err := rows.Scan(
			&msg.MessageID, &msg.SessionID, &msg.Sender, &msg.Receiver, &msg.Type,
			&msg.Timestamp, &msg.Seq, &msg.NonceHash, &msg.Meta, &msg.MetadataHash,
			&msg.Delivered, &msg.DeliveredAt, &msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (m *MessageStore) HighestSeq(ctx context.Context, sessionID, sender string) (uint64, error) {
	const query = `SELECT COALESCE(MAX(seq), 0) FROM messages WHERE session_id = $1 AND sender = $2`
	var seq uint64
	if err := m.db.QueryRow(ctx, query, sessionID, sender).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to query highest seq: %w", err)
	}
	return seq, nil
}

func (m *MessageStore) NonceExists(ctx context.Context, sessionID, nonceHash string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM messages WHERE session_id = $1 AND nonce_hash = $2)`
	var exists bool
	err := m.db.QueryRow(ctx, query, sessionID, nonceHash).Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to check nonce: %w", err)
	}
	return exists, nil
}

var _ storage.MessageStore = (*MessageStore)(nil)
