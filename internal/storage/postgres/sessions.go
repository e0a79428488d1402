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

// SessionStore implements storage.SessionStore for PostgreSQL, grounded
// on pkg/storage/postgres/sessions.go's Create/Get shape. The pair_key
// column carries the sorted-pair uniqueness constraint (I1); the unique
// index turns a concurrent double-handshake into a typed rejection at
// the database itself, the persisted counterpart to session.InMemoryStore's
// in-process singleflight collapse.
type SessionStore struct {
	db *pgxpool.Pool
}

func (s *SessionStore) Create(ctx context.Context, row *storage.SessionRow) error {
	const query = `
		INSERT INTO sessions (session_id, pair_key, participant_a, participant_b)
		VALUES ($1, $2, $3, $4)
	`
	_, err := s.db.Exec(ctx, query, row.SessionID, pairKey(row.ParticipantA, row.ParticipantB), row.ParticipantA, row.ParticipantB)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrPairConflict
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SessionStore) FindByPair(ctx context.Context, uidA, uidB string) (*storage.SessionRow, error) {
	const query = `
		SELECT session_id, participant_a, participant_b, created_at
		FROM sessions WHERE pair_key = $1
	`
	var row storage.SessionRow
	err := s.db.QueryRow(ctx, query, pairKey(uidA, uidB)).Scan(&row.SessionID, &row.ParticipantA, &row.ParticipantB, &row.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return &row, nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteForUser cascade-deletes every session row userID participates in
// as one statement, the server-side half of §9's deactivation cascade.
func (s *SessionStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE participant_a = $1 OR participant_b = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions for user: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

var _ storage.SessionStore = (*SessionStore)(nil)
