// Package storage defines the relay's persistence interfaces: MessageMeta
// rows for the replay guard and delivery tracking, and Session rows for
// the singleton-per-pair invariant, each backed by whatever driver
// internal/storage/postgres or an in-memory test double provides.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup by id or pair finds nothing.
var ErrNotFound = errors.New("storage: not found")

// ErrNonceConflict is returned when inserting a MessageMeta row violates
// the unique (sessionId, nonceHash) index (§4.8 step 5 "a unique index
// ... converts races into a typed rejection").
var ErrNonceConflict = errors.New("storage: nonce already recorded for session")

// ErrPairConflict is returned when creating a Session row violates the
// unique sorted-pair-key index (I1).
var ErrPairConflict = errors.New("storage: session already exists for pair")

// MessageMeta is the server-side record of one envelope: everything
// needed to enforce replay/freshness and delivery bookkeeping, and
// nothing secret (§3 "MessageMeta", §4.8 step 5 "no secrets").
type MessageMeta struct {
	MessageID    string
	SessionID    string
	Sender       string
	Receiver     string
	Type         string
	Timestamp    int64
	Seq          uint64
	NonceHash    string
	Meta         []byte
	MetadataHash string
	Delivered    bool
	DeliveredAt  *time.Time
	CreatedAt    time.Time
}

// SessionRow is the server-side persisted form of a Session, enough to
// enforce I1's singleton-pair uniqueness across relay restarts; it never
// holds key material.
type SessionRow struct {
	SessionID    string
	ParticipantA string
	ParticipantB string
	CreatedAt    time.Time
}

// MessageStore persists and queries MessageMeta rows (§4.8).
type MessageStore interface {
	Insert(ctx context.Context, m *MessageMeta) error
	MarkDelivered(ctx context.Context, messageID string) error
	PendingForUser(ctx context.Context, userID string) ([]*MessageMeta, error)
	HighestSeq(ctx context.Context, sessionID, sender string) (uint64, error)
	NonceExists(ctx context.Context, sessionID, nonceHash string) (bool, error)
}

// SessionStore persists the singleton-per-pair Session row (§4.4, I1).
type SessionStore interface {
	Create(ctx context.Context, row *SessionRow) error
	FindByPair(ctx context.Context, uidA, uidB string) (*SessionRow, error)
	Delete(ctx context.Context, sessionID string) error

	// DeleteForUser cascade-deletes every SessionRow userID participates
	// in, as a single operation (§9 "Session cascade-delete on
	// deactivation"), and reports how many rows were removed.
	DeleteForUser(ctx context.Context, userID string) (int, error)
}

// KeyStore persists uploaded identity public keys with a content hash
// for tamper detection (§6 "POST /keys/upload", "GET /keys/:userId").
type KeyStore interface {
	Upload(ctx context.Context, userID string, jwk []byte, keyHash string) error
	Get(ctx context.Context, userID string) (jwk []byte, keyHash string, err error)
}
