package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/internal/storage"
	"github.com/e2ee-core/relay/replay"
)

// checkReplay applies §4.5's ordered policy (nonce structure, freshness,
// nonce uniqueness, seq monotonicity) against persisted rows instead of an
// in-process Session's replay.Tracker — the relay never holds session key
// material, only MessageMeta rows, so it re-implements the same fixed
// order against storage.MessageStore rather than reusing replay.Tracker
// (whose IsNonceUsed/PeerLastSeq are synchronous in-memory calls, while
// storage lookups are ctx-aware and can fail). Returns the nonce hash to
// persist alongside the row.
func checkReplay(ctx context.Context, messages storage.MessageStore, env *envelope.Envelope) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return "", ErrInvalidNonce
	}

	if err := replay.CheckFreshness(env.Timestamp, replay.NowMs(), 0); err != nil {
		return "", ErrTimestampOutOfWindow
	}

	nonceHash := replay.NonceHash(raw)
	used, err := messages.NonceExists(ctx, env.SessionID, nonceHash)
	if err != nil {
		return "", fmt.Errorf("relay: check nonce: %w", err)
	}
	if used {
		return "", ErrDuplicateNonce
	}

	highest, err := messages.HighestSeq(ctx, env.SessionID, env.Sender)
	if err != nil {
		return "", fmt.Errorf("relay: check seq: %w", err)
	}
	if env.Seq <= highest {
		return "", ErrSeqNotMonotonic
	}

	return nonceHash, nil
}

// metadataFields is the subset of MessageMeta that metadataHash covers:
// everything persisted except the hash itself and delivery bookkeeping,
// the same "everything but the digest and mutable status" shape C1's
// CanonicalJSON expects to hash deterministically.
type metadataFields struct {
	MessageID string          `json:"messageId"`
	SessionID string          `json:"sessionId"`
	Sender    string          `json:"sender"`
	Receiver  string          `json:"receiver"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	NonceHash string          `json:"nonceHash"`
	Meta      json.RawMessage `json:"meta,omitempty"`
}

// computeMetadataHash returns the canonical SHA-256 digest of meta's
// immutable fields (§3, §6: "stores with keyHash/metadataHash for tamper
// detection").
func computeMetadataHash(meta *storage.MessageMeta) (string, error) {
	var canonMeta json.RawMessage
	if len(meta.Meta) > 0 {
		c, err := crypto.CanonicalizeJSON(meta.Meta)
		if err != nil {
			return "", err
		}
		canonMeta = c
	}
	return crypto.HashCanonical(metadataFields{
		MessageID: meta.MessageID,
		SessionID: meta.SessionID,
		Sender:    meta.Sender,
		Receiver:  meta.Receiver,
		Type:      meta.Type,
		Timestamp: meta.Timestamp,
		Seq:       meta.Seq,
		NonceHash: meta.NonceHash,
		Meta:      canonMeta,
	})
}

// verifyMetadataHash recomputes meta's metadataHash and compares it
// against the stored value, surfacing ErrMetadataTamperDetected on
// mismatch (§4.8 step 7, §7 "MetadataTamperDetected").
func verifyMetadataHash(meta *storage.MessageMeta) error {
	want, err := computeMetadataHash(meta)
	if err != nil {
		return fmt.Errorf("relay: compute metadata hash: %w", err)
	}
	if want != meta.MetadataHash {
		return ErrMetadataTamperDetected
	}
	return nil
}
