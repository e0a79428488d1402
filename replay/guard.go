// Package replay implements the replay/freshness guard (C5): the ordered
// policy every inbound envelope's (sessionId, seq, timestamp, nonce) tuple
// must pass before its ciphertext is ever touched. All mutable state the
// guard checks against — last accepted seq, used-nonce hashes — lives in
// the caller-supplied Tracker, scoped to one session; this package itself
// holds no package-level counters or sets.
package replay

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const (
	minNonceBytes = 12
	maxNonceBytes = 32

	// PruneKeepLast is the minimum number of most-recent used-nonce hashes
	// a Tracker must retain when pruning (§4.4).
	PruneKeepLast = 1024
)

// Tracker is the per-session replay state C4's Session exposes to the
// guard: the highest accepted seq and the set of used nonce hashes.
// Implementations MUST serialize IsNonceUsed+MarkNonceUsed+PeerLastSeq+
// SetPeerLastSeq as a single atomic check-and-insert (§4.5: "a
// single-writer mutex per session guarantees the atomic check-and-insert").
type Tracker interface {
	PeerLastSeq() uint64
	SetPeerLastSeq(seq uint64)
	IsNonceUsed(nonceHash string) bool
	MarkNonceUsed(nonceHash string)
}

// Check runs the full ordered policy of §4.5 against t and, on acceptance,
// records the nonce hash and advances peerLastSeq. nonceB64 is the
// envelope's base64-encoded nonce field (distinct from the AEAD IV). Use
// this form where acceptance is unconditional on anything past the guard
// itself (C8's relay never decrypts, so its commit is immediate).
func Check(t Tracker, nonceB64 string, timestampMs int64, seq uint64, nowMs int64, clockOffsetMs int64) error {
	nonceHash, err := Verify(t, nonceB64, timestampMs, seq, nowMs, clockOffsetMs)
	if err != nil {
		return err
	}
	Commit(t, nonceHash, seq)
	return nil
}

// Verify runs the fixed order of §4.5 (nonce structure, freshness, nonce
// uniqueness, seq monotonicity) without mutating t, returning the nonce
// hash a subsequent Commit should record. Callers whose acceptance also
// depends on a later step — C7's "AEAD-decrypt, and only on success does
// C5 commit" (§4.7 steps 3-5) — call Verify then Commit separately so a
// decryption failure never marks the nonce as used.
func Verify(t Tracker, nonceB64 string, timestampMs int64, seq uint64, nowMs int64, clockOffsetMs int64) (string, error) {
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(nonce) < minNonceBytes || len(nonce) > maxNonceBytes {
		return "", ErrInvalidNonce
	}

	if err := CheckFreshness(timestampMs, nowMs, clockOffsetMs); err != nil {
		return "", err
	}

	nonceHash := NonceHash(nonce)
	if t.IsNonceUsed(nonceHash) {
		return "", ErrNonceReused
	}

	if seq <= t.PeerLastSeq() {
		return "", ErrSequenceReplay
	}

	return nonceHash, nil
}

// Commit records nonceHash as used and advances the tracker's peerLastSeq
// to seq. Must be called while still holding whatever lock serialized the
// matching Verify call (§4.5's "atomic check-and-insert").
func Commit(t Tracker, nonceHash string, seq uint64) {
	t.MarkNonceUsed(nonceHash)
	t.SetPeerLastSeq(seq)
}

// NonceHash returns the SHA-256 hex digest of a raw nonce, the value
// stored in usedNonceHashes and in a server MessageMeta row (§3).
func NonceHash(rawNonce []byte) string {
	sum := sha256.Sum256(rawNonce)
	return hex.EncodeToString(sum[:])
}
