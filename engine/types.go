// Package engine implements the Message Engine (C7): the two externally
// visible send/receive pipelines binding the envelope codec, KEP sessions,
// the session store, the replay guard, and the file pipeline together.
package engine

import (
	"errors"
	"time"
)

// HandshakeTimeout is the recommended window (§5 "recommended 30s") after
// which an in-progress handshake is abandoned by the caller, leaving no
// Session and no persisted metadata.
const HandshakeTimeout = 30 * time.Second

// NonceSize is the byte length of the random nonce attached to every
// outbound envelope (§4.7 step 5 "nonce=random(16)").
const NonceSize = 16

var (
	// ErrSessionNotFound is returned by Send/Receive when no Session
	// exists for the envelope's sessionId.
	ErrSessionNotFound = errors.New("engine: session not found")
	// ErrSessionClosed is returned when the Session has already been
	// zeroized (e.g. superseded by a later handshake).
	ErrSessionClosed = errors.New("engine: session closed")
)

// DecryptionFailedError is logged, not returned to transport, for a
// receive whose AEAD decryption step fails after passing the replay guard
// (§4.7 step 5 "the attempt is logged as DecryptionFailed"). It is still a
// typed Go error so callers can distinguish it from a structural or replay
// rejection.
type DecryptionFailedError struct {
	SessionID string
	Seq       uint64
}

func (e *DecryptionFailedError) Error() string {
	return "engine: decryption failed for session " + e.SessionID
}
