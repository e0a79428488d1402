package kep

import "errors"

// Handshake failures are fatal per §4.3: no partial state is installed on
// any of these.
var (
	ErrInvalidSignature        = errors.New("kep: invalid signature")
	ErrKeyConfirmationMismatch = errors.New("kep: key confirmation mismatch")
	ErrStaleTimestamp          = errors.New("kep: timestamp outside freshness window")
	ErrWrongState              = errors.New("kep: handshake in wrong state for this message")
)
