package replay

import "errors"

// Rejections the guard can surface, checked in the fixed order §4.5 fixes:
// nonce structure, timestamp freshness, nonce uniqueness, seq monotonicity.
var (
	ErrInvalidNonce   = errors.New("replay: nonce does not decode to 12-32 bytes")
	ErrStaleTimestamp = errors.New("replay: timestamp outside freshness window")
	ErrNonceReused    = errors.New("replay: nonce already used in this session")
	ErrSequenceReplay = errors.New("replay: sequence not greater than last accepted")
)
