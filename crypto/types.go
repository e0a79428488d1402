// Package crypto provides the cryptographic primitives (C1) used by the
// rest of the engine: AEAD, ECDH/ECDSA over P-256, HKDF, HMAC and a fixed
// canonical-JSON form reused for every hash and signature in the system.
package crypto

import (
	"crypto"
	"errors"
)

// KeyType identifies the role a P-256 key pair plays. Both identity and
// ephemeral keys use the same curve; the type only distinguishes how the
// key may be used.
type KeyType string

const (
	// KeyTypeIdentityP256 is a long-lived ECDSA signing key pair.
	KeyTypeIdentityP256 KeyType = "P256-ECDSA"
	// KeyTypeEphemeralP256 is a short-lived ECDH key pair used once per handshake.
	KeyTypeEphemeralP256 KeyType = "P256-ECDH"
)

// KeyFormat is the wire encoding for exported public keys.
type KeyFormat string

// KeyFormatJWK is the only supported export format; §3 requires public
// identity and ephemeral keys to be JWKs so they can be hashed and signed
// canonically.
const KeyFormatJWK KeyFormat = "JWK"

// SignerKeyPair is an ECDSA P-256 identity key pair (§3 "Identity keypair").
type SignerKeyPair interface {
	PublicKey() crypto.PublicKey
	PrivateKey() crypto.PrivateKey
	Type() KeyType
	// ID is the lowercase-hex SHA-256 content address of the public key's
	// canonical JWK (§3).
	ID() string
	Sign(message []byte) ([]byte, error)
	Verify(message, signature []byte) error
}

// AgreementKeyPair is an ECDH P-256 ephemeral key pair (§3 "Ephemeral keypair").
type AgreementKeyPair interface {
	PublicKey() crypto.PublicKey
	// DeriveSharedSecret runs ECDH against peerPub (raw X9.62 uncompressed
	// bytes) and returns the 32-byte secret. Callers MUST feed the result
	// only into HKDF — it is never used as a key directly.
	DeriveSharedSecret(peerPub []byte) ([]byte, error)
	// PublicBytes returns the raw X9.62 uncompressed public point.
	PublicBytes() []byte
	// Zeroize destroys the private scalar. Safe to call more than once.
	Zeroize()
}

var (
	ErrInvalidKeyType   = errors.New("crypto: invalid key type")
	ErrInvalidKeyFormat = errors.New("crypto: invalid key format")
	// ErrAuthFailure is the single, non-distinguishing error returned for
	// every AEAD or signature verification failure (§4.1: "MUST be reported
	// as a single kind without leaking which byte differed").
	ErrAuthFailure = errors.New("crypto: authentication failed")
)
