// Package keys implements the concrete P-256 key pairs behind the crypto
// package's SignerKeyPair and AgreementKeyPair interfaces.
package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/internal/metrics"
)

// p256SignerKeyPair implements crypto.SignerKeyPair for ECDSA P-256 identity keys.
type p256SignerKeyPair struct {
	privateKey *ecdsa.PrivateKey
	publicKey  *ecdsa.PublicKey
	id         string
}

// GenerateP256SignerKeyPair creates a new ECDSA P-256 identity key pair.
func GenerateP256SignerKeyPair() (sagecrypto.SignerKeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewP256SignerKeyPair(priv)
}

// NewP256SignerKeyPair wraps an existing ECDSA private key.
func NewP256SignerKeyPair(priv *ecdsa.PrivateKey) (sagecrypto.SignerKeyPair, error) {
	if priv.Curve != elliptic.P256() {
		return nil, sagecrypto.ErrInvalidKeyType
	}
	jwk, err := sagecrypto.PublicJWKFromECDSA(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	id, err := sagecrypto.CanonicalKeyID(jwk)
	if err != nil {
		return nil, err
	}
	return &p256SignerKeyPair{privateKey: priv, publicKey: &priv.PublicKey, id: id}, nil
}

func (kp *p256SignerKeyPair) PublicKey() crypto.PublicKey   { return kp.publicKey }
func (kp *p256SignerKeyPair) PrivateKey() crypto.PrivateKey { return kp.privateKey }
func (kp *p256SignerKeyPair) Type() sagecrypto.KeyType      { return sagecrypto.KeyTypeIdentityP256 }
func (kp *p256SignerKeyPair) ID() string                    { return kp.id }

// Sign produces a non-deterministic ECDSA signature over SHA-256(message),
// serialized as the 64-byte raw R||S form (§4.1).
func (kp *p256SignerKeyPair) Sign(message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, kp.privateKey, hash[:])
	if err != nil {
		return nil, err
	}
	sig := make([]byte, 64)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	metrics.CryptoOperations.WithLabelValues("sign", algECDSAP256).Inc()
	return sig, nil
}

// Verify checks a 64-byte raw R||S ECDSA signature. It reports only a
// single failure kind (§4.1).
func (kp *p256SignerKeyPair) Verify(message, signature []byte) error {
	if len(signature) != 64 {
		return sagecrypto.ErrAuthFailure
	}
	hash := sha256.Sum256(message)
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	if !ecdsa.Verify(kp.publicKey, hash[:], r, s) {
		return sagecrypto.ErrAuthFailure
	}
	return nil
}

// idFromPublicKey derives a legacy short fingerprint (the first 8 bytes of
// SHA-256 over the uncompressed point); nothing in this module calls it.
// The canonical content address (ID()) is computed from the JWK instead.
func idFromPublicKey(pub *ecdsa.PublicKey) string {
	pubKeyBytes := make([]byte, 1+32+32)
	pubKeyBytes[0] = 0x04
	pub.X.FillBytes(pubKeyBytes[1:33])
	pub.Y.FillBytes(pubKeyBytes[33:65])
	hash := sha256.Sum256(pubKeyBytes)
	return hex.EncodeToString(hash[:8])
}
