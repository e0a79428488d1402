package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/base64"
	"math/big"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/internal/metrics"
)

const algECDSAP256 = "ecdsa-p256"

// ECDSAPublicKeyFromJWK reconstructs an *ecdsa.PublicKey from a P-256 JWK.
// This is what a verifier uses for a peer's identity or ephemeral public
// key: it never holds the peer's private key, so it cannot build a full
// SignerKeyPair/AgreementKeyPair, only the public half.
func ECDSAPublicKeyFromJWK(jwk sagecrypto.JWK) (*ecdsa.PublicKey, error) {
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, sagecrypto.ErrInvalidKeyType
	}
	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}
	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}
	pub := &ecdsa.PublicKey{
		Curve: elliptic.P256(),
		X:     new(big.Int).SetBytes(x),
		Y:     new(big.Int).SetBytes(y),
	}
	if !pub.Curve.IsOnCurve(pub.X, pub.Y) {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}
	return pub, nil
}

// VerifyP256Signature checks a 64-byte raw R||S ECDSA signature against a
// bare public key, the shape a verifier needs when it only knows the
// peer's public JWK (§4.3 responder/initiator signature checks).
func VerifyP256Signature(pub *ecdsa.PublicKey, message, signature []byte) error {
	if len(signature) != 64 {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
		return sagecrypto.ErrAuthFailure
	}
	hash := sha256.Sum256(message)
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	if !ecdsa.Verify(pub, hash[:], r, s) {
		metrics.CryptoErrors.WithLabelValues("verify").Inc()
		return sagecrypto.ErrAuthFailure
	}
	metrics.CryptoOperations.WithLabelValues("verify", algECDSAP256).Inc()
	return nil
}

// ECDHPublicBytesFromJWK recovers the raw X9.62 uncompressed-point bytes
// (0x04 || X || Y, 32 bytes each) from a JWK, the form
// crypto/ecdh.P256().NewPublicKey expects, so an ephemeral JWK received
// over the wire can feed DeriveSharedSecret.
func ECDHPublicBytesFromJWK(jwk sagecrypto.JWK) ([]byte, error) {
	if jwk.Kty != "EC" || jwk.Crv != "P-256" {
		return nil, sagecrypto.ErrInvalidKeyType
	}
	x, err := base64.RawURLEncoding.DecodeString(jwk.X)
	if err != nil {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}
	y, err := base64.RawURLEncoding.DecodeString(jwk.Y)
	if err != nil {
		return nil, sagecrypto.ErrInvalidKeyFormat
	}
	out := make([]byte, 1+32+32)
	out[0] = 0x04
	copy(out[1+32-len(x):33], x)
	copy(out[33+32-len(y):65], y)
	return out, nil
}
