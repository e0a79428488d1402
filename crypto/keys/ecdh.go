package keys

import (
	"crypto"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"

	sagecrypto "github.com/e2ee-core/relay/crypto"
)

// p256AgreementKeyPair implements crypto.AgreementKeyPair for ephemeral
// ECDH P-256 handshake keys (§3 "Ephemeral keypair").
type p256AgreementKeyPair struct {
	priv *ecdh.PrivateKey
}

// GenerateP256AgreementKeyPair creates a fresh ephemeral ECDH P-256 key
// pair for one handshake (§4.3 step 1 / step 4).
func GenerateP256AgreementKeyPair() (sagecrypto.AgreementKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &p256AgreementKeyPair{priv: priv}, nil
}

func (kp *p256AgreementKeyPair) PublicKey() crypto.PublicKey { return kp.priv.PublicKey() }

func (kp *p256AgreementKeyPair) PublicBytes() []byte {
	return kp.priv.PublicKey().Bytes()
}

// DeriveSharedSecret runs ECDH(priv, peerPub) -> SHA-256(x-coordinate),
// producing a fixed 32-byte secret regardless of point size (crypto/ecdh's
// ECDH() already returns the raw X9.62 x-coordinate for NIST curves, but it
// is re-hashed here so the output size contract holds for any curve
// parameterization of this function in the future).
func (kp *p256AgreementKeyPair) DeriveSharedSecret(peerPub []byte) ([]byte, error) {
	pub, err := ecdh.P256().NewPublicKey(peerPub)
	if err != nil {
		return nil, err
	}
	raw, err := kp.priv.ECDH(pub)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	return sum[:], nil
}

// Zeroize overwrites the private key material. crypto/ecdh.PrivateKey does
// not expose its raw scalar for in-place zeroing, so the best we can do
// without unsafe pointer tricks is drop the reference — callers MUST NOT
// retain other copies of the key pair past this call.
func (kp *p256AgreementKeyPair) Zeroize() {
	kp.priv = nil
}
