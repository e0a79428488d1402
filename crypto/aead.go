package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"io"
	"time"

	"github.com/e2ee-core/relay/internal/metrics"
)

const algAES256GCM = "aes-256-gcm"

// IVSize and TagSize are the AES-256-GCM parameters fixed by §3/§6: 12-byte
// IV, 16-byte tag.
const (
	IVSize  = 12
	TagSize = 16
)

// EncryptAEAD seals plaintext under key (must be 32 bytes, AES-256) with a
// fresh random 12-byte IV, returning ciphertext and the 16-byte tag
// separately from the ciphertext (§4.1 encrypt_aead). Go's cipher.AEAD
// appends the tag to the ciphertext; it is split back out here so callers
// can frame ciphertext/iv/authTag as three independent envelope fields
// the way §3 requires.
func EncryptAEAD(key, plaintext []byte) (ciphertext, iv, tag []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("encrypt", algAES256GCM).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("encrypt").Inc()
			return
		}
		metrics.CryptoOperations.WithLabelValues("encrypt", algAES256GCM).Inc()
	}()

	aead, err := newAESGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, IVSize)
	if _, err = io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, nil)
	ctLen := len(sealed) - TagSize
	ciphertext = sealed[:ctLen]
	tag = sealed[ctLen:]
	return ciphertext, iv, tag, nil
}

// DecryptAEAD opens ciphertext||tag under key and iv. Any authentication
// failure — wrong key, tampered ciphertext, tampered iv, tampered tag — is
// reported as the single ErrAuthFailure kind (§4.1).
func DecryptAEAD(key, iv, ciphertext, tag []byte) (plaintext []byte, err error) {
	start := time.Now()
	defer func() {
		metrics.CryptoOperationDuration.WithLabelValues("decrypt", algAES256GCM).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.CryptoErrors.WithLabelValues("decrypt").Inc()
			return
		}
		metrics.CryptoOperations.WithLabelValues("decrypt", algAES256GCM).Inc()
	}()

	if len(iv) != IVSize || len(tag) != TagSize {
		return nil, ErrAuthFailure
	}
	aead, err := newAESGCM(key)
	if err != nil {
		return nil, ErrAuthFailure
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err = aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return plaintext, nil
}

func newAESGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithTagSize(block, TagSize)
}

// RandomBytes returns n cryptographically random bytes (§4.1 random_bytes).
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SHA256Hex returns the lowercase-hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(data)
	return m.Sum(nil)
}

// ConstantTimeEqual wraps hmac.Equal, the constant-time comparison §4.1
// requires for HMAC/key-confirmation checks.
func ConstantTimeEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}

// Base64Encode / Base64Decode use standard (padded) base64 per §6.
func Base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func Base64Decode(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
