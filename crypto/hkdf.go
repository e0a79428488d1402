package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// HKDF runs RFC 5869 HKDF-SHA-256 extract-and-expand, returning length
// bytes of key material (§4.1 hkdf).
func HKDF(ikm, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PBKDF2Key derives a key from user-supplied material using PBKDF2-HMAC-SHA256.
// iterations comes from config (100000 default, 5000 in tests, §4.1).
func PBKDF2Key(password, salt []byte, iterations, keyLen int) []byte {
	return pbkdf2.Key(password, salt, iterations, keyLen, sha256.New)
}
