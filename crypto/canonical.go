package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// JWK is the subset of RFC 7517 used by this system: EC public keys on
// P-256 (kty, crv, x, y). It has no private scalar "d" field, so a JWK
// value never carries private key material.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// PublicJWK encodes an ECDSA/ECDH P-256 public point as a JWK (§3: "public
// key is a JWK with kty=EC, crv=P-256, x, y").
func PublicJWK(x, y []byte) JWK {
	return JWK{
		Kty: "EC",
		Crv: "P-256",
		X:   base64.RawURLEncoding.EncodeToString(x),
		Y:   base64.RawURLEncoding.EncodeToString(y),
	}
}

// PublicJWKFromECDSA encodes an *ecdsa.PublicKey as a canonical JWK.
func PublicJWKFromECDSA(pub *ecdsa.PublicKey) (JWK, error) {
	size := (pub.Curve.Params().BitSize + 7) / 8
	x := make([]byte, size)
	y := make([]byte, size)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	return PublicJWK(x, y), nil
}

// JWKFromECDHPublicBytes encodes a raw X9.62 uncompressed ECDH public key
// (0x04 || X || Y) as a JWK, the wire shape an ephemeral public key takes
// in a KEP message (§3 "Ephemeral keypair... exported as JWK").
func JWKFromECDHPublicBytes(raw []byte) (JWK, error) {
	if len(raw) != 65 || raw[0] != 0x04 {
		return JWK{}, ErrInvalidKeyFormat
	}
	return PublicJWK(raw[1:33], raw[33:65]), nil
}

// CanonicalJSON renders v using lexicographically sorted object keys, the
// single canonicalization algorithm reused for metadataHash, keyHash, and
// the signed ephPub blob (§9: "An implementer must fix one canonicalization
// algorithm and reuse it... otherwise verification diverges across
// platforms").
//
// v must already be, or marshal to, a JSON object or a value composed of
// maps/slices/primitives — struct field order is irrelevant because
// encoding/json always emits struct fields in declaration order, so callers
// that need canonical ordering for structs should round-trip through
// map[string]interface{} first (CanonicalizeJSON does this).
func CanonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalizeJSON(raw)
}

// CanonicalizeJSON re-serializes an arbitrary JSON document with sorted
// object keys at every level.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// CanonicalKeyID returns the lowercase-hex SHA-256 digest of the canonical
// JSON of a JWK — the content address used for identity-key integrity
// auditing (§3) and for "keyHash"/"kid" fields.
func CanonicalKeyID(jwk JWK) (string, error) {
	canon, err := CanonicalJSON(jwk)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// HashCanonical hashes v's canonical JSON form with SHA-256, returning the
// lowercase-hex digest. Used for metadataHash (§3) and keyHash (§6).
func HashCanonical(v interface{}) (string, error) {
	canon, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
