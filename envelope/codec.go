package envelope

import (
	"encoding/base64"
	"encoding/json"
)

// Wire-format bounds shared with the replay guard's nonce structure check
// (§5.1): a nonce is an independent anti-replay token, base64-encoded,
// 12-32 raw bytes.
const (
	minNonceBytes = 12
	maxNonceBytes = 32
)

// ValidateStructure runs the field-presence, encoding and length checks
// every inbound envelope must pass before any cryptographic or replay
// check is attempted (§4.2 validate_structure). It never inspects
// Ciphertext/IV/AuthTag content, only shape: that is C1/C5's job.
func ValidateStructure(env *Envelope) error {
	switch env.Type {
	case TypeMSG, TypeFileMeta, TypeFileChunk:
	case "":
		return &MissingFieldError{Field: "type"}
	default:
		return &InvalidTypeError{Type: env.Type}
	}

	if env.SessionID == "" {
		return &MissingFieldError{Field: "sessionId"}
	}
	if env.Sender == "" {
		return &MissingFieldError{Field: "sender"}
	}
	if env.Receiver == "" {
		return &MissingFieldError{Field: "receiver"}
	}
	if env.Ciphertext == "" {
		return &MissingFieldError{Field: "ciphertext"}
	}
	if env.IV == "" {
		return &MissingFieldError{Field: "iv"}
	}
	if env.AuthTag == "" {
		return &MissingFieldError{Field: "authTag"}
	}
	if env.Nonce == "" {
		return &MissingFieldError{Field: "nonce"}
	}
	if env.Timestamp == 0 {
		return &MissingFieldError{Field: "timestamp"}
	}

	iv, err := decodeField(env.IV, "iv")
	if err != nil {
		return err
	}
	if len(iv) != ivLength {
		return &InvalidIVLengthError{Got: len(iv)}
	}

	tag, err := decodeField(env.AuthTag, "authTag")
	if err != nil {
		return err
	}
	if len(tag) != authTagLength {
		return &InvalidAuthTagLengthError{Got: len(tag)}
	}

	nonce, err := decodeField(env.Nonce, "nonce")
	if err != nil {
		return err
	}
	if len(nonce) < minNonceBytes || len(nonce) > maxNonceBytes {
		return &InvalidNonceLengthError{Got: len(nonce)}
	}

	if _, err := decodeField(env.Ciphertext, "ciphertext"); err != nil {
		return err
	}

	if env.Type == TypeFileChunk {
		var chunk FileChunkInfo
		if len(env.Meta) == 0 {
			return &MissingFieldError{Field: "meta"}
		}
		if err := json.Unmarshal(env.Meta, &chunk); err != nil {
			return &InvalidEncodingError{Field: "meta"}
		}
		if chunk.ChunkIndex < 0 || chunk.TotalChunks <= 0 || chunk.ChunkIndex >= chunk.TotalChunks {
			return &InvalidChunkIndexError{Index: chunk.ChunkIndex, Total: chunk.TotalChunks}
		}
	}
	if env.Type == TypeFileMeta {
		var meta FileMetaInfo
		if len(env.Meta) == 0 {
			return &MissingFieldError{Field: "meta"}
		}
		if err := json.Unmarshal(env.Meta, &meta); err != nil {
			return &InvalidEncodingError{Field: "meta"}
		}
	}

	return nil
}

// decodeField base64-decodes a required envelope field, translating any
// decode failure into the typed InvalidEncodingError (§4.2).
func decodeField(value, field string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, &InvalidEncodingError{Field: field}
	}
	return raw, nil
}

const (
	ivLength      = 12
	authTagLength = 16
)

// Marshal/Unmarshal are thin JSON helpers kept here rather than scattered
// across callers, so C7/C8 encode and decode envelopes the same way every
// time.
func Marshal(env *Envelope) ([]byte, error) { return json.Marshal(env) }

func Unmarshal(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
