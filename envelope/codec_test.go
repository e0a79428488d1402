package envelope

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEnvelope() *Envelope {
	return &Envelope{
		Type:       TypeMSG,
		SessionID:  "sess-1",
		Sender:     "alice",
		Receiver:   "bob",
		Ciphertext: base64.StdEncoding.EncodeToString([]byte("ciphertext")),
		IV:         base64.StdEncoding.EncodeToString(make([]byte, ivLength)),
		AuthTag:    base64.StdEncoding.EncodeToString(make([]byte, authTagLength)),
		Timestamp:  1700000000000,
		Seq:        1,
		Nonce:      base64.StdEncoding.EncodeToString(make([]byte, 16)),
	}
}

func TestValidateStructure(t *testing.T) {
	t.Run("valid MSG envelope passes", func(t *testing.T) {
		err := ValidateStructure(validEnvelope())
		require.NoError(t, err)
	})

	t.Run("missing type", func(t *testing.T) {
		env := validEnvelope()
		env.Type = ""
		err := ValidateStructure(env)
		require.Error(t, err)
		var target *MissingFieldError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "type", target.Field)
	})

	t.Run("unknown type", func(t *testing.T) {
		env := validEnvelope()
		env.Type = "BOGUS"
		err := ValidateStructure(env)
		var target *InvalidTypeError
		require.ErrorAs(t, err, &target)
	})

	t.Run("missing sessionId", func(t *testing.T) {
		env := validEnvelope()
		env.SessionID = ""
		err := ValidateStructure(env)
		var target *MissingFieldError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "sessionId", target.Field)
	})

	t.Run("bad iv encoding", func(t *testing.T) {
		env := validEnvelope()
		env.IV = "not-base64!!"
		err := ValidateStructure(env)
		var target *InvalidEncodingError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "iv", target.Field)
	})

	t.Run("wrong iv length", func(t *testing.T) {
		env := validEnvelope()
		env.IV = base64.StdEncoding.EncodeToString(make([]byte, 8))
		err := ValidateStructure(env)
		var target *InvalidIVLengthError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, 8, target.Got)
	})

	t.Run("wrong authTag length", func(t *testing.T) {
		env := validEnvelope()
		env.AuthTag = base64.StdEncoding.EncodeToString(make([]byte, 4))
		err := ValidateStructure(env)
		var target *InvalidAuthTagLengthError
		require.ErrorAs(t, err, &target)
	})

	t.Run("nonce too short", func(t *testing.T) {
		env := validEnvelope()
		env.Nonce = base64.StdEncoding.EncodeToString(make([]byte, 4))
		err := ValidateStructure(env)
		var target *InvalidNonceLengthError
		require.ErrorAs(t, err, &target)
	})

	t.Run("nonce too long", func(t *testing.T) {
		env := validEnvelope()
		env.Nonce = base64.StdEncoding.EncodeToString(make([]byte, 64))
		err := ValidateStructure(env)
		var target *InvalidNonceLengthError
		require.ErrorAs(t, err, &target)
	})

	t.Run("FILE_CHUNK requires meta", func(t *testing.T) {
		env := validEnvelope()
		env.Type = TypeFileChunk
		err := ValidateStructure(env)
		var target *MissingFieldError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, "meta", target.Field)
	})

	t.Run("FILE_CHUNK index out of range", func(t *testing.T) {
		env := validEnvelope()
		env.Type = TypeFileChunk
		env.Meta = []byte(`{"chunkIndex":5,"totalChunks":3}`)
		err := ValidateStructure(env)
		var target *InvalidChunkIndexError
		require.ErrorAs(t, err, &target)
	})

	t.Run("FILE_CHUNK valid index passes", func(t *testing.T) {
		env := validEnvelope()
		env.Type = TypeFileChunk
		env.Meta = []byte(`{"chunkIndex":2,"totalChunks":3}`)
		err := ValidateStructure(env)
		require.NoError(t, err)
	})
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	env := validEnvelope()
	data, err := Marshal(env)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, env.SessionID, decoded.SessionID)
	assert.Equal(t, env.Nonce, decoded.Nonce)
	assert.Equal(t, env.Seq, decoded.Seq)
}
