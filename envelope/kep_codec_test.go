package envelope

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validKEPInit() *KEPInit {
	return &KEPInit{
		Type:      TypeKEPInit,
		From:      "alice",
		To:        "bob",
		SessionID: "sess-1",
		EphPub:    []byte(`{"kty":"EC","crv":"P-256","x":"AA","y":"BB"}`),
		Signature: base64.StdEncoding.EncodeToString([]byte("sig")),
		Timestamp: 1700000000000,
		Nonce:     base64.StdEncoding.EncodeToString(make([]byte, 16)),
	}
}

func TestValidateKEPInit(t *testing.T) {
	t.Run("valid passes", func(t *testing.T) {
		require.NoError(t, ValidateKEPInit(validKEPInit()))
	})

	t.Run("wrong type", func(t *testing.T) {
		msg := validKEPInit()
		msg.Type = TypeKEPResp
		var target *InvalidTypeError
		require.ErrorAs(t, ValidateKEPInit(msg), &target)
	})

	t.Run("missing ephPub", func(t *testing.T) {
		msg := validKEPInit()
		msg.EphPub = nil
		var target *MissingFieldError
		require.ErrorAs(t, ValidateKEPInit(msg), &target)
		assert.Equal(t, "ephPub", target.Field)
	})

	t.Run("bad signature encoding", func(t *testing.T) {
		msg := validKEPInit()
		msg.Signature = "not-base64!!"
		var target *InvalidEncodingError
		require.ErrorAs(t, ValidateKEPInit(msg), &target)
	})
}

func TestValidateKEPResponse(t *testing.T) {
	validResp := func() *KEPResponse {
		init := validKEPInit()
		return &KEPResponse{
			Type: TypeKEPResp, From: init.From, To: init.To, SessionID: init.SessionID,
			EphPub: init.EphPub, Signature: init.Signature, Timestamp: init.Timestamp,
			Nonce: init.Nonce, KeyConfirmation: base64.StdEncoding.EncodeToString([]byte("tag")),
		}
	}

	t.Run("valid passes", func(t *testing.T) {
		require.NoError(t, ValidateKEPResponse(validResp()))
	})

	t.Run("missing key confirmation", func(t *testing.T) {
		msg := validResp()
		msg.KeyConfirmation = ""
		var target *MissingFieldError
		require.ErrorAs(t, ValidateKEPResponse(msg), &target)
		assert.Equal(t, "keyConfirmation", target.Field)
	})
}
