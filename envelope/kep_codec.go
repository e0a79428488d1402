package envelope

import "encoding/base64"

// ValidateKEPInit runs the structural checks §4.2 requires of a KEP_INIT
// before C3 attempts to verify its signature.
func ValidateKEPInit(msg *KEPInit) error {
	if msg.Type != TypeKEPInit {
		return &InvalidTypeError{Type: msg.Type}
	}
	if msg.From == "" {
		return &MissingFieldError{Field: "from"}
	}
	if msg.To == "" {
		return &MissingFieldError{Field: "to"}
	}
	if msg.SessionID == "" {
		return &MissingFieldError{Field: "sessionId"}
	}
	if len(msg.EphPub) == 0 {
		return &MissingFieldError{Field: "ephPub"}
	}
	if msg.Signature == "" {
		return &MissingFieldError{Field: "signature"}
	}
	if msg.Timestamp == 0 {
		return &MissingFieldError{Field: "timestamp"}
	}
	if msg.Nonce == "" {
		return &MissingFieldError{Field: "nonce"}
	}
	if _, err := base64.StdEncoding.DecodeString(msg.Signature); err != nil {
		return &InvalidEncodingError{Field: "signature"}
	}
	nonce, err := base64.StdEncoding.DecodeString(msg.Nonce)
	if err != nil {
		return &InvalidEncodingError{Field: "nonce"}
	}
	if len(nonce) < minNonceBytes || len(nonce) > maxNonceBytes {
		return &InvalidNonceLengthError{Got: len(nonce)}
	}
	return nil
}

// ValidateKEPResponse runs the same field/encoding checks as
// ValidateKEPInit plus the key-confirmation field every KEP_RESPONSE
// carries.
func ValidateKEPResponse(msg *KEPResponse) error {
	if msg.Type != TypeKEPResp {
		return &InvalidTypeError{Type: msg.Type}
	}
	if msg.From == "" {
		return &MissingFieldError{Field: "from"}
	}
	if msg.To == "" {
		return &MissingFieldError{Field: "to"}
	}
	if msg.SessionID == "" {
		return &MissingFieldError{Field: "sessionId"}
	}
	if len(msg.EphPub) == 0 {
		return &MissingFieldError{Field: "ephPub"}
	}
	if msg.Signature == "" {
		return &MissingFieldError{Field: "signature"}
	}
	if msg.Timestamp == 0 {
		return &MissingFieldError{Field: "timestamp"}
	}
	if msg.Nonce == "" {
		return &MissingFieldError{Field: "nonce"}
	}
	if msg.KeyConfirmation == "" {
		return &MissingFieldError{Field: "keyConfirmation"}
	}
	if _, err := base64.StdEncoding.DecodeString(msg.Signature); err != nil {
		return &InvalidEncodingError{Field: "signature"}
	}
	if _, err := base64.StdEncoding.DecodeString(msg.KeyConfirmation); err != nil {
		return &InvalidEncodingError{Field: "keyConfirmation"}
	}
	nonce, err := base64.StdEncoding.DecodeString(msg.Nonce)
	if err != nil {
		return &InvalidEncodingError{Field: "nonce"}
	}
	if len(nonce) < minNonceBytes || len(nonce) > maxNonceBytes {
		return &InvalidNonceLengthError{Got: len(nonce)}
	}
	return nil
}
