package envelope

import "encoding/json"

// KEPInit is the initiator's signed handshake opener (§3 "KEP messages").
type KEPInit struct {
	Type      Type            `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	SessionID string          `json:"sessionId"`
	EphPub    json.RawMessage `json:"ephPub"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	Nonce     string          `json:"nonce"`
}

// KEPResponse is the responder's signed reply, additionally carrying the
// HMAC key-confirmation tag (§3).
type KEPResponse struct {
	Type            Type            `json:"type"`
	From            string          `json:"from"`
	To              string          `json:"to"`
	SessionID       string          `json:"sessionId"`
	EphPub          json.RawMessage `json:"ephPub"`
	Signature       string          `json:"signature"`
	Timestamp       int64           `json:"timestamp"`
	Seq             uint64          `json:"seq"`
	Nonce           string          `json:"nonce"`
	KeyConfirmation string          `json:"keyConfirmation"`
}

// KeyUpdate is a structurally-defined but cryptographically inert signal
// (§9 open question): receiving one means "start a fresh KEP", it never
// carries key material itself.
type KeyUpdate struct {
	Type        Type   `json:"type"`
	SessionID   string `json:"sessionId"`
	RequestedBy string `json:"requestedBy"`
	Reason      string `json:"reason"`
	Timestamp   int64  `json:"timestamp"`
	Seq         uint64 `json:"seq"`
	Nonce       string `json:"nonce"`
}
