// Package kep implements the Key Exchange Protocol state machine (C3): the
// signed two-message ECDH handshake that installs a symmetric Session for
// a pair of users.
package kep

import (
	"context"

	"github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/internal/zeroize"
)

// State is the initiator/responder handshake state (§4.3).
type State int

const (
	Idle State = iota
	AwaitingResponse
	Established
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingResponse:
		return "awaiting_response"
	case Established:
		return "established"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result carries everything a completed handshake hands to C4 to install a
// Session: the derived keys, which side installs which direction, and the
// participants.
type Result struct {
	SessionID string
	SelfID    string
	PeerID    string
	RootKey   []byte
	SendKey   []byte
	RecvKey   []byte
}

// Zeroize clears the derived secrets once C4 has copied them into a Session.
func (r *Result) Zeroize() {
	zeroize.All(r.RootKey, r.SendKey, r.RecvKey)
}

// Events mirrors the application-layer callback shape the handshake
// package uses to hand control back to the caller without owning session
// storage itself — the kep package does not create or store Sessions; it
// returns a Result for the caller to install. Initiator and HandleInit do
// not call an Events value themselves.
type Events interface {
	// OnInit is called when a KEP_INIT is received, before any key material
	// is derived, so the app layer can look up the initiator's identity key.
	OnInit(ctx context.Context, sessionID string, init *envelope.KEPInit) error
	// OnResponse is called when a KEP_RESPONSE is received by the initiator.
	OnResponse(ctx context.Context, sessionID string, resp *envelope.KEPResponse) error
	// OnEstablished is called once a side has verified the peer and derived
	// keys; result.Zeroize() is the caller's responsibility after use.
	OnEstablished(ctx context.Context, result *Result) error
	// OnFailed is called whenever a handshake aborts.
	OnFailed(ctx context.Context, sessionID string, err error)
}

// NoopEvents is a default no-op Events implementation.
type NoopEvents struct{}

func (NoopEvents) OnInit(context.Context, string, *envelope.KEPInit) error        { return nil }
func (NoopEvents) OnResponse(context.Context, string, *envelope.KEPResponse) error { return nil }
func (NoopEvents) OnEstablished(context.Context, *Result) error                   { return nil }
func (NoopEvents) OnFailed(context.Context, string, error)                        {}

// IdentityKey is the subset of crypto.SignerKeyPair the KEP state machine
// needs from the caller's long-lived identity key.
type IdentityKey = crypto.SignerKeyPair
