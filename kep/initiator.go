package kep

import (
	"context"
	"encoding/json"
	"time"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/crypto/keys"
	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/internal/metrics"
	"github.com/e2ee-core/relay/replay"
)

// Initiator drives the initiator half of the handshake: Idle ->
// AwaitingResponse -> Established | Failed (§4.3).
type Initiator struct {
	identity        IdentityKey
	selfID          string
	peerID          string
	peerIdentityPub sagecrypto.JWK
	sessionID       string
	state           State

	ephemeral sagecrypto.AgreementKeyPair
}

// NewInitiator prepares an initiator for one handshake against peerID,
// whose identity public key (peerIdentityPub) must already be known
// out-of-band.
func NewInitiator(identity IdentityKey, selfID, peerID string, peerIdentityPub sagecrypto.JWK) *Initiator {
	return &Initiator{
		identity:        identity,
		selfID:          selfID,
		peerID:          peerID,
		peerIdentityPub: peerIdentityPub,
		sessionID:       SessionID(selfID, peerID),
		state:           Idle,
	}
}

// State returns the initiator's current handshake state.
func (i *Initiator) State() State { return i.state }

// SessionID returns the deterministic session id this handshake will
// install, computable before the handshake completes.
func (i *Initiator) SessionID() string { return i.sessionID }

// Start generates the ephemeral keypair, signs it, and produces KEP_INIT
// (§4.3 initiator steps 1-5).
func (i *Initiator) Start(ctx context.Context) (*envelope.KEPInit, error) {
	if i.state != Idle {
		return nil, ErrWrongState
	}
	ephemeral, err := keys.GenerateP256AgreementKeyPair()
	if err != nil {
		return nil, err
	}
	ephJWK, err := sagecrypto.JWKFromECDHPublicBytes(ephemeral.PublicBytes())
	if err != nil {
		return nil, err
	}
	ephJWKBytes, err := json.Marshal(ephJWK)
	if err != nil {
		return nil, err
	}
	canonEphPub, err := sagecrypto.CanonicalJSON(ephJWK)
	if err != nil {
		return nil, err
	}
	sig, err := i.identity.Sign(canonEphPub)
	if err != nil {
		return nil, err
	}
	nonce, err := sagecrypto.RandomBytes(16)
	if err != nil {
		return nil, err
	}

	i.ephemeral = ephemeral
	i.state = AwaitingResponse
	metrics.HandshakesInitiated.WithLabelValues("initiator").Inc()

	return &envelope.KEPInit{
		Type:      envelope.TypeKEPInit,
		From:      i.selfID,
		To:        i.peerID,
		SessionID: i.sessionID,
		EphPub:    ephJWKBytes,
		Signature: sagecrypto.Base64Encode(sig),
		Timestamp: time.Now().UnixMilli(),
		Seq:       1,
		Nonce:     sagecrypto.Base64Encode(nonce),
	}, nil
}

// HandleResponse verifies KEP_RESPONSE, derives the session keys, and
// returns the Result C4 installs as a Session (§4.3 "Initiator on
// KEP_RESPONSE"). On any failure the handshake moves to Failed and no
// Result is returned.
func (i *Initiator) HandleResponse(ctx context.Context, resp *envelope.KEPResponse) (*Result, error) {
	if i.state != AwaitingResponse {
		return nil, ErrWrongState
	}
	if err := envelope.ValidateKEPResponse(resp); err != nil {
		i.state = Failed
		return nil, err
	}
	if err := replay.CheckFreshness(resp.Timestamp, replay.NowMs(), 0); err != nil {
		i.state = Failed
		metrics.HandshakesFailed.WithLabelValues("stale_timestamp").Inc()
		return nil, ErrStaleTimestamp
	}

	canonEphPub, err := sagecrypto.CanonicalizeJSON(resp.EphPub)
	if err != nil {
		i.state = Failed
		return nil, err
	}
	sig, err := sagecrypto.Base64Decode(resp.Signature)
	if err != nil {
		i.state = Failed
		return nil, err
	}
	peerPub, err := keys.ECDSAPublicKeyFromJWK(i.peerIdentityPub)
	if err != nil {
		i.state = Failed
		return nil, err
	}
	if err := keys.VerifyP256Signature(peerPub, canonEphPub, sig); err != nil {
		i.state = Failed
		metrics.SignatureFailureAlerts.Record(i.peerID, time.Now())
		metrics.HandshakesFailed.WithLabelValues("invalid_signature").Inc()
		return nil, ErrInvalidSignature
	}

	var responderEphJWK sagecrypto.JWK
	if err := json.Unmarshal(resp.EphPub, &responderEphJWK); err != nil {
		i.state = Failed
		return nil, err
	}
	responderEphBytes, err := keys.ECDHPublicBytesFromJWK(responderEphJWK)
	if err != nil {
		i.state = Failed
		return nil, err
	}
	shared, err := i.ephemeral.DeriveSharedSecret(responderEphBytes)
	if err != nil {
		i.state = Failed
		return nil, err
	}
	i.ephemeral.Zeroize()

	rootKey, kAtoB, kBtoA, err := deriveKeys(shared, i.sessionID, i.selfID, i.peerID)
	if err != nil {
		i.state = Failed
		return nil, err
	}

	confirmTag, err := sagecrypto.Base64Decode(resp.KeyConfirmation)
	if err != nil {
		i.state = Failed
		return nil, err
	}
	expected := keyConfirmation(rootKey, i.selfID)
	if !sagecrypto.ConstantTimeEqual(confirmTag, expected) {
		i.state = Failed
		return nil, ErrKeyConfirmationMismatch
	}

	i.state = Established
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	return &Result{
		SessionID: i.sessionID,
		SelfID:    i.selfID,
		PeerID:    i.peerID,
		RootKey:   rootKey,
		SendKey:   kAtoB,
		RecvKey:   kBtoA,
	}, nil
}
