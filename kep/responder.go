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

// HandleInit runs the responder half of the handshake on a received
// KEP_INIT (§4.3 "Responder on KEP_INIT"): verify, derive, confirm, emit.
// initiatorIdentityPub is the initiator's identity public key, resolved
// by the caller (e.g. from a directory service) before calling in.
func HandleInit(ctx context.Context, identity IdentityKey, selfID string, init *envelope.KEPInit, initiatorIdentityPub sagecrypto.JWK) (*envelope.KEPResponse, *Result, error) {
	if err := envelope.ValidateKEPInit(init); err != nil {
		return nil, nil, err
	}
	if err := replay.CheckFreshness(init.Timestamp, replay.NowMs(), 0); err != nil {
		metrics.HandshakesFailed.WithLabelValues("stale_timestamp").Inc()
		return nil, nil, ErrStaleTimestamp
	}
	metrics.HandshakesInitiated.WithLabelValues("responder").Inc()

	canonEphPub, err := sagecrypto.CanonicalizeJSON(init.EphPub)
	if err != nil {
		return nil, nil, err
	}
	sig, err := sagecrypto.Base64Decode(init.Signature)
	if err != nil {
		return nil, nil, err
	}
	initiatorPub, err := keys.ECDSAPublicKeyFromJWK(initiatorIdentityPub)
	if err != nil {
		return nil, nil, err
	}
	if err := keys.VerifyP256Signature(initiatorPub, canonEphPub, sig); err != nil {
		metrics.SignatureFailureAlerts.Record(init.From, time.Now())
		metrics.HandshakesFailed.WithLabelValues("invalid_signature").Inc()
		return nil, nil, ErrInvalidSignature
	}

	var initiatorEphJWK sagecrypto.JWK
	if err := json.Unmarshal(init.EphPub, &initiatorEphJWK); err != nil {
		return nil, nil, err
	}
	initiatorEphBytes, err := keys.ECDHPublicBytesFromJWK(initiatorEphJWK)
	if err != nil {
		return nil, nil, err
	}

	responderEphemeral, err := keys.GenerateP256AgreementKeyPair()
	if err != nil {
		return nil, nil, err
	}
	responderEphJWK, err := sagecrypto.JWKFromECDHPublicBytes(responderEphemeral.PublicBytes())
	if err != nil {
		return nil, nil, err
	}

	shared, err := responderEphemeral.DeriveSharedSecret(initiatorEphBytes)
	if err != nil {
		return nil, nil, err
	}
	responderEphemeral.Zeroize()

	rootKey, kAtoB, kBtoA, err := deriveKeys(shared, init.SessionID, init.From, selfID)
	if err != nil {
		return nil, nil, err
	}

	confirmTag := keyConfirmation(rootKey, init.From)

	canonResponderEphPub, err := sagecrypto.CanonicalJSON(responderEphJWK)
	if err != nil {
		return nil, nil, err
	}
	respSig, err := identity.Sign(canonResponderEphPub)
	if err != nil {
		return nil, nil, err
	}
	nonce, err := sagecrypto.RandomBytes(16)
	if err != nil {
		return nil, nil, err
	}
	ephJWKBytes, err := json.Marshal(responderEphJWK)
	if err != nil {
		return nil, nil, err
	}

	resp := &envelope.KEPResponse{
		Type:            envelope.TypeKEPResp,
		From:            selfID,
		To:              init.From,
		SessionID:       init.SessionID,
		EphPub:          ephJWKBytes,
		Signature:       sagecrypto.Base64Encode(respSig),
		Timestamp:       time.Now().UnixMilli(),
		Seq:             2,
		Nonce:           sagecrypto.Base64Encode(nonce),
		KeyConfirmation: sagecrypto.Base64Encode(confirmTag),
	}

	// Responder installs sendKey=K_B->A, recvKey=K_A->B (§4.3 step 9).
	result := &Result{
		SessionID: init.SessionID,
		SelfID:    selfID,
		PeerID:    init.From,
		RootKey:   rootKey,
		SendKey:   kBtoA,
		RecvKey:   kAtoB,
	}
	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	return resp, result, nil
}
