package engine

import (
	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/replay"
	"github.com/e2ee-core/relay/session"
)

// Receive implements §4.7's receive(envelope): structural validation (C2),
// then the C5 replay/freshness guard, then AEAD decryption under recvKey,
// all performed while holding the Session's single-writer lock so the
// check-and-commit is atomic for this envelope (§4.5, §5 "receive-lock").
//
// A decryption failure is reported as *DecryptionFailedError without the
// guard's nonce-hash being committed (§4.7 step 5); the caller logs it and
// moves on, rather than treating it as fatal to the Session.
func Receive(store session.Store, env *envelope.Envelope) ([]byte, error) {
	if err := envelope.ValidateStructure(env); err != nil {
		return nil, err
	}

	sess, ok := store.Load(env.SessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.Lock()
	defer sess.Unlock()

	if sess.Closed() {
		return nil, ErrSessionClosed
	}

	nonceHash, err := replay.Verify(sess, env.Nonce, env.Timestamp, env.Seq, replay.NowMs(), 0)
	if err != nil {
		return nil, err
	}

	ciphertext, err := sagecrypto.Base64Decode(env.Ciphertext)
	if err != nil {
		return nil, &DecryptionFailedError{SessionID: env.SessionID, Seq: env.Seq}
	}
	iv, err := sagecrypto.Base64Decode(env.IV)
	if err != nil {
		return nil, &DecryptionFailedError{SessionID: env.SessionID, Seq: env.Seq}
	}
	tag, err := sagecrypto.Base64Decode(env.AuthTag)
	if err != nil {
		return nil, &DecryptionFailedError{SessionID: env.SessionID, Seq: env.Seq}
	}

	plaintext, err := sagecrypto.DecryptAEAD(sess.RecvKey(), iv, ciphertext, tag)
	if err != nil {
		return nil, &DecryptionFailedError{SessionID: env.SessionID, Seq: env.Seq}
	}

	replay.Commit(sess, nonceHash, env.Seq)
	return plaintext, nil
}
