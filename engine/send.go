package engine

import (
	"time"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/filepipe"
	"github.com/e2ee-core/relay/internal/zeroize"
	"github.com/e2ee-core/relay/session"
)

// Send implements §4.7's send(sessionId, plaintext): load the Session,
// hold its lock only long enough to sample seq, AEAD-encrypt under
// sendKey, and return a single MSG envelope ready for transport.
func Send(store session.Store, sessionID string, plaintext []byte) (*envelope.Envelope, error) {
	sess, ok := store.Load(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	sess.Lock()
	if sess.Closed() {
		sess.Unlock()
		return nil, ErrSessionClosed
	}
	seq := sess.NextSendSeq()
	sendKey := sess.SendKey()
	a, b := sess.Participants()
	sess.Unlock()

	ciphertext, iv, tag, err := sagecrypto.EncryptAEAD(sendKey, plaintext)
	if err != nil {
		return nil, err
	}
	nonce, err := sagecrypto.RandomBytes(NonceSize)
	if err != nil {
		return nil, err
	}
	zeroize.Bytes(plaintext)

	return &envelope.Envelope{
		Type:       envelope.TypeMSG,
		SessionID:  sessionID,
		Sender:     a,
		Receiver:   b,
		Ciphertext: sagecrypto.Base64Encode(ciphertext),
		IV:         sagecrypto.Base64Encode(iv),
		AuthTag:    sagecrypto.Base64Encode(tag),
		Timestamp:  time.Now().UnixMilli(),
		Seq:        seq,
		Nonce:      sagecrypto.Base64Encode(nonce),
	}, nil
}

// SendFile implements §4.7 step 4: delegate to the file pipeline using a
// run of consecutive seq values allocated under the session send-lock, so
// a file transfer and a concurrent text Send on the same session never
// collide on seq.
func SendFile(store session.Store, sessionID string, meta filepipe.FileMeta, data []byte) (*envelope.Envelope, []*envelope.Envelope, error) {
	sess, ok := store.Load(sessionID)
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	sess.Lock()
	if sess.Closed() {
		sess.Unlock()
		return nil, nil, ErrSessionClosed
	}
	totalChunks := filepipe.TotalChunks(meta.Size)
	startSeq := sess.ReserveSendSeqRange(1 + totalChunks)
	sendKey := sess.SendKey()
	a, b := sess.Participants()
	sess.Unlock()

	metaEnv, chunks, _, err := filepipe.Encrypt(sendKey, sessionID, a, b, meta, data, startSeq)
	if err != nil {
		return nil, nil, err
	}

	return metaEnv, chunks, nil
}
