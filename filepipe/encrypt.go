package filepipe

import (
	"encoding/json"
	"time"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/envelope"
)

// Encrypt splits data into ChunkSize chunks and produces one FILE_META
// envelope followed by totalChunks FILE_CHUNK envelopes, all under
// sendKey, sharing sessionID and consecutive seq values starting at
// startSeq (§4.6 "Encrypt(file)"). It returns the envelopes and the next
// free seq for the caller to continue with.
func Encrypt(sendKey []byte, sessionID, sender, receiver string, meta FileMeta, data []byte, startSeq uint64) (*envelope.Envelope, []*envelope.Envelope, uint64, error) {
	if meta.Size > MaxFileSize {
		return nil, nil, startSeq, ErrFileTooLarge
	}
	meta.TotalChunks = TotalChunks(meta.Size)

	seq := startSeq

	metaPlain, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, startSeq, err
	}
	metaEnv, seq, err := sealEnvelope(sendKey, sessionID, sender, receiver, envelope.TypeFileMeta, metaPlain, seq, func() (json.RawMessage, error) {
		return json.Marshal(envelope.FileMetaInfo{
			Filename:    meta.Filename,
			Size:        meta.Size,
			TotalChunks: meta.TotalChunks,
			Mimetype:    meta.Mimetype,
		})
	})
	if err != nil {
		return nil, nil, startSeq, err
	}

	chunks := make([]*envelope.Envelope, 0, meta.TotalChunks)
	for i := 0; i < meta.TotalChunks; i++ {
		lo := i * ChunkSize
		hi := lo + ChunkSize
		if hi > len(data) {
			hi = len(data)
		}
		chunkIndex := i
		var env *envelope.Envelope
		env, seq, err = sealEnvelope(sendKey, sessionID, sender, receiver, envelope.TypeFileChunk, data[lo:hi], seq, func() (json.RawMessage, error) {
			return json.Marshal(envelope.FileChunkInfo{ChunkIndex: chunkIndex, TotalChunks: meta.TotalChunks})
		})
		if err != nil {
			return nil, nil, startSeq, err
		}
		chunks = append(chunks, env)
	}

	return metaEnv, chunks, seq, nil
}

// sealEnvelope encrypts plaintext under key with a fresh IV and a fresh
// random nonce and frames the result as an Envelope of typ, with meta
// filled in by buildMeta (cleartext routing info, independent of the
// encrypted payload).
func sealEnvelope(key []byte, sessionID, sender, receiver string, typ envelope.Type, plaintext []byte, seq uint64, buildMeta func() (json.RawMessage, error)) (*envelope.Envelope, uint64, error) {
	ciphertext, iv, tag, err := sagecrypto.EncryptAEAD(key, plaintext)
	if err != nil {
		return nil, seq, err
	}
	nonce, err := sagecrypto.RandomBytes(16)
	if err != nil {
		return nil, seq, err
	}
	metaBytes, err := buildMeta()
	if err != nil {
		return nil, seq, err
	}
	env := &envelope.Envelope{
		Type:       typ,
		SessionID:  sessionID,
		Sender:     sender,
		Receiver:   receiver,
		Ciphertext: sagecrypto.Base64Encode(ciphertext),
		IV:         sagecrypto.Base64Encode(iv),
		AuthTag:    sagecrypto.Base64Encode(tag),
		Timestamp:  time.Now().UnixMilli(),
		Seq:        seq,
		Nonce:      sagecrypto.Base64Encode(nonce),
		Meta:       metaBytes,
	}
	return env, seq + 1, nil
}
