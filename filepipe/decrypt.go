package filepipe

import (
	"encoding/json"
	"sort"

	sagecrypto "github.com/e2ee-core/relay/crypto"
	"github.com/e2ee-core/relay/envelope"
)

// Decrypt reverses Encrypt: decrypt the FILE_META envelope, validate the
// chunk set is exactly [0, totalChunks), sort and decrypt chunks in
// order, and concatenate into the original file bytes (§4.6
// "Decrypt(meta, chunks)").
func Decrypt(recvKey []byte, metaEnv *envelope.Envelope, chunkEnvs []*envelope.Envelope) (FileMeta, []byte, error) {
	metaPlain, err := openEnvelope(recvKey, metaEnv)
	if err != nil {
		return FileMeta{}, nil, ErrDecryption
	}
	var meta FileMeta
	if err := json.Unmarshal(metaPlain, &meta); err != nil {
		return FileMeta{}, nil, ErrDecryption
	}

	if len(chunkEnvs) != meta.TotalChunks {
		return FileMeta{}, nil, &MissingChunksError{Expected: meta.TotalChunks, Got: len(chunkEnvs)}
	}

	seen := make(map[int]*envelope.Envelope, len(chunkEnvs))
	for _, env := range chunkEnvs {
		var info envelope.FileChunkInfo
		if err := json.Unmarshal(env.Meta, &info); err != nil {
			return FileMeta{}, nil, &ChunkIndexMismatchError{Index: -1, TotalChunks: meta.TotalChunks}
		}
		if info.ChunkIndex < 0 || info.ChunkIndex >= meta.TotalChunks {
			return FileMeta{}, nil, &ChunkIndexMismatchError{Index: info.ChunkIndex, TotalChunks: meta.TotalChunks}
		}
		if _, dup := seen[info.ChunkIndex]; dup {
			return FileMeta{}, nil, &MissingChunksError{Expected: meta.TotalChunks, Got: len(chunkEnvs)}
		}
		seen[info.ChunkIndex] = env
	}
	if len(seen) != meta.TotalChunks {
		return FileMeta{}, nil, &MissingChunksError{Expected: meta.TotalChunks, Got: len(seen)}
	}

	ordered := make([]int, 0, len(seen))
	for idx := range seen {
		ordered = append(ordered, idx)
	}
	sort.Ints(ordered)

	out := make([]byte, 0, meta.Size)
	for _, idx := range ordered {
		plain, err := openEnvelope(recvKey, seen[idx])
		if err != nil {
			return FileMeta{}, nil, ErrDecryption
		}
		out = append(out, plain...)
	}

	return meta, out, nil
}

func openEnvelope(key []byte, env *envelope.Envelope) ([]byte, error) {
	ciphertext, err := sagecrypto.Base64Decode(env.Ciphertext)
	if err != nil {
		return nil, sagecrypto.ErrAuthFailure
	}
	iv, err := sagecrypto.Base64Decode(env.IV)
	if err != nil {
		return nil, sagecrypto.ErrAuthFailure
	}
	tag, err := sagecrypto.Base64Decode(env.AuthTag)
	if err != nil {
		return nil, sagecrypto.ErrAuthFailure
	}
	return sagecrypto.DecryptAEAD(key, iv, ciphertext, tag)
}
