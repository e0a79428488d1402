// Package envelope implements the canonical wire framing (C2) for MSG,
// FILE_META, FILE_CHUNK, KEP_INIT, KEP_RESPONSE and KEY_UPDATE messages,
// plus the structural validation every inbound envelope must pass before
// any cryptographic or replay check runs.
package envelope

import "encoding/json"

// Type identifies the kind of envelope on the wire (§3).
type Type string

const (
	TypeMSG       Type = "MSG"
	TypeFileMeta  Type = "FILE_META"
	TypeFileChunk Type = "FILE_CHUNK"
	TypeKEPInit   Type = "KEP_INIT"
	TypeKEPResp   Type = "KEP_RESPONSE"
	TypeKeyUpdate Type = "KEY_UPDATE"
)

// FileMetaInfo is the meta payload carried by a FILE_META envelope (§3).
type FileMetaInfo struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	TotalChunks int    `json:"totalChunks"`
	Mimetype    string `json:"mimetype"`
}

// FileChunkInfo is the meta payload carried by a FILE_CHUNK envelope (§3).
type FileChunkInfo struct {
	ChunkIndex  int `json:"chunkIndex"`
	TotalChunks int `json:"totalChunks"`
}

// Envelope is the common wire shape for MSG, FILE_META and FILE_CHUNK
// (§3 "Envelope (common fields)"). Meta is left as json.RawMessage so C2
// can structurally validate the envelope before C6/C7 interpret Meta
// against the concrete FileMetaInfo/FileChunkInfo shape for its Type.
type Envelope struct {
	Type       Type            `json:"type"`
	SessionID  string          `json:"sessionId"`
	Sender     string          `json:"sender"`
	Receiver   string          `json:"receiver"`
	Ciphertext string          `json:"ciphertext"`
	IV         string          `json:"iv"`
	AuthTag    string          `json:"authTag"`
	Timestamp  int64           `json:"timestamp"`
	Seq        uint64          `json:"seq"`
	Nonce      string          `json:"nonce"`
	Meta       json.RawMessage `json:"meta,omitempty"`
}
