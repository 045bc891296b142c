// Package consensus wraps the manifest (component C5) as a
// Raft-style replicated state machine (component C8): leader election
// and log replication over a JSON-over-HTTP RPC transport. Snapshot
// messages are defined, but no snapshot is produced or installed and the
// Handler serves no snapshot endpoint. Every write-side manifest
// operation except provider removal is serialized as a
// Command log entry; commands are idempotent via a client-supplied
// request ID, so replaying an already-committed entry returns its
// original result instead of re-running it. Grounded in
// original_source's enigma-raft crate (types.rs's RaftRequest/
// RaftResponse enum, config.rs's RaftConfig/PeerConfig, state_machine.rs's
// apply-under-lock shape) — openraft and tonic/gRPC have no Go
// equivalent in the example pack, so the transport here is net/http
// and encoding/json instead of a fabricated gRPC stub.
package consensus

import "encoding/json"

// CommandType names one serializable manifest mutation.
type CommandType string

const (
	CmdRegisterProvider       CommandType = "RegisterProvider"
	CmdCreateBackup           CommandType = "CreateBackup"
	CmdFinishBackup           CommandType = "FinishBackup"
	CmdDeleteBackup           CommandType = "DeleteBackup"
	CmdPutChunk               CommandType = "PutChunk"
	CmdDecrementChunkRefCount CommandType = "DecrementChunkRefCount"
	CmdDeleteChunkRow         CommandType = "DeleteChunkRow"
	CmdAddFileChunk           CommandType = "AddFileChunk"
	CmdLog                    CommandType = "Log"
)

// Command is one client-submitted manifest mutation, carried through the
// Raft log. RequestID makes replay idempotent: a command with a
// previously-applied RequestID returns the cached Result rather than
// running again.
type Command struct {
	RequestID string          `json:"request_id"`
	Type      CommandType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// Result is a command's applied outcome: either a JSON payload or an
// error message, never both.
type Result struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Payload shapes for each CommandType, mirroring the manifest.Manifest
// write methods they serialize.

type RegisterProviderPayload struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Bucket string `json:"bucket"`
	Region string `json:"region"`
	Weight int    `json:"weight"`
}

type CreateBackupPayload struct {
	ID         string `json:"id"`
	SourcePath string `json:"source_path"`
}

type FinishBackupPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type DeleteBackupPayload struct {
	ID string `json:"id"`
}

type PutChunkPayload struct {
	Hash           string `json:"hash"`
	Nonce          []byte `json:"nonce"`
	KeyID          string `json:"key_id"`
	ProviderID     int64  `json:"provider_id"`
	StorageKey     string `json:"storage_key"`
	SizePlain      int64  `json:"size_plain"`
	SizeEncrypted  int64  `json:"size_encrypted"`
	SizeCompressed *int64 `json:"size_compressed"`
}

type DecrementChunkRefCountPayload struct {
	Hash string `json:"hash"`
}

type DeleteChunkRowPayload struct {
	Hash string `json:"hash"`
}

type FileChunkPayload struct {
	ChunkHash  string `json:"chunk_hash"`
	ChunkIndex int64  `json:"chunk_index"`
	Offset     int64  `json:"offset"`
}

type AddFileChunkPayload struct {
	BackupID   string             `json:"backup_id"`
	Path       string             `json:"path"`
	Size       int64              `json:"size"`
	Mtime      string             `json:"mtime"`
	Mode       int64              `json:"mode"`
	Hash       string             `json:"hash"`
	Chunks     []FileChunkPayload `json:"chunks"`
	DedupCount int64              `json:"dedup_count"`
}

type LogPayload struct {
	BackupID string `json:"backup_id"`
	Level    string `json:"level"`
	Message  string `json:"message"`
}
