package sqlc

import "database/sql"

// Provider is a row in the providers table: one configured storage
// backend that chunks can be distributed to.
type Provider struct {
	ID        int64
	Name      string
	Type      string
	Bucket    string
	Region    sql.NullString
	Weight    int64
	Removed   bool
	CreatedAt string
}

// Backup is a row in the backups table: one top-level backup run.
type Backup struct {
	ID          string
	SourcePath  string
	Status      string
	TotalFiles  int64
	TotalBytes  int64
	TotalChunks int64
	DedupChunks int64
	CreatedAt   string
	CompletedAt sql.NullString
}

// BackupFile is a row in the backup_files table: one file captured by a
// backup, identified by its whole-file hash.
type BackupFile struct {
	ID         int64
	BackupID   string
	Path       string
	Size       int64
	Mtime      sql.NullString
	Mode       sql.NullInt64
	Hash       string
	ChunkCount int64
}

// Chunk is a row in the chunks table: one deduplicated, encrypted
// chunk's storage location and reference count.
type Chunk struct {
	Hash           string
	Nonce          []byte
	KeyID          string
	ProviderID     int64
	StorageKey     string
	SizePlain      int64
	SizeEncrypted  int64
	SizeCompressed sql.NullInt64
	RefCount       int64
	CreatedAt      string
}

// FileChunk is a row in the file_chunks table: one (file, position)
// pairing to a chunk, ordered by chunk_index to reconstruct the file.
type FileChunk struct {
	ID         int64
	FileID     int64
	ChunkHash  string
	ChunkIndex int64
	Offset     int64
}

// BackupLog is a row in the backup_logs table: an audit entry tied to a
// backup run (or NULL for engine-wide events such as gc).
type BackupLog struct {
	ID        int64
	BackupID  sql.NullString
	Level     string
	Message   string
	CreatedAt string
}
