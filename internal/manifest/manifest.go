// Package manifest is the deduplicating metadata store (component C5):
// providers, backups, files, chunks, and their reference counts, backed
// by SQLite. Transactional shapes are grounded in the teacher's
// internal/database/sqlite.go (BeginTx + WithTx + defer Rollback), and
// the schema follows original_source's enigma-core/src/manifest/schema.rs.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
	"github.com/enigma-backup/enigma/internal/manifest/migrations"
	"github.com/enigma-backup/enigma/internal/manifest/sqlc"
)

// Provider is a registered storage backend.
type Provider struct {
	ID      int64
	Name    string
	Type    string
	Bucket  string
	Region  string
	Weight  int
	Removed bool
}

// Chunk is a deduplicated chunk's placement and crypto metadata.
type Chunk struct {
	Hash           string
	Nonce          []byte
	KeyID          string
	ProviderID     int64
	StorageKey     string
	SizePlain      int64
	SizeEncrypted  int64
	SizeCompressed *int64
	RefCount       int64
}

// FileChunk is one (position, chunk) pairing within a file.
type FileChunk struct {
	ChunkHash  string
	ChunkIndex int64
	Offset     int64
}

// BackupFile is one file captured by a backup.
type BackupFile struct {
	ID         int64
	BackupID   string
	Path       string
	Size       int64
	Mtime      string
	Mode       int64
	Hash       string
	ChunkCount int64
}

// Backup is one backup run's summary.
type Backup struct {
	ID          string
	SourcePath  string
	Status      string
	TotalFiles  int64
	TotalBytes  int64
	TotalChunks int64
	DedupChunks int64
	CreatedAt   string
	CompletedAt string
}

// Backup status values.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Stats summarizes the whole manifest, for "enigma status".
type Stats struct {
	BackupCount      int64
	ChunkCount       int64
	TotalPlainBytes  int64
	TotalStoredBytes int64
}

// Manifest is the metadata store's contract, implemented by SQLiteManifest
// and depended on by the pipeline and the consensus state machine.
type Manifest interface {
	RegisterProvider(ctx context.Context, p Provider) (Provider, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	RemoveProvider(ctx context.Context, id int64) error

	CreateBackup(ctx context.Context, id, sourcePath string) (Backup, error)
	GetBackup(ctx context.Context, id string) (Backup, error)
	ListBackups(ctx context.Context) ([]Backup, error)
	FinishBackup(ctx context.Context, id string, status string) error
	DeleteBackup(ctx context.Context, id string) error

	// PutChunk records a newly uploaded chunk, or — if the hash already
	// exists — increments its reference count instead of inserting a
	// duplicate row. Returns wasNew=true only when a new row was created.
	PutChunk(ctx context.Context, c Chunk) (wasNew bool, err error)
	GetChunk(ctx context.Context, hash string) (Chunk, error)
	DecrementChunkRefCount(ctx context.Context, hash string) error
	ListOrphanChunks(ctx context.Context) ([]Chunk, error)
	DeleteChunkRow(ctx context.Context, hash string) error

	// AddFileChunk atomically records one file and all of its chunk
	// references: inserts the backup_files row, one file_chunks row per
	// chunk, and rolls totals into the parent backup.
	AddFileChunk(ctx context.Context, backupID, path string, size int64, mtime string, mode int64, hash string, chunks []FileChunk, dedupCount int64) (BackupFile, error)
	GetFileChunks(ctx context.Context, fileID int64) ([]FileChunk, error)
	ListBackupFiles(ctx context.Context, backupID string) ([]BackupFile, error)
	GetBackupFile(ctx context.Context, backupID, path string) (BackupFile, error)

	Log(ctx context.Context, backupID string, level, message string) error
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// SQLiteManifest is the Manifest backed by a local SQLite database.
type SQLiteManifest struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
}

var _ Manifest = (*SQLiteManifest)(nil)

// Open opens (creating if necessary) a SQLite-backed manifest at path,
// applying pending migrations. path may be ":memory:".
func Open(path string) (*SQLiteManifest, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "open manifest database", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "enable foreign keys", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "enable WAL", err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, enigmaerr.New(enigmaerr.ConfigInvalid, "apply manifest migrations", err)
	}

	return &SQLiteManifest{db: db, queries: sqlc.New(db), path: path}, nil
}

// Path returns the manifest database's file path (or ":memory:").
func (m *SQLiteManifest) Path() string { return m.path }

// CheckMigrations reports whether the manifest schema is current.
func (m *SQLiteManifest) CheckMigrations() error {
	return migrations.CheckStatus(m.db)
}

// SchemaVersion reports the manifest's current schema version, the
// latest version available in the binary, and whether the database was
// left dirty by a failed prior migration, for status reporting that
// should not fail outright on drift the way CheckMigrations does.
func (m *SQLiteManifest) SchemaVersion() (current, latest uint, dirty bool, err error) {
	return migrations.Version(m.db)
}

// BackupTo snapshots the manifest database to destPath, for replicating
// the manifest as a remote metadata object.
func (m *SQLiteManifest) BackupTo(destPath string) error {
	if _, err := m.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return enigmaerr.New(enigmaerr.StoragePermanent, "snapshot manifest database", err)
	}
	return nil
}

func (m *SQLiteManifest) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// RegisterProvider implements Manifest.
func (m *SQLiteManifest) RegisterProvider(ctx context.Context, p Provider) (Provider, error) {
	row, err := m.queries.InsertProvider(ctx, sqlc.InsertProviderParams{
		Name:   p.Name,
		Type:   p.Type,
		Bucket: p.Bucket,
		Region: nullString(p.Region),
		Weight: int64(p.Weight),
	})
	if err != nil {
		return Provider{}, enigmaerr.New(enigmaerr.ConfigInvalid, "register provider "+p.Name, err)
	}
	return providerFromRow(row), nil
}

// ListProviders implements Manifest.
func (m *SQLiteManifest) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := m.queries.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("manifest: list providers: %w", err)
	}
	out := make([]Provider, len(rows))
	for i, r := range rows {
		out[i] = providerFromRow(r)
	}
	return out, nil
}

// RemoveProvider implements Manifest. Chunks already placed on a
// removed provider remain referenced in the manifest — their reads
// will fail as StoragePermanent once the provider's credentials are
// gone, per design.
func (m *SQLiteManifest) RemoveProvider(ctx context.Context, id int64) error {
	if err := m.queries.MarkProviderRemoved(ctx, id); err != nil {
		return fmt.Errorf("manifest: remove provider %d: %w", id, err)
	}
	return nil
}

func providerFromRow(r sqlc.Provider) Provider {
	return Provider{
		ID:      r.ID,
		Name:    r.Name,
		Type:    r.Type,
		Bucket:  r.Bucket,
		Region:  r.Region.String,
		Weight:  int(r.Weight),
		Removed: r.Removed,
	}
}

// CreateBackup implements Manifest.
func (m *SQLiteManifest) CreateBackup(ctx context.Context, id, sourcePath string) (Backup, error) {
	row, err := m.queries.InsertBackup(ctx, sqlc.InsertBackupParams{ID: id, SourcePath: sourcePath})
	if err != nil {
		return Backup{}, enigmaerr.New(enigmaerr.ConfigInvalid, "create backup "+id, err)
	}
	return backupFromRow(row), nil
}

// GetBackup implements Manifest.
func (m *SQLiteManifest) GetBackup(ctx context.Context, id string) (Backup, error) {
	row, err := m.queries.GetBackupByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Backup{}, enigmaerr.New(enigmaerr.NotFound, "backup "+id+" not found", err)
		}
		return Backup{}, fmt.Errorf("manifest: get backup %s: %w", id, err)
	}
	return backupFromRow(row), nil
}

// ListBackups implements Manifest.
func (m *SQLiteManifest) ListBackups(ctx context.Context) ([]Backup, error) {
	rows, err := m.queries.ListBackups(ctx)
	if err != nil {
		return nil, fmt.Errorf("manifest: list backups: %w", err)
	}
	out := make([]Backup, len(rows))
	for i, r := range rows {
		out[i] = backupFromRow(r)
	}
	return out, nil
}

// FinishBackup implements Manifest.
func (m *SQLiteManifest) FinishBackup(ctx context.Context, id string, status string) error {
	if err := m.queries.FinishBackup(ctx, sqlc.FinishBackupParams{ID: id, Status: status}); err != nil {
		return fmt.Errorf("manifest: finish backup %s: %w", id, err)
	}
	return nil
}

// DeleteBackup implements Manifest. It walks every file_chunks edge the
// backup's files own, decrements each referenced chunk's ref_count, and
// removes the backup's files/logs/row, all inside one transaction: a
// crash or error partway through rolls back cleanly, leaving chunk
// refcounts and the backup row consistent with each other, instead of
// the backup disappearing while some chunks stay over-refcounted (or
// vice versa). Chunks whose ref_count reaches 0 become orphans, left in
// place for a later GC run to reclaim.
func (m *SQLiteManifest) DeleteBackup(ctx context.Context, id string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("manifest: begin delete backup %s: %w", id, err)
	}
	defer tx.Rollback()

	qtx := m.queries.WithTx(tx)

	files, err := qtx.GetBackupFilesByBackupID(ctx, id)
	if err != nil {
		return fmt.Errorf("manifest: list files for backup %s: %w", id, err)
	}
	for _, f := range files {
		chunks, err := qtx.GetFileChunksByFileID(ctx, f.ID)
		if err != nil {
			return fmt.Errorf("manifest: list file_chunks for file %d: %w", f.ID, err)
		}
		for _, fc := range chunks {
			if err := qtx.DecrementChunkRefCount(ctx, fc.ChunkHash); err != nil {
				return fmt.Errorf("manifest: decrement ref count for %s: %w", fc.ChunkHash, err)
			}
		}
		if err := qtx.DeleteFileChunksByFileID(ctx, f.ID); err != nil {
			return fmt.Errorf("manifest: delete file_chunks for file %d: %w", f.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM backup_files WHERE backup_id = ?", id); err != nil {
		return fmt.Errorf("manifest: delete backup_files for backup %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM backup_logs WHERE backup_id = ?", id); err != nil {
		return fmt.Errorf("manifest: delete backup_logs for backup %s: %w", id, err)
	}
	if err := qtx.DeleteBackup(ctx, id); err != nil {
		return fmt.Errorf("manifest: delete backup %s: %w", id, err)
	}

	return tx.Commit()
}

func backupFromRow(r sqlc.Backup) Backup {
	return Backup{
		ID:          r.ID,
		SourcePath:  r.SourcePath,
		Status:      r.Status,
		TotalFiles:  r.TotalFiles,
		TotalBytes:  r.TotalBytes,
		TotalChunks: r.TotalChunks,
		DedupChunks: r.DedupChunks,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt.String,
	}
}

// PutChunk implements Manifest. It is the dedup choke point: concurrent
// uploaders racing to store the same chunk must have exactly one winner
// insert the row; everyone else increments ref_count on the existing row.
func (m *SQLiteManifest) PutChunk(ctx context.Context, c Chunk) (bool, error) {
	_, err := m.queries.GetChunkByHash(ctx, c.Hash)
	if err == nil {
		if err := m.queries.IncrementChunkRefCount(ctx, c.Hash); err != nil {
			return false, fmt.Errorf("manifest: increment ref count for %s: %w", c.Hash, err)
		}
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("manifest: lookup chunk %s: %w", c.Hash, err)
	}

	var sizeCompressed sql.NullInt64
	if c.SizeCompressed != nil {
		sizeCompressed = sql.NullInt64{Int64: *c.SizeCompressed, Valid: true}
	}

	_, err = m.queries.InsertChunk(ctx, sqlc.InsertChunkParams{
		Hash:           c.Hash,
		Nonce:          c.Nonce,
		KeyID:          c.KeyID,
		ProviderID:     c.ProviderID,
		StorageKey:     c.StorageKey,
		SizePlain:      c.SizePlain,
		SizeEncrypted:  c.SizeEncrypted,
		SizeCompressed: sizeCompressed,
	})
	if err != nil {
		// A UNIQUE constraint violation here means another uploader won
		// the race between our lookup and our insert; fall back to
		// incrementing, same as the existing-row path above.
		if incErr := m.queries.IncrementChunkRefCount(ctx, c.Hash); incErr == nil {
			return false, nil
		}
		return false, fmt.Errorf("manifest: insert chunk %s: %w", c.Hash, err)
	}
	return true, nil
}

// GetChunk implements Manifest.
func (m *SQLiteManifest) GetChunk(ctx context.Context, hash string) (Chunk, error) {
	row, err := m.queries.GetChunkByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Chunk{}, enigmaerr.WithHash(enigmaerr.NotFound, "chunk not found", hash, err)
		}
		return Chunk{}, fmt.Errorf("manifest: get chunk %s: %w", hash, err)
	}
	return chunkFromRow(row), nil
}

// DecrementChunkRefCount implements Manifest.
func (m *SQLiteManifest) DecrementChunkRefCount(ctx context.Context, hash string) error {
	if err := m.queries.DecrementChunkRefCount(ctx, hash); err != nil {
		return fmt.Errorf("manifest: decrement ref count for %s: %w", hash, err)
	}
	return nil
}

// ListOrphanChunks implements Manifest: chunks whose ref_count has
// dropped to zero or below but whose row (and remote object) has not
// yet been reclaimed by gc.
func (m *SQLiteManifest) ListOrphanChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := m.queries.ListOrphanChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("manifest: list orphan chunks: %w", err)
	}
	out := make([]Chunk, len(rows))
	for i, r := range rows {
		out[i] = chunkFromRow(r)
	}
	return out, nil
}

// DeleteChunkRow implements Manifest: removes the manifest's record of a
// chunk. Callers must delete the remote object first; deleting the row
// before the remote delete succeeds would orphan the backing bytes.
func (m *SQLiteManifest) DeleteChunkRow(ctx context.Context, hash string) error {
	if err := m.queries.DeleteChunk(ctx, hash); err != nil {
		return fmt.Errorf("manifest: delete chunk row %s: %w", hash, err)
	}
	return nil
}

func chunkFromRow(r sqlc.Chunk) Chunk {
	c := Chunk{
		Hash:          r.Hash,
		Nonce:         r.Nonce,
		KeyID:         r.KeyID,
		ProviderID:    r.ProviderID,
		StorageKey:    r.StorageKey,
		SizePlain:     r.SizePlain,
		SizeEncrypted: r.SizeEncrypted,
		RefCount:      r.RefCount,
	}
	if r.SizeCompressed.Valid {
		v := r.SizeCompressed.Int64
		c.SizeCompressed = &v
	}
	return c
}

// AddFileChunk implements Manifest: the atomic transaction that records
// one file's full chunk list and rolls its totals into the parent
// backup, mirroring the teacher's CreateFileSnapshotAndContent shape
// (find-or-create, then a single committing transaction).
func (m *SQLiteManifest) AddFileChunk(ctx context.Context, backupID, path string, size int64, mtime string, mode int64, hash string, chunks []FileChunk, dedupCount int64) (BackupFile, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return BackupFile{}, fmt.Errorf("manifest: begin add file %s: %w", path, err)
	}
	defer tx.Rollback()

	qtx := m.queries.WithTx(tx)

	fileRow, err := qtx.InsertBackupFile(ctx, sqlc.InsertBackupFileParams{
		BackupID: backupID,
		Path:     path,
		Size:     size,
		Mtime:    nullString(mtime),
		Mode:     sql.NullInt64{Int64: mode, Valid: mode != 0},
		Hash:     hash,
	})
	if err != nil {
		return BackupFile{}, fmt.Errorf("manifest: insert backup_file %s: %w", path, err)
	}

	for _, fc := range chunks {
		if err := qtx.InsertFileChunk(ctx, sqlc.InsertFileChunkParams{
			FileID:     fileRow.ID,
			ChunkHash:  fc.ChunkHash,
			ChunkIndex: fc.ChunkIndex,
			Offset:     fc.Offset,
		}); err != nil {
			return BackupFile{}, fmt.Errorf("manifest: insert file_chunk %d for %s: %w", fc.ChunkIndex, path, err)
		}
	}

	if err := qtx.SetBackupFileChunkCount(ctx, fileRow.ID, int64(len(chunks))); err != nil {
		return BackupFile{}, fmt.Errorf("manifest: set chunk count for %s: %w", path, err)
	}

	backupRow, err := qtx.GetBackupByID(ctx, backupID)
	if err != nil {
		return BackupFile{}, fmt.Errorf("manifest: load backup %s: %w", backupID, err)
	}
	if err := qtx.UpdateBackupTotals(ctx, sqlc.UpdateBackupTotalsParams{
		ID:          backupID,
		TotalFiles:  backupRow.TotalFiles + 1,
		TotalBytes:  backupRow.TotalBytes + size,
		TotalChunks: backupRow.TotalChunks + int64(len(chunks)),
		DedupChunks: backupRow.DedupChunks + dedupCount,
	}); err != nil {
		return BackupFile{}, fmt.Errorf("manifest: update backup totals %s: %w", backupID, err)
	}

	if err := tx.Commit(); err != nil {
		return BackupFile{}, fmt.Errorf("manifest: commit add file %s: %w", path, err)
	}

	return BackupFile{
		ID:         fileRow.ID,
		BackupID:   fileRow.BackupID,
		Path:       fileRow.Path,
		Size:       fileRow.Size,
		Mtime:      fileRow.Mtime.String,
		Mode:       fileRow.Mode.Int64,
		Hash:       fileRow.Hash,
		ChunkCount: int64(len(chunks)),
	}, nil
}

// GetFileChunks implements Manifest.
func (m *SQLiteManifest) GetFileChunks(ctx context.Context, fileID int64) ([]FileChunk, error) {
	rows, err := m.queries.GetFileChunksByFileID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("manifest: get file chunks for %d: %w", fileID, err)
	}
	out := make([]FileChunk, len(rows))
	for i, r := range rows {
		out[i] = FileChunk{ChunkHash: r.ChunkHash, ChunkIndex: r.ChunkIndex, Offset: r.Offset}
	}
	return out, nil
}

// ListBackupFiles implements Manifest.
func (m *SQLiteManifest) ListBackupFiles(ctx context.Context, backupID string) ([]BackupFile, error) {
	rows, err := m.queries.GetBackupFilesByBackupID(ctx, backupID)
	if err != nil {
		return nil, fmt.Errorf("manifest: list files for backup %s: %w", backupID, err)
	}
	out := make([]BackupFile, len(rows))
	for i, r := range rows {
		out[i] = backupFileFromRow(r)
	}
	return out, nil
}

// GetBackupFile implements Manifest.
func (m *SQLiteManifest) GetBackupFile(ctx context.Context, backupID, path string) (BackupFile, error) {
	r, err := m.queries.GetBackupFileByPath(ctx, backupID, path)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BackupFile{}, enigmaerr.New(enigmaerr.NotFound, "file not found: "+path, err)
		}
		return BackupFile{}, fmt.Errorf("manifest: get file %s: %w", path, err)
	}
	return backupFileFromRow(r), nil
}

func backupFileFromRow(r sqlc.BackupFile) BackupFile {
	return BackupFile{
		ID:         r.ID,
		BackupID:   r.BackupID,
		Path:       r.Path,
		Size:       r.Size,
		Mtime:      r.Mtime.String,
		Mode:       r.Mode.Int64,
		Hash:       r.Hash,
		ChunkCount: r.ChunkCount,
	}
}

// Log implements Manifest.
func (m *SQLiteManifest) Log(ctx context.Context, backupID string, level, message string) error {
	if err := m.queries.InsertBackupLog(ctx, sqlc.InsertBackupLogParams{
		BackupID: nullString(backupID),
		Level:    level,
		Message:  message,
	}); err != nil {
		return fmt.Errorf("manifest: log: %w", err)
	}
	return nil
}

// Stats implements Manifest.
func (m *SQLiteManifest) Stats(ctx context.Context) (Stats, error) {
	backups, err := m.queries.ListBackups(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("manifest: stats backups: %w", err)
	}
	chunkCount, err := m.queries.CountChunks(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("manifest: stats chunk count: %w", err)
	}
	plain, encrypted, err := m.queries.SumChunkSizes(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("manifest: stats chunk sizes: %w", err)
	}
	return Stats{
		BackupCount:      int64(len(backups)),
		ChunkCount:       chunkCount,
		TotalPlainBytes:  plain,
		TotalStoredBytes: encrypted,
	}, nil
}
