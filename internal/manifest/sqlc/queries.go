package sqlc

import (
	"context"
	"database/sql"
)

// Provider queries

type InsertProviderParams struct {
	Name   string
	Type   string
	Bucket string
	Region sql.NullString
	Weight int64
}

func (q *Queries) InsertProvider(ctx context.Context, arg InsertProviderParams) (Provider, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO providers (name, type, bucket, region, weight)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id, name, type, bucket, region, weight, removed, created_at
	`, arg.Name, arg.Type, arg.Bucket, arg.Region, arg.Weight)
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Bucket, &p.Region, &p.Weight, &p.Removed, &p.CreatedAt)
	return p, err
}

func (q *Queries) GetProviderByID(ctx context.Context, id int64) (Provider, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, type, bucket, region, weight, removed, created_at
		FROM providers WHERE id = ?
	`, id)
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Bucket, &p.Region, &p.Weight, &p.Removed, &p.CreatedAt)
	return p, err
}

func (q *Queries) GetProviderByName(ctx context.Context, name string) (Provider, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, type, bucket, region, weight, removed, created_at
		FROM providers WHERE name = ?
	`, name)
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Bucket, &p.Region, &p.Weight, &p.Removed, &p.CreatedAt)
	return p, err
}

func (q *Queries) ListProviders(ctx context.Context) ([]Provider, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, type, bucket, region, weight, removed, created_at
		FROM providers ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Type, &p.Bucket, &p.Region, &p.Weight, &p.Removed, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) MarkProviderRemoved(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE providers SET removed = 1 WHERE id = ?`, id)
	return err
}

// Backup queries

type InsertBackupParams struct {
	ID         string
	SourcePath string
}

func (q *Queries) InsertBackup(ctx context.Context, arg InsertBackupParams) (Backup, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO backups (id, source_path)
		VALUES (?, ?)
		RETURNING id, source_path, status, total_files, total_bytes, total_chunks, dedup_chunks, created_at, completed_at
	`, arg.ID, arg.SourcePath)
	var b Backup
	err := row.Scan(&b.ID, &b.SourcePath, &b.Status, &b.TotalFiles, &b.TotalBytes, &b.TotalChunks, &b.DedupChunks, &b.CreatedAt, &b.CompletedAt)
	return b, err
}

func (q *Queries) GetBackupByID(ctx context.Context, id string) (Backup, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, source_path, status, total_files, total_bytes, total_chunks, dedup_chunks, created_at, completed_at
		FROM backups WHERE id = ?
	`, id)
	var b Backup
	err := row.Scan(&b.ID, &b.SourcePath, &b.Status, &b.TotalFiles, &b.TotalBytes, &b.TotalChunks, &b.DedupChunks, &b.CreatedAt, &b.CompletedAt)
	return b, err
}

func (q *Queries) ListBackups(ctx context.Context) ([]Backup, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, source_path, status, total_files, total_bytes, total_chunks, dedup_chunks, created_at, completed_at
		FROM backups ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Backup
	for rows.Next() {
		var b Backup
		if err := rows.Scan(&b.ID, &b.SourcePath, &b.Status, &b.TotalFiles, &b.TotalBytes, &b.TotalChunks, &b.DedupChunks, &b.CreatedAt, &b.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type UpdateBackupTotalsParams struct {
	ID          string
	TotalFiles  int64
	TotalBytes  int64
	TotalChunks int64
	DedupChunks int64
}

func (q *Queries) UpdateBackupTotals(ctx context.Context, arg UpdateBackupTotalsParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE backups SET total_files = ?, total_bytes = ?, total_chunks = ?, dedup_chunks = ?
		WHERE id = ?
	`, arg.TotalFiles, arg.TotalBytes, arg.TotalChunks, arg.DedupChunks, arg.ID)
	return err
}

type FinishBackupParams struct {
	ID     string
	Status string
}

func (q *Queries) FinishBackup(ctx context.Context, arg FinishBackupParams) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE backups SET status = ?, completed_at = datetime('now') WHERE id = ?
	`, arg.Status, arg.ID)
	return err
}

func (q *Queries) DeleteBackup(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM backups WHERE id = ?`, id)
	return err
}

// BackupFile queries

type InsertBackupFileParams struct {
	BackupID string
	Path     string
	Size     int64
	Mtime    sql.NullString
	Mode     sql.NullInt64
	Hash     string
}

func (q *Queries) InsertBackupFile(ctx context.Context, arg InsertBackupFileParams) (BackupFile, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO backup_files (backup_id, path, size, mtime, mode, hash)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, backup_id, path, size, mtime, mode, hash, chunk_count
	`, arg.BackupID, arg.Path, arg.Size, arg.Mtime, arg.Mode, arg.Hash)
	var f BackupFile
	err := row.Scan(&f.ID, &f.BackupID, &f.Path, &f.Size, &f.Mtime, &f.Mode, &f.Hash, &f.ChunkCount)
	return f, err
}

func (q *Queries) SetBackupFileChunkCount(ctx context.Context, id int64, count int64) error {
	_, err := q.db.ExecContext(ctx, `UPDATE backup_files SET chunk_count = ? WHERE id = ?`, count, id)
	return err
}

func (q *Queries) GetBackupFilesByBackupID(ctx context.Context, backupID string) ([]BackupFile, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, backup_id, path, size, mtime, mode, hash, chunk_count
		FROM backup_files WHERE backup_id = ? ORDER BY path
	`, backupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BackupFile
	for rows.Next() {
		var f BackupFile
		if err := rows.Scan(&f.ID, &f.BackupID, &f.Path, &f.Size, &f.Mtime, &f.Mode, &f.Hash, &f.ChunkCount); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (q *Queries) GetBackupFileByPath(ctx context.Context, backupID, path string) (BackupFile, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, backup_id, path, size, mtime, mode, hash, chunk_count
		FROM backup_files WHERE backup_id = ? AND path = ?
	`, backupID, path)
	var f BackupFile
	err := row.Scan(&f.ID, &f.BackupID, &f.Path, &f.Size, &f.Mtime, &f.Mode, &f.Hash, &f.ChunkCount)
	return f, err
}

// Chunk queries

type InsertChunkParams struct {
	Hash           string
	Nonce          []byte
	KeyID          string
	ProviderID     int64
	StorageKey     string
	SizePlain      int64
	SizeEncrypted  int64
	SizeCompressed sql.NullInt64
}

func (q *Queries) InsertChunk(ctx context.Context, arg InsertChunkParams) (Chunk, error) {
	row := q.db.QueryRowContext(ctx, `
		INSERT INTO chunks (hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted, size_compressed, ref_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		RETURNING hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted, size_compressed, ref_count, created_at
	`, arg.Hash, arg.Nonce, arg.KeyID, arg.ProviderID, arg.StorageKey, arg.SizePlain, arg.SizeEncrypted, arg.SizeCompressed)
	var c Chunk
	err := row.Scan(&c.Hash, &c.Nonce, &c.KeyID, &c.ProviderID, &c.StorageKey, &c.SizePlain, &c.SizeEncrypted, &c.SizeCompressed, &c.RefCount, &c.CreatedAt)
	return c, err
}

func (q *Queries) GetChunkByHash(ctx context.Context, hash string) (Chunk, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted, size_compressed, ref_count, created_at
		FROM chunks WHERE hash = ?
	`, hash)
	var c Chunk
	err := row.Scan(&c.Hash, &c.Nonce, &c.KeyID, &c.ProviderID, &c.StorageKey, &c.SizePlain, &c.SizeEncrypted, &c.SizeCompressed, &c.RefCount, &c.CreatedAt)
	return c, err
}

func (q *Queries) IncrementChunkRefCount(ctx context.Context, hash string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE chunks SET ref_count = ref_count + 1 WHERE hash = ?`, hash)
	return err
}

func (q *Queries) DecrementChunkRefCount(ctx context.Context, hash string) error {
	_, err := q.db.ExecContext(ctx, `UPDATE chunks SET ref_count = ref_count - 1 WHERE hash = ? AND ref_count > 0`, hash)
	return err
}

func (q *Queries) ListOrphanChunks(ctx context.Context) ([]Chunk, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted, size_compressed, ref_count, created_at
		FROM chunks WHERE ref_count <= 0
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Hash, &c.Nonce, &c.KeyID, &c.ProviderID, &c.StorageKey, &c.SizePlain, &c.SizeEncrypted, &c.SizeCompressed, &c.RefCount, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteChunk(ctx context.Context, hash string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM chunks WHERE hash = ?`, hash)
	return err
}

func (q *Queries) CountChunks(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`)
	var n int64
	err := row.Scan(&n)
	return n, err
}

func (q *Queries) SumChunkSizes(ctx context.Context) (plain, encrypted int64, err error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(size_plain), 0), COALESCE(SUM(size_encrypted), 0) FROM chunks
	`)
	err = row.Scan(&plain, &encrypted)
	return plain, encrypted, err
}

// FileChunk queries

type InsertFileChunkParams struct {
	FileID     int64
	ChunkHash  string
	ChunkIndex int64
	Offset     int64
}

func (q *Queries) InsertFileChunk(ctx context.Context, arg InsertFileChunkParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO file_chunks (file_id, chunk_hash, chunk_index, offset)
		VALUES (?, ?, ?, ?)
	`, arg.FileID, arg.ChunkHash, arg.ChunkIndex, arg.Offset)
	return err
}

func (q *Queries) GetFileChunksByFileID(ctx context.Context, fileID int64) ([]FileChunk, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, file_id, chunk_hash, chunk_index, offset
		FROM file_chunks WHERE file_id = ? ORDER BY chunk_index
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FileChunk
	for rows.Next() {
		var fc FileChunk
		if err := rows.Scan(&fc.ID, &fc.FileID, &fc.ChunkHash, &fc.ChunkIndex, &fc.Offset); err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteFileChunksByFileID(ctx context.Context, fileID int64) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM file_chunks WHERE file_id = ?`, fileID)
	return err
}

// BackupLog queries

type InsertBackupLogParams struct {
	BackupID sql.NullString
	Level    string
	Message  string
}

func (q *Queries) InsertBackupLog(ctx context.Context, arg InsertBackupLogParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO backup_logs (backup_id, level, message) VALUES (?, ?, ?)
	`, arg.BackupID, arg.Level, arg.Message)
	return err
}

func (q *Queries) GetBackupLogsByBackupID(ctx context.Context, backupID string) ([]BackupLog, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, backup_id, level, message, created_at
		FROM backup_logs WHERE backup_id = ? ORDER BY id
	`, backupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BackupLog
	for rows.Next() {
		var l BackupLog
		if err := rows.Scan(&l.ID, &l.BackupID, &l.Level, &l.Message, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
