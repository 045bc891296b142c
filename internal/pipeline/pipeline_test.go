package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/enigma-backup/enigma/internal/chunk"
	"github.com/enigma-backup/enigma/internal/compress"
	"github.com/enigma-backup/enigma/internal/crypto"
	"github.com/enigma-backup/enigma/internal/distributor"
	"github.com/enigma-backup/enigma/internal/distributor/providers"
	"github.com/enigma-backup/enigma/internal/manifest"
	"github.com/enigma-backup/enigma/internal/testutil"
)

// testEngine builds an Engine backed by a real SQLite manifest, a real
// local-disk provider, a real key provider, and a small fixed chunk
// size so multi-chunk files are exercised without large fixtures.
func testEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()

	m, err := manifest.Open(filepath.Join(dir, "manifest.db"))
	if err != nil {
		t.Fatalf("manifest.Open() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })

	provRow, err := m.RegisterProvider(context.Background(), manifest.Provider{
		Name: "local", Type: "local", Weight: 1,
	})
	if err != nil {
		t.Fatalf("RegisterProvider() error = %v", err)
	}

	localProvider, err := providers.NewLocal("local", filepath.Join(dir, "store"))
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}

	dist, err := distributor.NewRoundRobin([]distributor.Entry{
		{ID: provRow.ID, Provider: localProvider, Weight: 1},
	})
	if err != nil {
		t.Fatalf("NewRoundRobin() error = %v", err)
	}

	keys, err := crypto.CreateLocal(filepath.Join(dir, "keystore"), []byte("test passphrase"))
	if err != nil {
		t.Fatalf("CreateLocal() error = %v", err)
	}
	t.Cleanup(func() { keys.Close() })

	chunker := chunk.NewFixedEngine(8)
	compressor := compress.New(true, 3)

	engine := NewEngine(Config{
		Manifest:    m,
		Distributor: dist,
		Keys:        keys,
		Chunker:     chunker,
		Compressor:  compressor,
		Clock:       testutil.FixedClock(),
		IDs:         testutil.NewStubIDGenerator(),
		Concurrency: 2,
	})
	return engine, dir
}

func writeSource(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	src := filepath.Join(dir, "source")
	for name, content := range files {
		p := filepath.Join(src, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("MkdirAll() error = %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return src
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	t.Parallel()
	engine, dir := testEngine(t)
	src := writeSource(t, dir, map[string]string{
		"a.txt":     "hello world, this spans more than one fixed chunk",
		"sub/b.txt": "nested file content",
		"empty.txt": "",
	})

	backup, err := engine.Backup(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if backup.Status != manifest.StatusCompleted {
		t.Fatalf("backup status = %s, want completed", backup.Status)
	}
	if backup.TotalFiles != 3 {
		t.Fatalf("backup total files = %d, want 3", backup.TotalFiles)
	}

	destDir := filepath.Join(dir, "restored")
	restored, err := engine.Restore(context.Background(), backup.ID, destDir, RestoreOptions{})
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(restored) != 3 {
		t.Fatalf("Restore() restored %d files, want 3", len(restored))
	}

	for name, want := range map[string]string{
		"a.txt":     "hello world, this spans more than one fixed chunk",
		"sub/b.txt": "nested file content",
		"empty.txt": "",
	} {
		got, err := os.ReadFile(filepath.Join(destDir, filepath.FromSlash(name)))
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", name, err)
		}
		if !bytes.Equal(got, []byte(want)) {
			t.Errorf("restored %s = %q, want %q", name, got, want)
		}
	}
}

func TestBackup_DeduplicatesIdenticalFiles(t *testing.T) {
	t.Parallel()
	engine, dir := testEngine(t)
	content := "identical content in both files, long enough to matter"
	src := writeSource(t, dir, map[string]string{
		"one.txt": content,
		"two.txt": content,
	})

	backup, err := engine.Backup(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if backup.DedupChunks == 0 {
		t.Fatal("expected at least one deduplicated chunk for identical files")
	}

	stats, err := engine.manifest.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	chunkCount := stats.ChunkCount
	if chunkCount == 0 {
		t.Fatal("expected at least one chunk row")
	}

	// Only one copy of each distinct chunk should exist in the store,
	// regardless of how many files reference it.
	entries := engine.dist.Entries()
	files, _ := countStoredObjects(t, entries[0].Provider)
	if int64(files) != chunkCount {
		t.Errorf("stored object count = %d, want to match manifest chunk count %d", files, chunkCount)
	}
}

func countStoredObjects(t *testing.T, p distributor.Provider) (int, error) {
	t.Helper()
	keys, err := p.List(context.Background(), "")
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func TestVerify_DetectsTamperedChunk(t *testing.T) {
	t.Parallel()
	engine, dir := testEngine(t)
	src := writeSource(t, dir, map[string]string{
		"a.txt": "some content that gets chunked and stored remotely",
	})

	backup, err := engine.Backup(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	result, err := engine.Verify(context.Background(), backup.ID)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(result.Failures) != 0 {
		t.Fatalf("Verify() on untouched backup found failures: %+v", result.Failures)
	}

	// Corrupt every stored object directly on disk.
	entries := engine.dist.Entries()
	local := entries[0].Provider
	keys, err := local.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	for _, key := range keys {
		data, err := local.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", key, err)
		}
		corrupted := append([]byte(nil), data...)
		corrupted[0] ^= 0xFF
		if err := local.Put(context.Background(), key, corrupted); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}

	result, err = engine.Verify(context.Background(), backup.ID)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(result.Failures) == 0 {
		t.Fatal("Verify() on tampered backup found no failures, want at least one")
	}
}

func TestGC_DryRunDoesNotDelete(t *testing.T) {
	t.Parallel()
	engine, dir := testEngine(t)
	src := writeSource(t, dir, map[string]string{"a.txt": "content to delete later"})

	backup, err := engine.Backup(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if err := engine.DeleteBackup(context.Background(), backup.ID); err != nil {
		t.Fatalf("DeleteBackup() error = %v", err)
	}

	dryResult, err := engine.GC(context.Background(), true)
	if err != nil {
		t.Fatalf("GC(dryRun) error = %v", err)
	}
	if len(dryResult.Orphans) == 0 {
		t.Fatal("expected orphan chunks after deleting the only referencing backup")
	}
	if len(dryResult.Deleted) != 0 {
		t.Fatal("GC(dryRun) deleted chunks, want none")
	}

	stats, err := engine.manifest.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ChunkCount == 0 {
		t.Fatal("dry-run GC should not have removed chunk rows")
	}

	result, err := engine.GC(context.Background(), false)
	if err != nil {
		t.Fatalf("GC() error = %v", err)
	}
	if len(result.Deleted) != len(dryResult.Orphans) {
		t.Fatalf("GC() deleted %d chunks, want %d", len(result.Deleted), len(dryResult.Orphans))
	}

	statsAfter, err := engine.manifest.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if statsAfter.ChunkCount != 0 {
		t.Fatalf("chunk count after GC = %d, want 0", statsAfter.ChunkCount)
	}
}

func TestBackup_FailureMarksBackupFailed(t *testing.T) {
	t.Parallel()
	engine, dir := testEngine(t)
	// A source path that doesn't exist makes the walk fail immediately.
	_, err := engine.Backup(context.Background(), filepath.Join(dir, "does-not-exist"), nil)
	if err == nil {
		t.Fatal("Backup() error = nil, want error for missing source path")
	}

	backups, err := engine.manifest.ListBackups(context.Background())
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(backups) != 1 || backups[0].Status != manifest.StatusFailed {
		t.Fatalf("backups after failed run = %+v, want one with status %s", backups, manifest.StatusFailed)
	}
}
