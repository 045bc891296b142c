package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

func TestUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	tables := []string{"providers", "backups", "backup_files", "chunks", "file_chunks", "backup_logs", "schema_migrations"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckStatus_FreshDatabaseIsClassifiedConfigInvalid(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	err := CheckStatus(db)
	if err == nil {
		t.Fatal("CheckStatus() expected error for fresh database, got nil")
	}
	var classified *enigmaerr.Error
	if !errors.As(err, &classified) {
		t.Fatalf("CheckStatus() error = %v, want an *enigmaerr.Error", err)
	}
	if classified.Kind != enigmaerr.ConfigInvalid {
		t.Errorf("CheckStatus() error Kind = %s, want ConfigInvalid", classified.Kind)
	}
}

func TestCheckStatus_AfterUp(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after Up() returned error: %v", err)
	}
}

func TestVersion_ReportsCurrentAndLatestWithoutFailing(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	// Before any migration, Version should still succeed (unlike
	// CheckStatus) and report the database as behind the latest.
	current, latest, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() on fresh database failed: %v", err)
	}
	if dirty {
		t.Error("fresh database reported dirty")
	}
	if current != 0 || latest == 0 {
		t.Errorf("Version() = current %d, latest %d, want current 0 and latest > 0", current, latest)
	}

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}
	current, latest, dirty, err = Version(db)
	if err != nil {
		t.Fatalf("Version() after Up() failed: %v", err)
	}
	if dirty {
		t.Error("database reported dirty after a clean Up()")
	}
	if current != latest {
		t.Errorf("Version() after Up() = current %d, latest %d, want equal", current, latest)
	}
}

func TestUp_Idempotent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("first Up() failed: %v", err)
	}
	if err := Up(db); err != nil {
		t.Errorf("second Up() failed: %v (should be idempotent)", err)
	}
	if err := CheckStatus(db); err != nil {
		t.Errorf("CheckStatus() after double Up() returned error: %v", err)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	_, err := db.Exec(`
		INSERT INTO backup_files (backup_id, path, size, hash)
		VALUES ('no-such-backup', 'test.txt', 10, 'deadbeef')
	`)
	if err == nil {
		t.Error("expected foreign key constraint violation, but insert succeeded")
	}
}

func TestSchema_ChunkRefCountDefaultsToOne(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO providers (name, type, bucket) VALUES ('local', 'local', '/data')`); err != nil {
		t.Fatalf("insert provider: %v", err)
	}
	if _, err := db.Exec(`
		INSERT INTO chunks (hash, nonce, key_id, provider_id, storage_key, size_plain, size_encrypted)
		VALUES ('h1', x'00', 'key-1', 1, 'chunks/h1', 10, 26)
	`); err != nil {
		t.Fatalf("insert chunk: %v", err)
	}

	var refCount int
	if err := db.QueryRow("SELECT ref_count FROM chunks WHERE hash = 'h1'").Scan(&refCount); err != nil {
		t.Fatalf("query ref_count: %v", err)
	}
	if refCount != 1 {
		t.Errorf("ref_count = %d, want 1", refCount)
	}
}

func TestSchema_ProviderNameUnique(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()

	if err := Up(db); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO providers (name, type, bucket) VALUES ('local', 'local', '/data')`); err != nil {
		t.Fatalf("insert first provider: %v", err)
	}
	_, err := db.Exec(`INSERT INTO providers (name, type, bucket) VALUES ('local', 's3', 'other-bucket')`)
	if err == nil {
		t.Error("expected unique constraint violation for duplicate provider name, but insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	return db
}
