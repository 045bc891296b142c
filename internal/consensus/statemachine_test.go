package consensus

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/enigma-backup/enigma/internal/manifest"
)

func testManifest(t *testing.T) *manifest.SQLiteManifest {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.db")
	mf, err := manifest.Open(path)
	if err != nil {
		t.Fatalf("manifest.Open() error = %v", err)
	}
	t.Cleanup(func() { mf.Close() })
	return mf
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func TestStateMachine_AppliesRegisterProvider(t *testing.T) {
	sm := NewStateMachine(testManifest(t))

	cmd := Command{
		RequestID: "req-1",
		Type:      CmdRegisterProvider,
		Payload: mustPayload(t, RegisterProviderPayload{
			Name: "local", Type: "Local", Bucket: "/tmp/store", Weight: 1,
		}),
	}

	result := sm.Apply(context.Background(), cmd)
	if result.Error != "" {
		t.Fatalf("Apply() error = %s", result.Error)
	}

	var provider manifest.Provider
	if err := json.Unmarshal(result.Payload, &provider); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if provider.Name != "local" {
		t.Errorf("provider.Name = %q, want %q", provider.Name, "local")
	}
}

func TestStateMachine_ReplayIsIdempotent(t *testing.T) {
	sm := NewStateMachine(testManifest(t))

	cmd := Command{
		RequestID: "req-dup",
		Type:      CmdCreateBackup,
		Payload:   mustPayload(t, CreateBackupPayload{ID: "backup-1", SourcePath: "/data"}),
	}

	first := sm.Apply(context.Background(), cmd)
	second := sm.Apply(context.Background(), cmd)

	if string(first.Payload) != string(second.Payload) {
		t.Errorf("replayed command returned a different result: %s vs %s", first.Payload, second.Payload)
	}

	mf := sm.mf
	backups, err := mf.ListBackups(context.Background())
	if err != nil {
		t.Fatalf("ListBackups() error = %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("len(backups) = %d, want 1 (replay must not create a second row)", len(backups))
	}
}

func TestStateMachine_UnknownCommandType(t *testing.T) {
	sm := NewStateMachine(testManifest(t))
	result := sm.Apply(context.Background(), Command{RequestID: "req-x", Type: "Bogus"})
	if result.Error == "" {
		t.Fatal("Apply() with unknown command type should return an error result")
	}
}
