package providers

import (
	"context"
	"testing"
)

func TestLocal_UploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()
	provider, err := NewLocal("test-local", t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	ctx := context.Background()

	data := []byte("encrypted chunk data here")
	key := "enigma/chunks/de/deadbeef"

	if err := provider.Put(ctx, key, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	exists, size, err := provider.Head(ctx, key)
	if err != nil || !exists {
		t.Fatalf("Head() = %v, %v, %v, want exists", exists, size, err)
	}
	if size != int64(len(data)) {
		t.Fatalf("Head() size = %d, want %d", size, len(data))
	}

	got, err := provider.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("Get() = %q, want %q", got, data)
	}

	if err := provider.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	exists, _, err = provider.Head(ctx, key)
	if err != nil || exists {
		t.Fatalf("Head() after delete = %v, %v, want not exists", exists, err)
	}
}

func TestLocal_GetMissingKeyFails(t *testing.T) {
	t.Parallel()
	provider, err := NewLocal("test-local", t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	if _, err := provider.Get(context.Background(), "enigma/chunks/no/nope"); err == nil {
		t.Fatal("Get() on missing key succeeded, want error")
	}
}

func TestLocal_TestConnection(t *testing.T) {
	t.Parallel()
	provider, err := NewLocal("test-local", t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	if err := provider.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection() error = %v", err)
	}
}

func TestLocal_List(t *testing.T) {
	t.Parallel()
	provider, err := NewLocal("test-local", t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	ctx := context.Background()
	keys := []string{
		"enigma/chunks/aa/aaaa",
		"enigma/chunks/bb/bbbb",
	}
	for _, k := range keys {
		if err := provider.Put(ctx, k, []byte("x")); err != nil {
			t.Fatalf("Put(%q) error = %v", k, err)
		}
	}

	got, err := provider.List(ctx, "enigma/chunks")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("List() returned %v, want %v entries", got, len(keys))
	}
}
