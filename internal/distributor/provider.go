// Package distributor selects which configured storage backend a chunk
// lands on (component C6) and defines the Provider contract every
// backend implements. Grounded in original_source's
// enigma-storage/src/provider.rs (StorageProvider trait) and
// enigma-core/src/distributor/mod.rs (Distributor placement strategies).
package distributor

import "context"

// Provider is one storage backend a chunk's encrypted bytes can be put
// on: local disk, S3-compatible object storage, GCS, or (stubbed) Azure
// Blob. Every method is content-addressed by storage key, not by chunk
// hash directly, so the caller controls the key layout
// (enigma/chunks/<hash[:2]>/<hash>).
type Provider interface {
	// Name identifies this provider for logging and manifest provider rows.
	Name() string

	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Head(ctx context.Context, key string) (exists bool, size int64, err error)
	List(ctx context.Context, prefix string) ([]string, error)

	// TestConnection verifies the provider is reachable and configured
	// correctly.
	TestConnection(ctx context.Context) error
}
