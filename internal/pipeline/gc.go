package pipeline

import (
	"context"
	"fmt"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
	"github.com/enigma-backup/enigma/internal/manifest"
)

// GCResult reports what garbage collection found and reclaimed.
type GCResult struct {
	Orphans  []manifest.Chunk
	Deleted  []string // hashes whose remote object and manifest row were both removed
	DryRun   bool
	Failures []GCFailure
}

// GCFailure names one orphan that failed to reclaim and why.
type GCFailure struct {
	Hash string
	Err  error
}

// GC reclaims chunks with refcount = 0. Two-phase: first it snapshots
// every orphan hash, then for each one deletes the remote object before
// removing the manifest row. A crash between those two steps leaves a
// harmless unreferenced remote object, retried by the next GC run.
// dryRun reports the snapshot without deleting anything.
func (e *Engine) GC(ctx context.Context, dryRun bool) (GCResult, error) {
	orphans, err := e.manifest.ListOrphanChunks(ctx)
	if err != nil {
		return GCResult{}, fmt.Errorf("pipeline: list orphan chunks: %w", err)
	}

	result := GCResult{Orphans: orphans, DryRun: dryRun}
	if dryRun {
		return result, nil
	}

	for _, c := range orphans {
		if err := e.reclaimChunk(ctx, c); err != nil {
			result.Failures = append(result.Failures, GCFailure{Hash: c.Hash, Err: err})
			e.log.Warn("gc failed to reclaim chunk", "hash", c.Hash, "error", err)
			continue
		}
		result.Deleted = append(result.Deleted, c.Hash)
	}
	return result, nil
}

// DeleteBackup removes backupID's files, chunk edges, and refcounts in
// one manifest transaction (manifest.SQLiteManifest.DeleteBackup). It
// never deletes remote objects directly — chunks that drop to refcount
// 0 become orphans, reclaimed by a later GC run.
func (e *Engine) DeleteBackup(ctx context.Context, backupID string) error {
	if err := e.manifest.DeleteBackup(ctx, backupID); err != nil {
		return fmt.Errorf("pipeline: delete backup %s: %w", backupID, err)
	}
	return nil
}

func (e *Engine) reclaimChunk(ctx context.Context, c manifest.Chunk) error {
	entry, ok := e.dist.ByID(c.ProviderID)
	if !ok {
		return enigmaerr.New(enigmaerr.ConfigInvalid, "orphan chunk references unknown provider", nil)
	}

	dctx, cancel := e.withTimeout(ctx)
	err := entry.Provider.Delete(dctx, c.StorageKey)
	cancel()
	if err != nil {
		return enigmaerr.New(enigmaerr.StorageTransient, "delete remote object for chunk "+c.Hash, err)
	}

	if err := e.manifest.DeleteChunkRow(ctx, c.Hash); err != nil {
		return fmt.Errorf("delete manifest row: %w", err)
	}
	return nil
}
