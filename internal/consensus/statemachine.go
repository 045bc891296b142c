package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/enigma-backup/enigma/internal/manifest"
)

// StateMachine applies committed Commands to a manifest.Manifest,
// one at a time, caching each RequestID's Result so a replayed log
// entry (after a crash, or a resubmitted client request) returns the
// original outcome rather than mutating the manifest twice. Grounded
// in original_source's EnigmaStateMachine (apply_request's lock-then-
// dispatch shape), adapted from its Rust enum match to a Go type switch.
type StateMachine struct {
	mf manifest.Manifest

	mu      sync.Mutex
	applied map[string]Result
}

// NewStateMachine wraps mf as a replicated state machine.
func NewStateMachine(mf manifest.Manifest) *StateMachine {
	return &StateMachine{mf: mf, applied: make(map[string]Result)}
}

// Apply runs cmd against the manifest exactly once per RequestID.
func (s *StateMachine) Apply(ctx context.Context, cmd Command) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.applied[cmd.RequestID]; ok {
		return cached
	}
	result := s.dispatch(ctx, cmd)
	s.applied[cmd.RequestID] = result
	return result
}

func errResult(err error) Result { return Result{Error: err.Error()} }

func okResult(v any) Result {
	data, err := json.Marshal(v)
	if err != nil {
		return errResult(err)
	}
	return Result{Payload: data}
}

func (s *StateMachine) dispatch(ctx context.Context, cmd Command) Result {
	switch cmd.Type {
	case CmdRegisterProvider:
		var p RegisterProviderPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		registered, err := s.mf.RegisterProvider(ctx, manifest.Provider{
			Name: p.Name, Type: p.Type, Bucket: p.Bucket, Region: p.Region, Weight: p.Weight,
		})
		if err != nil {
			return errResult(err)
		}
		return okResult(registered)

	case CmdCreateBackup:
		var p CreateBackupPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		b, err := s.mf.CreateBackup(ctx, p.ID, p.SourcePath)
		if err != nil {
			return errResult(err)
		}
		return okResult(b)

	case CmdFinishBackup:
		var p FinishBackupPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		if err := s.mf.FinishBackup(ctx, p.ID, p.Status); err != nil {
			return errResult(err)
		}
		return okResult(struct{}{})

	case CmdDeleteBackup:
		var p DeleteBackupPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		if err := s.mf.DeleteBackup(ctx, p.ID); err != nil {
			return errResult(err)
		}
		return okResult(struct{}{})

	case CmdPutChunk:
		var p PutChunkPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		wasNew, err := s.mf.PutChunk(ctx, manifest.Chunk{
			Hash:           p.Hash,
			Nonce:          p.Nonce,
			KeyID:          p.KeyID,
			ProviderID:     p.ProviderID,
			StorageKey:     p.StorageKey,
			SizePlain:      p.SizePlain,
			SizeEncrypted:  p.SizeEncrypted,
			SizeCompressed: p.SizeCompressed,
		})
		if err != nil {
			return errResult(err)
		}
		return okResult(struct {
			WasNew bool `json:"was_new"`
		}{wasNew})

	case CmdDecrementChunkRefCount:
		var p DecrementChunkRefCountPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		if err := s.mf.DecrementChunkRefCount(ctx, p.Hash); err != nil {
			return errResult(err)
		}
		return okResult(struct{}{})

	case CmdDeleteChunkRow:
		var p DeleteChunkRowPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		if err := s.mf.DeleteChunkRow(ctx, p.Hash); err != nil {
			return errResult(err)
		}
		return okResult(struct{}{})

	case CmdAddFileChunk:
		var p AddFileChunkPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		chunks := make([]manifest.FileChunk, len(p.Chunks))
		for i, c := range p.Chunks {
			chunks[i] = manifest.FileChunk{ChunkHash: c.ChunkHash, ChunkIndex: c.ChunkIndex, Offset: c.Offset}
		}
		f, err := s.mf.AddFileChunk(ctx, p.BackupID, p.Path, p.Size, p.Mtime, p.Mode, p.Hash, chunks, p.DedupCount)
		if err != nil {
			return errResult(err)
		}
		return okResult(f)

	case CmdLog:
		var p LogPayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return errResult(err)
		}
		if err := s.mf.Log(ctx, p.BackupID, p.Level, p.Message); err != nil {
			return errResult(err)
		}
		return okResult(struct{}{})

	default:
		return errResult(fmt.Errorf("consensus: unknown command type %q", cmd.Type))
	}
}
