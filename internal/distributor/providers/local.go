// Package providers holds the concrete distributor.Provider
// implementations: local filesystem, S3-compatible, GCS, and a stubbed
// Azure Blob backend.
package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/enigma-backup/enigma/internal/enigmaerr"
)

// Local stores chunks as plain files under a root directory, keyed by
// the caller-supplied storage key (enigma/chunks/<hash[:2]>/<hash>).
// Writes are atomic: data lands in a temp file in the same directory as
// the destination and is renamed into place only once fully written and
// verified, following the same pattern the teacher's filesystem vault
// uses for its content-addressed store.
type Local struct {
	name string
	root string
}

// NewLocal creates a Local provider rooted at root, creating the
// directory if it does not already exist.
func NewLocal(name, root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, enigmaerr.New(enigmaerr.StoragePermanent, "create local provider root", err)
	}
	return &Local{name: name, root: root}, nil
}

func (l *Local) Name() string { return l.name }

func (l *Local) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *Local) Put(ctx context.Context, key string, data []byte) error {
	dest := l.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return enigmaerr.New(enigmaerr.StoragePermanent, "create parent directory", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return enigmaerr.New(enigmaerr.StorageTransient, "create temp file", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	n, err := tmp.Write(data)
	if err != nil {
		tmp.Close()
		return enigmaerr.New(enigmaerr.StorageTransient, "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return enigmaerr.New(enigmaerr.StorageTransient, "close temp file", err)
	}
	if n != len(data) {
		return enigmaerr.New(enigmaerr.StorageTransient, "short write to temp file", nil)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return enigmaerr.New(enigmaerr.StorageTransient, "rename temp file into place", err)
	}
	success = true
	return nil
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(l.path(key))
	if os.IsNotExist(err) {
		return nil, enigmaerr.New(enigmaerr.NotFound, fmt.Sprintf("key %q not found", key), err)
	}
	if err != nil {
		return nil, enigmaerr.New(enigmaerr.StorageTransient, "read file", err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	err := os.Remove(l.path(key))
	if err != nil && !os.IsNotExist(err) {
		return enigmaerr.New(enigmaerr.StorageTransient, "delete file", err)
	}
	return nil
}

func (l *Local) Head(ctx context.Context, key string) (bool, int64, error) {
	info, err := os.Stat(l.path(key))
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, enigmaerr.New(enigmaerr.StorageTransient, "stat file", err)
	}
	return true, info.Size(), nil
}

func (l *Local) List(ctx context.Context, prefix string) ([]string, error) {
	base := l.path(prefix)
	var keys []string
	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !strings.Contains(err.Error(), "no such file") {
		return nil, enigmaerr.New(enigmaerr.StorageTransient, "walk local provider root", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *Local) TestConnection(ctx context.Context) error {
	info, err := os.Stat(l.root)
	if err != nil {
		return enigmaerr.New(enigmaerr.StoragePermanent, "local provider root unreachable", err)
	}
	if !info.IsDir() {
		return enigmaerr.New(enigmaerr.ConfigInvalid, "local provider root is not a directory", nil)
	}
	return nil
}
