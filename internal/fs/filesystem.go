// Package fs discovers the files a backup run covers: walking a source
// tree, applying ignore patterns, and reporting the metadata (size,
// mtime, mode) the manifest records per file. Grounded in the teacher's
// internal/fs/filesystem.go (FindFiles walking logic) and
// internal/bt/filesystem.go, generalized to run standalone rather than
// through the old tracked-directory/staging model.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Entry is one regular file discovered under a backup source path.
type Entry struct {
	AbsPath string
	RelPath string
	Size    int64
	ModTime time.Time
	Mode    os.FileMode
}

// Walk discovers every regular file under root, in lexical order,
// skipping anything matched by ignore. Symlinks, devices, sockets, and
// named pipes are skipped rather than followed or backed up.
func Walk(root string, ignore *IgnoreMatcher) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if d.IsDir() {
			if rel != "." && ignore != nil && ignore.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ignore != nil && ignore.Match(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		entries = append(entries, Entry{
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return entries, nil
}
