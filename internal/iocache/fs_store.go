package iocache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/schema"
)

// tempPrefix marks in-flight writes so listings never report them.
const tempPrefix = ".tmp-"

// FSStore keeps each blob as a file under a root directory.
// Keys map to relative slash-separated paths.
type FSStore struct {
	root string
}

var _ contract.BlobStore = &FSStore{} // Compile-time check

// NewFSStore returns a filesystem store rooted at root, creating it if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %q: %w", root, err)
	}
	return &FSStore{root: root}, nil
}

// Get reads the file for key.
func (s *FSStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", contract.ErrBlobNotFound, key)
	}
	return data, err
}

// Put writes value to a temporary file in the target directory and renames it
// into place, so readers see either no file or the complete file.
func (s *FSStore) Put(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, p); err != nil {
		cleanup()
		return err
	}
	return nil
}

// Exists reports whether the file for key exists.
func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes the file for key.
func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List walks the directory part of prefix and returns matching keys, sorted.
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	start := s.root
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		start = filepath.Join(s.root, filepath.FromSlash(prefix[:i]))
	}

	var keys []string
	err := s.walk(start, func(key string, _ fs.FileInfo) {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for the filesystem store.
func (s *FSStore) Close() error {
	return nil
}

// GetStatus returns status information about the cached files.
func (s *FSStore) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{
		Backend:   string(schema.FilesystemBackend),
		Connected: true,
	}
	err := s.walk(s.root, func(_ string, info fs.FileInfo) {
		status.TotalEntries++
		status.TableSizeBytes += info.Size()
		mod := info.ModTime()
		if status.LastEntryTime.IsZero() || mod.After(status.LastEntryTime) {
			status.LastEntryTime = mod
		}
		if status.OldestEntryTime.IsZero() || mod.Before(status.OldestEntryTime) {
			status.OldestEntryTime = mod
		}
	})
	return status, err
}

// walk visits every committed blob below start.
func (s *FSStore) walk(start string, visit func(key string, info fs.FileInfo)) error {
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		visit(filepath.ToSlash(rel), info)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// path maps key to a file below root, rejecting keys that escape it.
func (s *FSStore) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// validateKey rejects empty, absolute and parent-relative keys.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("invalid cache key %q", key)
	}
	if clean := path.Clean(key); clean != key || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("invalid cache key %q", key)
	}
	return nil
}
