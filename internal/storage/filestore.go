package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

// FileBackend stores each key as one JSON file in a directory. It serves
// both the durable tier (user data dir) and the scratch tier (temp dir,
// one directory per process).
type FileBackend struct {
	dir  string
	kind service.BackendKind
}

// NewDurableBackend creates the durable file tier rooted in dir.
func NewDurableBackend(dir string) *FileBackend {
	return &FileBackend{dir: dir, kind: service.BackendDurable}
}

// NewScratchBackend creates the process-scoped scratch tier. Its contents
// do not survive the process; each process gets its own directory.
func NewScratchBackend() *FileBackend {
	dir := filepath.Join(os.TempDir(), fmt.Sprintf("packtrack-scratch-%d", os.Getpid()))
	return &FileBackend{dir: dir, kind: service.BackendScratch}
}

// Kind returns the backend tier identifier.
func (f *FileBackend) Kind() service.BackendKind { return f.kind }

// Probe round-trips a set/remove through the directory, the selection
// policy for synchronous stores.
func (f *FileBackend) Probe(ctx context.Context) error {
	if err := f.Set(ctx, probeKey, []byte(`"ok"`)); err != nil {
		return err
	}
	return f.Remove(ctx, probeKey)
}

func (f *FileBackend) path(key string) string {
	// Escaping keeps filenames readable for inspection; the hex suffix
	// disambiguates keys that escape to the same name on
	// case-insensitive filesystems.
	escaped := url.PathEscape(key)
	if len(escaped) > 120 {
		escaped = escaped[:120] + "-" + hex.EncodeToString([]byte(key))[:16]
	}
	return filepath.Join(f.dir, escaped+".json")
}

// Get returns the stored value for key.
func (f *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifyFileError(err)
	}
	return data, true, nil
}

// Set stores value under key atomically via a temp-file rename.
func (f *FileBackend) Set(_ context.Context, key string, value []byte) error {
	if err := os.MkdirAll(f.dir, 0750); err != nil {
		return classifyFileError(err)
	}
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0600); err != nil {
		return classifyFileError(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return classifyFileError(err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (f *FileBackend) Remove(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return classifyFileError(err)
	}
	return nil
}

// Keys lists all stored keys in sorted order.
func (f *FileBackend) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyFileError(err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Clear removes every entry.
func (f *FileBackend) Clear(ctx context.Context) error {
	keys, err := f.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := f.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; files need no teardown.
func (f *FileBackend) Close() error { return nil }

// classifyFileError maps filesystem errors onto the storage error taxonomy.
func classifyFileError(err error) error {
	switch {
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return fmt.Errorf("%w: %v", common.ErrQuotaExceeded, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", common.ErrAccessDenied, err)
	}
	return err
}
