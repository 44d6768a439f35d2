package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/copycat-emu/copycat/internal/fsys"
)

// fileVersion is the on-disk format version written by FileStore.
const fileVersion = 1

// fileData is the on-disk JSON format for the file store.
type fileData struct {
	Version int               `json:"version"`
	Data    map[string]string `json:"data"`
}

// FileStore is a file-backed Store. It embeds a MemStore for all lookups
// and adds JSON persistence: load on open, flush on every write.
//
// With [WithLock] the store holds an exclusive advisory lock on
// "<path>.lock" until Close, so a second process driving the same
// computers fails fast with ErrLocked instead of interleaving writes.
type FileStore struct {
	*MemStore
	fs   fsys.FS
	path string
	lock *flock.Flock

	// saveMu serializes save so the shared temp file is never written by
	// two callers and the last rename always carries the newest snapshot.
	saveMu sync.Mutex
}

// FileOption configures OpenFileStore.
type FileOption func(*fileOptions)

type fileOptions struct {
	lock bool
}

// WithLock makes OpenFileStore take an exclusive lock next to the store
// file. The lock file lives on the real filesystem regardless of fs.
func WithLock() FileOption {
	return func(o *fileOptions) { o.lock = true }
}

// OpenFileStore opens or creates a file-backed store at path. All store
// file I/O goes through fs for testability. A missing file starts empty;
// parent directories are created as needed.
func OpenFileStore(fs fsys.FS, path string, opts ...FileOption) (*FileStore, error) {
	var o fileOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("opening file store: %w", err)
	}

	var lock *flock.Flock
	if o.lock {
		lock = flock.New(path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("opening file store: locking %s: %w", path, err)
		}
		if !locked {
			return nil, fmt.Errorf("opening file store %s: %w", path, ErrLocked)
		}
	}

	mem, err := loadFileData(fs, path)
	if err != nil {
		if lock != nil {
			lock.Unlock() //nolint:errcheck // releasing after failed open
		}
		return nil, err
	}
	return &FileStore{MemStore: mem, fs: fs, path: path, lock: lock}, nil
}

func loadFileData(fs fsys.FS, path string) (*MemStore, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMemStore(), nil
		}
		return nil, fmt.Errorf("opening file store: %w", err)
	}
	if len(data) == 0 {
		return NewMemStore(), nil
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, fmt.Errorf("opening file store %s: %w", path, err)
	}
	if fd.Version > fileVersion {
		return nil, fmt.Errorf("opening file store %s: unsupported version %d", path, fd.Version)
	}
	return NewMemStoreFrom(fd.Data), nil
}

// Path returns the store file path.
func (fs *FileStore) Path() string {
	return fs.path
}

// Set delegates to MemStore.Set and flushes to disk.
func (fs *FileStore) Set(key, value string) error {
	if err := fs.MemStore.Set(key, value); err != nil {
		return err
	}
	return fs.save()
}

// Remove delegates to MemStore.Remove and flushes to disk.
func (fs *FileStore) Remove(key string) error {
	if err := fs.MemStore.Remove(key); err != nil {
		return err
	}
	return fs.save()
}

// Close releases the lock (if held) and closes the store.
func (fs *FileStore) Close() error {
	if err := fs.MemStore.Close(); err != nil {
		return err
	}
	if fs.lock != nil {
		if err := fs.lock.Unlock(); err != nil {
			return fmt.Errorf("closing file store: %w", err)
		}
	}
	return nil
}

// save writes the full store state to disk atomically (temp file + rename).
func (fs *FileStore) save() error {
	fs.saveMu.Lock()
	defer fs.saveMu.Unlock()

	fs.mu.Lock()
	snap := fs.snapshot()
	fs.mu.Unlock()

	data, err := json.MarshalIndent(fileData{Version: fileVersion, Data: snap}, "", "  ")
	if err != nil {
		return fmt.Errorf("saving file store: %w", err)
	}

	tmp := fs.path + ".tmp"
	if err := fs.fs.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("saving file store: %w", err)
	}
	if err := fs.fs.Rename(tmp, fs.path); err != nil {
		return fmt.Errorf("saving file store: %w", err)
	}
	return nil
}
