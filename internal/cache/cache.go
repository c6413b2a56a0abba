// SPDX-License-Identifier: MPL-2.0

// Package cache amortizes stack enumeration across invocations. Each
// stack gets one binary snapshot file keyed by a hash of its root
// path and guarded by a metadata fingerprint: when the fingerprint of
// the on-disk tree matches the one in the header, the snapshot is
// loaded instead of walking ups_db again.
//
// Every failure mode here is non-fatal. A missing, corrupt, locked, or
// unwritable cache degrades to direct enumeration with a debug log —
// a stampede of concurrent shells must never block or break on the
// cache.
package cache

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/natelust/reups/internal/stack"
)

const cacheDirName = "reups"

// Store manages the cache files for any number of stacks under one
// cache directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. An empty dir selects the
// user cache directory, falling back to the system temp directory
// (shared by all processes) when no user cache location exists.
func NewStore(dir string) *Store {
	if dir == "" {
		if userDir, err := os.UserCacheDir(); err == nil {
			dir = userDir
		} else {
			dir = os.TempDir()
		}
	}
	return &Store{dir: filepath.Join(dir, cacheDirName)}
}

// Path returns the cache file path for a stack root.
func (s *Store) Path(root string) string {
	return filepath.Join(s.dir, stack.RootHash(root)+".cache")
}

// Load returns the cached index for root when the cache file exists,
// parses cleanly, and carries the given fingerprint. Any other outcome
// is a miss.
func (s *Store) Load(root string, fingerprint uint64) (*stack.Index, bool) {
	path := s.Path(root)

	lock, ok := acquireLock(path, lockShared)
	if !ok {
		slog.Debug("cache read lock unavailable, skipping cache", "path", path)
		return nil, false
	}
	defer lock.release()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("cache unreadable", "path", path, "error", err)
		}
		return nil, false
	}
	ix, cachedFingerprint, err := Decode(data)
	if err != nil {
		slog.Debug("cache corrupt, will rewrite", "path", path, "error", err)
		return nil, false
	}
	if cachedFingerprint != fingerprint {
		slog.Debug("cache stale", "path", path,
			"cached", cachedFingerprint, "current", fingerprint)
		return nil, false
	}
	return ix, true
}

// Save writes the index snapshot for root. Failures are logged at
// debug level and otherwise ignored; a concurrent writer losing the
// race is fine because any winning cache is a valid snapshot.
func (s *Store) Save(root string, ix *stack.Index, fingerprint uint64) {
	path := s.Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		// Unwritable cache location: fall back to a reups directory
		// under the system temp directory. That directory is shared by
		// every process; it is not private to this one.
		fallback := filepath.Join(os.TempDir(), cacheDirName)
		if fbErr := os.MkdirAll(fallback, 0o755); fbErr != nil {
			slog.Debug("cannot create cache directory", "path", path, "error", err)
			return
		}
		slog.Debug("cache directory unwritable, using temp fallback",
			"path", path, "fallback", fallback)
		s.dir = fallback
		path = s.Path(root)
	}

	lock, ok := acquireLock(path, lockExclusive)
	if !ok {
		slog.Debug("cache write lock unavailable, skipping write", "path", path)
		return
	}
	defer lock.release()

	// Write to a sibling temp file and rename so no partial cache is
	// ever observable, even if the process dies mid-write.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		slog.Debug("cannot create cache temp file", "path", path, "error", err)
		return
	}
	tmpName := tmp.Name()
	data := Encode(ix, fingerprint)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		slog.Debug("cache write failed", "path", path, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		slog.Debug("cache close failed", "path", path, "error", err)
		return
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		slog.Debug("cache rename failed", "path", path, "error", err)
	}
}

// Open produces the index for a stack root, consulting the cache when
// store is non-nil. On a miss the stack is enumerated and the cache
// rewritten.
func Open(root string, store *Store) (*stack.Index, error) {
	if store == nil {
		return stack.Read(root)
	}

	fingerprint, err := Fingerprint(root)
	if err != nil {
		// No fingerprint means no cache coherence; fall through to a
		// plain read so the real error (if any) surfaces from there.
		slog.Debug("fingerprint failed, bypassing cache", "stack", root, "error", err)
		return stack.Read(root)
	}

	if ix, ok := store.Load(root, fingerprint); ok {
		slog.Debug("cache hit", "stack", root)
		return ix, nil
	}

	ix, err := stack.Read(root)
	if err != nil {
		return nil, err
	}
	store.Save(root, ix, fingerprint)
	return ix, nil
}
