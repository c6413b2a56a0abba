// SPDX-License-Identifier: MPL-2.0

//go:build unix

package cache

import (
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

type lockMode int

const (
	lockShared lockMode = iota
	lockExclusive
)

// fileLock holds an advisory flock on the cache path. The lock file is
// the cache file itself; the kernel releases the flock when the fd
// closes, including on process crash.
type fileLock struct {
	file *os.File
}

// acquireLock takes a non-blocking advisory lock on path: shared for
// readers, exclusive for writers. Failure to acquire — contention or
// any open error other than the file not existing yet under a shared
// request — reports not-ok and the caller degrades to uncached
// operation; concurrent shells must never block on each other.
func acquireLock(path string, mode lockMode) (*fileLock, bool) {
	flags := os.O_RDONLY
	how := unix.LOCK_SH | unix.LOCK_NB
	if mode == lockExclusive {
		flags = os.O_CREATE | os.O_RDWR
		how = unix.LOCK_EX | unix.LOCK_NB
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if mode == lockShared && os.IsNotExist(err) {
			// Nothing to lock; the read will simply miss.
			return &fileLock{}, true
		}
		return nil, false
	}
	if err := unix.Flock(int(f.Fd()), how); err != nil {
		f.Close()
		return nil, false
	}
	return &fileLock{file: f}, true
}

// release unlocks and closes. Safe to call on a lock over a missing
// file and safe to call more than once.
func (l *fileLock) release() {
	if l == nil || l.file == nil {
		return
	}
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		slog.Debug("flock unlock failed", "error", err)
	}
	if err := l.file.Close(); err != nil {
		slog.Debug("lock file close failed", "error", err)
	}
	l.file = nil
}
