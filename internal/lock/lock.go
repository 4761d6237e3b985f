// Package lock provides a single-instance guard backed by an OS file lock.
// The lock is released by the kernel if the process dies.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrLocked is returned when another process holds the lock
var ErrLocked = errors.New("another instance is already running")

// Lock is a held exclusive lock on a file
type Lock struct {
	file *os.File
}

// Acquire takes a non-blocking exclusive lock on path, creating the file
// and its directory when needed.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	// Record the holder for operators; failure here does not matter
	if err := f.Truncate(0); err == nil {
		fmt.Fprintf(f, "%d\n", os.Getpid())
	}

	return &Lock{file: f}, nil
}

// Release unlocks and closes the lock file. The file itself is left in
// place so a concurrent Acquire never races on a deleted inode.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file = nil
	return err
}
