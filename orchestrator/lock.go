package orchestrator

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Lock is the advisory lock file serializing orchestrator instances
// against each other, per spec.md §5 ("Concurrent instances ... are not
// supported; the implementer is expected to serialize via an advisory
// lock file").
type Lock struct {
	path string
	file *os.File
}

// NewLock returns a Lock bound to <rootDir>/var/lib/srcpkg/.lock.
func NewLock(rootDir string) *Lock {
	return &Lock{path: filepath.Join(rootDir, "var", "lib", "srcpkg", ".lock")}
}

// Acquire takes the lock with a non-blocking flock, returning LockedError
// if another process already holds it.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return err
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return &LockedError{Path: l.path, Err: err}
	}

	l.file = f
	return nil
}

// Release drops the flock and closes the file. Safe to call on an
// unacquired Lock.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return closeErr
}
