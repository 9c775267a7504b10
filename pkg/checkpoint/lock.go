package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// CaseLock is an exclusive advisory lock that keeps two processes from
// driving the same case at once.
type CaseLock struct {
	file *os.File
}

// TryLockCase acquires <dir>/locks/<case>.lock without blocking. It returns
// ErrCaseLocked when another process holds it.
func TryLockCase(dir, caseID string) (*CaseLock, error) {
	locksDir := filepath.Join(dir, "locks")
	if err := os.MkdirAll(locksDir, 0o755); err != nil {
		return nil, fmt.Errorf("create locks dir: %w", err)
	}
	lockPath := filepath.Join(locksDir, strings.TrimSuffix(FileName(caseID), ".md")+".lock")
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("lock case %q: %w", caseID, ErrCaseLocked)
	}
	return &CaseLock{file: file}, nil
}

// Release releases the lock.
func (l *CaseLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
