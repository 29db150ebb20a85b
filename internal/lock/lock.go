// Package lock provides exclusive, cross-process writes of a single file.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
)

// WriteResult reports the outcome of an exclusive write.
type WriteResult struct {
	OK  bool
	Err error
}

// Locker performs an exclusive write of content to path.
type Locker interface {
	ExclusiveWrite(path string, content []byte) WriteResult
}

const (
	defaultWait  = 2 * time.Second
	retryBackoff = 25 * time.Millisecond
)

// FileLocker guards writes with a "<path>.lock" file holding the owner PID.
// Lock files left behind by dead processes are removed, as are old lock
// files without a readable PID.
type FileLocker struct {
	// Wait bounds how long ExclusiveWrite retries a held lock.
	Wait time.Duration
}

var _ Locker = (*FileLocker)(nil)

// NewFileLocker returns a FileLocker with the default wait.
func NewFileLocker() *FileLocker {
	return &FileLocker{Wait: defaultWait}
}

// LockPath returns the lock file used for path.
func LockPath(path string) string {
	return path + ".lock"
}

// ExclusiveWrite acquires the lock, writes content atomically and releases it.
func (l *FileLocker) ExclusiveWrite(path string, content []byte) WriteResult {
	lockPath := LockPath(path)
	if err := l.acquire(lockPath); err != nil {
		return WriteResult{Err: err}
	}
	defer release(lockPath)

	if err := AtomicWrite(path, content); err != nil {
		return WriteResult{Err: apperr.Wrap(apperr.KindIO, "exclusive write", err)}
	}
	return WriteResult{OK: true}
}

func (l *FileLocker) acquire(lockPath string) error {
	wait := l.Wait
	if wait <= 0 {
		wait = defaultWait
	}
	deadline := time.Now().Add(wait)

	for {
		err := tryAcquire(lockPath)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errHeld) {
			return apperr.Wrap(apperr.KindIO, "acquire lock", err)
		}
		if time.Now().After(deadline) {
			return apperr.Wrap(apperr.KindLockConflict, "acquire lock", err)
		}
		time.Sleep(retryBackoff)
	}
}

var errHeld = errors.New("lock held")

// tryAcquire publishes a lock file that already holds our PID: the PID is
// written to a temp file which is then hard-linked into place, so the lock
// is never visible empty.
func tryAcquire(lockPath string) error {
	tmp, err := writeTemp(lockPath, []byte(strconv.Itoa(os.Getpid())))
	if err != nil {
		return err
	}
	err = os.Link(tmp, lockPath)
	os.Remove(tmp)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("create lock file: %w", err)
	}

	info, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errHeld
		}
		return fmt.Errorf("stat lock file: %w", err)
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return errHeld
		}
		return fmt.Errorf("read lock file: %w", err)
	}

	pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
	switch {
	case parseErr == nil && processExists(pid):
		return fmt.Errorf("%w by PID %d", errHeld, pid)
	case parseErr != nil && time.Since(info.ModTime()) < malformedGrace:
		// A lock written by a non-linking writer may still be filling in.
		return fmt.Errorf("%w (unreadable owner)", errHeld)
	}
	return removeStale(lockPath, info)
}

// malformedGrace is how old a lock file without a valid PID must be before
// it is treated as stale.
var malformedGrace = 5 * time.Second

// removeStale moves the lock aside and deletes it only if it is still the
// file that was judged stale. A lock replaced in between is put back.
func removeStale(lockPath string, stale os.FileInfo) error {
	aside := fmt.Sprintf("%s.stale.%d.%d", lockPath, os.Getpid(), time.Now().UnixNano())
	if err := os.Rename(lockPath, aside); err != nil {
		if os.IsNotExist(err) {
			return errHeld
		}
		return fmt.Errorf("remove stale lock file: %w", err)
	}
	defer os.Remove(aside)

	moved, err := os.Stat(aside)
	if err != nil || !os.SameFile(stale, moved) {
		_ = os.Link(aside, lockPath)
	}
	return errHeld
}

func writeTemp(lockPath string, content []byte) (string, error) {
	dir, base := filepath.Split(lockPath)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create lock temp file: %w", err)
	}
	_, werr := f.Write(content)
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write lock temp file: %w", err)
	}
	return f.Name(), nil
}

func release(lockPath string) {
	_ = os.Remove(lockPath)
}

func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	if pid == os.Getpid() {
		return true
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
