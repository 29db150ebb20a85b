package store

import (
	"sync"

	"github.com/alexander-akhmetov/prdloop/internal/lock"
)

type mockLocker struct {
	mu     sync.Mutex
	writes [][]byte
	// WriteFunc overrides the default behaviour, which writes atomically.
	WriteFunc func(path string, content []byte) lock.WriteResult
}

func (l *mockLocker) ExclusiveWrite(path string, content []byte) lock.WriteResult {
	l.mu.Lock()
	l.writes = append(l.writes, append([]byte(nil), content...))
	fn := l.WriteFunc
	l.mu.Unlock()

	if fn != nil {
		return fn(path, content)
	}
	if err := lock.AtomicWrite(path, content); err != nil {
		return lock.WriteResult{Err: err}
	}
	return lock.WriteResult{OK: true}
}

func (l *mockLocker) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}
