package lock

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexander-akhmetov/prdloop/internal/apperr"
)

func TestAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "prd.json")

	require.NoError(t, AtomicWrite(path, []byte("one")))
	require.NoError(t, AtomicWrite(path, []byte("two")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestExclusiveWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd.json")
	l := NewFileLocker()

	res := l.ExclusiveWrite(path, []byte(`{"name":"x"}`))
	require.True(t, res.OK)
	require.NoError(t, res.Err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, string(data))
	assert.NoFileExists(t, LockPath(path))
}

func TestExclusiveWriteConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd.json")
	// The current process counts as a live owner.
	require.NoError(t, os.WriteFile(LockPath(path), []byte(strconv.Itoa(os.Getpid())), 0o644))

	l := &FileLocker{Wait: 60 * time.Millisecond}
	res := l.ExclusiveWrite(path, []byte("data"))
	assert.False(t, res.OK)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, apperr.ErrLockConflict)
	assert.NoFileExists(t, path)
}

func TestExclusiveWriteRemovesStaleLock(t *testing.T) {
	old := time.Now().Add(-time.Minute)
	tests := []struct {
		name    string
		content string
		mtime   time.Time
	}{
		{name: "malformed pid", content: "not-a-pid", mtime: old},
		{name: "empty", content: "", mtime: old},
		{name: "dead pid", content: "-1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prd.json")
			require.NoError(t, os.WriteFile(LockPath(path), []byte(tc.content), 0o644))
			if !tc.mtime.IsZero() {
				require.NoError(t, os.Chtimes(LockPath(path), tc.mtime, tc.mtime))
			}

			res := NewFileLocker().ExclusiveWrite(path, []byte("data"))
			require.True(t, res.OK, "err: %v", res.Err)
			assert.NoFileExists(t, LockPath(path))
		})
	}
}

func TestExclusiveWriteKeepsFreshUnreadableLock(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "partial", content: "12ab"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prd.json")
			// Another writer created the lock and has not written its PID yet.
			require.NoError(t, os.WriteFile(LockPath(path), []byte(tc.content), 0o644))

			res := (&FileLocker{Wait: 60 * time.Millisecond}).ExclusiveWrite(path, []byte("data"))
			assert.False(t, res.OK)
			assert.ErrorIs(t, res.Err, apperr.ErrLockConflict)
			assert.FileExists(t, LockPath(path))
			assert.NoFileExists(t, path)
		})
	}
}

func TestTryAcquirePublishesPID(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "prd.json.lock")

	require.NoError(t, tryAcquire(lockPath))
	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.ErrorIs(t, tryAcquire(lockPath), errHeld)
	release(lockPath)
	assert.NoFileExists(t, lockPath)
}

func TestRemoveStaleRestoresReplacedLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "prd.json.lock")
	require.NoError(t, os.WriteFile(lockPath, []byte("-1"), 0o644))
	stale, err := os.Stat(lockPath)
	require.NoError(t, err)

	// A new owner replaces the stale lock before it is removed.
	fresh := filepath.Join(dir, "fresh")
	require.NoError(t, os.WriteFile(fresh, []byte(strconv.Itoa(os.Getpid())), 0o644))
	require.NoError(t, os.Rename(fresh, lockPath))

	assert.ErrorIs(t, removeStale(lockPath, stale), errHeld)
	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
