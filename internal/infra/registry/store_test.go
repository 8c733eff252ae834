package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

func record(mp, server string, at time.Time) mounts.MountRecord {
	return mounts.MountRecord{
		ID:         "id-" + filepath.Base(mp),
		Server:     server,
		SharePath:  "share",
		Mountpoint: mp,
		Username:   "alice",
		MountedAt:  at,
		State:      mounts.StateMounted,
	}
}

func openTemp(t *testing.T) (*FileStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.jsonl")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestFileStore_UpsertFindRemove(t *testing.T) {
	s, _ := openTemp(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, s.Upsert(record("/mnt/b", "//nas/b", now.Add(time.Minute))))
	require.NoError(t, s.Upsert(record("/mnt/a", "//nas/a", now)))

	rec, ok := s.Find("/mnt/a")
	require.True(t, ok)
	assert.Equal(t, "//nas/a", rec.Server)

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "/mnt/a", all[0].Mountpoint, "ordered by mounted_at")

	require.NoError(t, s.Remove("/mnt/a"))
	require.NoError(t, s.Remove("/mnt/a"), "removing twice is fine")
	_, ok = s.Find("/mnt/a")
	assert.False(t, ok)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.jsonl")
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Upsert(record("/mnt/music", "//nas/music", at)))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	rec, ok := s2.Find("/mnt/music")
	require.True(t, ok)
	assert.True(t, at.Equal(rec.MountedAt))
	assert.Equal(t, mounts.StateMounted, rec.State)
}

func TestFileStore_NeverStoresPasswords(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Upsert(record("/mnt/x", "//nas/x", time.Now())))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(string(data)), "password")
}

func TestFileStore_SecondOpenIsLocked(t *testing.T) {
	_, path := openTemp(t)

	_, err := Open(path)
	assert.ErrorIs(t, err, ErrLocked)
}

func TestFileStore_DiscardsTruncatedTrailingLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.jsonl")
	good := `{"id":"1","server":"//nas/a","mountpoint":"/mnt/a","mounted_at":"2026-01-01T00:00:00Z","state":"mounted"}`
	partial := `{"id":"2","server":"//nas/b","mountpoint":"/mn`
	require.NoError(t, os.WriteFile(path, []byte(good+"\n"+partial), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	all := s.All()
	require.Len(t, all, 1)
	assert.Equal(t, "/mnt/a", all[0].Mountpoint)

	// The next write rewrites the file without the partial entry.
	require.NoError(t, s.Upsert(record("/mnt/c", "//nas/c", time.Now())))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "/mn\"")
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 2)
}

func TestFileStore_RemovesLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.jsonl")
	leftover := filepath.Join(dir, ".registry.jsonl.tmp-12345")
	require.NoError(t, os.WriteFile(leftover, []byte(`{"mountpoint":"/half`), 0o600))

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(leftover)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, s.All())
}

func TestFileStore_FailedWriteKeepsPriorState(t *testing.T) {
	s, path := openTemp(t)
	require.NoError(t, s.Upsert(record("/mnt/a", "//nas/a", time.Now())))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	calls := 0
	s.writeFile = func(string, []byte) error {
		calls++
		return errors.New("disk full")
	}

	err = s.Upsert(record("/mnt/b", "//nas/b", time.Now()))
	require.Error(t, err)
	assert.Equal(t, 2, calls, "one retry")

	_, ok := s.Find("/mnt/b")
	assert.False(t, ok, "memory must not change on failed write")
	require.Error(t, s.Remove("/mnt/a"))
	_, ok = s.Find("/mnt/a")
	assert.True(t, ok)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStore_RetrySucceeds(t *testing.T) {
	s, _ := openTemp(t)
	calls := 0
	s.writeFile = func(path string, data []byte) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return atomicWrite(path, data)
	}

	require.NoError(t, s.Upsert(record("/mnt/a", "//nas/a", time.Now())))
	assert.Equal(t, 2, calls)
}

func TestAtomicWrite_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.jsonl")
	require.NoError(t, atomicWrite(path, []byte("x\n")))
	require.NoError(t, atomicWrite(path, []byte("y\n")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "y\n", string(data))
}

func TestFileStore_DirSyncFailureIsNotAWriteFailure(t *testing.T) {
	orig := syncDir
	syncDir = func(string) error { return errors.New("EIO") }
	t.Cleanup(func() { syncDir = orig })

	s, path := openTemp(t)
	rec := record("/mnt/a", "//nas/a", time.Now())

	require.NoError(t, s.Upsert(rec))

	got, ok := s.Find("/mnt/a")
	require.True(t, ok)
	assert.Equal(t, rec.Server, got.Server)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"/mnt/a"`)
}
