// Package registry persists mount records as a JSON-lines file that is
// replaced atomically on every change.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// DefaultPath is used when no registry path is configured.
const DefaultPath = "~/.sambamount/registry.jsonl"

const writeRetryDelay = 50 * time.Millisecond

// ErrLocked is returned by Open when another process owns the registry.
var ErrLocked = errors.New("registry is in use by another process")

// FileStore is a mounts.Store backed by a JSON-lines file. The in-memory
// view only changes after the file was replaced successfully.
type FileStore struct {
	path string
	lock *flock.Flock

	mu      sync.RWMutex
	records map[string]mounts.MountRecord

	// writeFile is swapped in tests to simulate failing disks.
	writeFile func(path string, data []byte) error
}

// Open loads the registry at path, creating its directory if needed, and
// holds an exclusive lock on it until Close.
func Open(path string) (*FileStore, error) {
	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand registry path: %w", err)
	}
	path = filepath.Clean(expanded)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	lk := flock.New(path + ".lock")
	ok, err := lk.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock registry: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	s := &FileStore{
		path:      path,
		lock:      lk,
		records:   make(map[string]mounts.MountRecord),
		writeFile: atomicWrite,
	}

	s.removeTempFiles()
	if err := s.load(); err != nil {
		_ = lk.Unlock()
		return nil, err
	}

	log.Info().Str("path", path).Int("records", len(s.records)).Msg("Mount registry loaded")
	return s, nil
}

// Path returns the registry file location.
func (s *FileStore) Path() string {
	return s.path
}

// Close releases the registry lock.
func (s *FileStore) Close() error {
	return s.lock.Unlock()
}

// Upsert inserts or replaces the record keyed by rec.Mountpoint.
func (s *FileStore) Upsert(rec mounts.MountRecord) error {
	if rec.Mountpoint == "" {
		return errors.New("registry: record has no mountpoint")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cloneLocked()
	next[rec.Mountpoint] = rec
	if err := s.persist(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

// Remove deletes the record for mountpoint. Removing a missing record is
// not an error.
func (s *FileStore) Remove(mountpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[mountpoint]; !ok {
		return nil
	}
	next := s.cloneLocked()
	delete(next, mountpoint)
	if err := s.persist(next); err != nil {
		return err
	}
	s.records = next
	return nil
}

// Find returns the record for mountpoint.
func (s *FileStore) Find(mountpoint string) (mounts.MountRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[mountpoint]
	return rec, ok
}

// All returns every record ordered by MountedAt, then mountpoint.
func (s *FileStore) All() []mounts.MountRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedRecords(s.records)
}

func (s *FileStore) cloneLocked() map[string]mounts.MountRecord {
	next := make(map[string]mounts.MountRecord, len(s.records)+1)
	for k, v := range s.records {
		next[k] = v
	}
	return next
}

func (s *FileStore) persist(next map[string]mounts.MountRecord) error {
	data, err := encode(sortedRecords(next))
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	// One retry covers transient failures such as a briefly full disk.
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(writeRetryDelay), 1)
	err = backoff.RetryNotify(func() error {
		return s.writeFile(s.path, data)
	}, b, func(err error, d time.Duration) {
		log.Warn().Err(err).Str("path", s.path).Dur("retry_in", d).Msg("Registry write failed, retrying")
	})
	if err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry: %w", err)
	}

	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec mounts.MountRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			if i == len(lines)-1 {
				log.Warn().Str("path", s.path).Msg("Discarding truncated trailing registry entry")
			} else {
				log.Warn().Err(err).Str("path", s.path).Int("line", i+1).Msg("Skipping unparseable registry entry")
			}
			continue
		}
		if rec.Mountpoint == "" {
			log.Warn().Str("path", s.path).Int("line", i+1).Msg("Skipping registry entry without mountpoint")
			continue
		}
		switch rec.State {
		case mounts.StateMounted, mounts.StateUnmounting, mounts.StateStale:
		default:
			rec.State = mounts.StateMounted
		}
		s.records[rec.Mountpoint] = rec
	}
	return nil
}

func (s *FileStore) removeTempFiles() {
	matches, err := filepath.Glob(tempPattern(s.path))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			log.Warn().Err(err).Str("file", m).Msg("Failed to remove leftover registry temp file")
			continue
		}
		log.Info().Str("file", m).Msg("Removed leftover registry temp file")
	}
}

func tempPrefix(path string) string {
	return "." + filepath.Base(path) + ".tmp-"
}

func tempPattern(path string) string {
	return filepath.Join(filepath.Dir(path), tempPrefix(path)+"*")
}

func encode(recs []mounts.MountRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func sortedRecords(m map[string]mounts.MountRecord) []mounts.MountRecord {
	out := make([]mounts.MountRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].MountedAt.Equal(out[j].MountedAt) {
			return out[i].MountedAt.Before(out[j].MountedAt)
		}
		return out[i].Mountpoint < out[j].Mountpoint
	})
	return out
}

// syncDir fsyncs a directory so a rename inside it is durable.
var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// atomicWrite replaces path with data via a synced temp file and rename,
// then syncs the directory. Once the rename succeeds the new content is
// live, so a directory sync failure is only logged.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, tempPrefix(path)+"*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, path); err != nil {
		return err
	}

	if serr := syncDir(dir); serr != nil {
		log.Warn().Err(serr).Str("dir", dir).Msg("Registry directory sync failed, rename may not survive a crash")
	}
	return nil
}
