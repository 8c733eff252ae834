package mounts

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
	"k8s.io/mount-utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type memStore struct {
	mu       sync.Mutex
	records  map[string]MountRecord
	failNext error
}

func newMemStore(recs ...MountRecord) *memStore {
	s := &memStore{records: make(map[string]MountRecord)}
	for _, r := range recs {
		s.records[r.Mountpoint] = r
	}
	return s
}

func (s *memStore) failWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *memStore) Upsert(rec MountRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		return s.failNext
	}
	s.records[rec.Mountpoint] = rec
	return nil
}

func (s *memStore) Remove(mp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		return s.failNext
	}
	delete(s.records, mp)
	return nil
}

func (s *memStore) Find(mp string) (MountRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[mp]
	return r, ok
}

func (s *memStore) All() []MountRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MountRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mountpoint < out[j].Mountpoint })
	return out
}

// fakeOS plays both invokers against a FakeMounter table.
type fakeOS struct {
	table *mount.FakeMounter

	mu           sync.Mutex
	mountCalls   map[string]int
	unmountCalls []unmountCall
	mountFn      func(ctx context.Context, mountpoint string, creds *Credentials) error
	unmountErr   error
}

type unmountCall struct {
	mountpoint string
	force      bool
}

func newFakeOS(mps ...mount.MountPoint) *fakeOS {
	return &fakeOS{
		table:      mount.NewFakeMounter(mps),
		mountCalls: make(map[string]int),
	}
}

func (f *fakeOS) Mount(ctx context.Context, host, sharePath, mountpoint string, creds *Credentials) error {
	f.mu.Lock()
	f.mountCalls[mountpoint]++
	fn := f.mountFn
	f.mu.Unlock()

	if fn != nil {
		if err := fn(ctx, mountpoint, creds); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return err
	}
	return f.table.Mount(Share{Host: host, Path: sharePath}.Source(), mountpoint, "cifs", nil)
}

func (f *fakeOS) Unmount(_ context.Context, mountpoint string, force bool) error {
	f.mu.Lock()
	f.unmountCalls = append(f.unmountCalls, unmountCall{mountpoint: mountpoint, force: force})
	err := f.unmountErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.table.Unmount(mountpoint)
}

func (f *fakeOS) mounts(mp string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mountCalls[mp]
}

func (f *fakeOS) unmounts() []unmountCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]unmountCall(nil), f.unmountCalls...)
}

// detach simulates an unmount done outside the manager.
func (f *fakeOS) detach(mp string) {
	_ = f.table.Unmount(mp)
}

func (f *fakeOS) attach(device, mp string) {
	_ = f.table.Mount(device, mp, "cifs", nil)
}

type flakyTable struct {
	LiveTable
	mu  sync.Mutex
	err error
}

func (t *flakyTable) setErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

func (t *flakyTable) List() ([]mount.MountPoint, error) {
	t.mu.Lock()
	err := t.err
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return t.LiveTable.List()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var errDiskFull = errors.New("disk full")
