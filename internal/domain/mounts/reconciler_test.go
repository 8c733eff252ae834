package mounts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/mount-utils"
)

func TestReconcile_DriftExcludedThenEvicted(t *testing.T) {
	h := newHarness(t)
	mp := filepath.Join(h.base, "music")
	h.mount(t, "//nas/music", mp)
	require.Len(t, h.m.ListMounted(context.Background()), 1)

	h.os.detach(mp)

	rep, err := h.m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Confirmed)
	require.Len(t, rep.NewlyStale, 1)
	assert.True(t, rep.Changed())

	rec, ok := h.store.Find(mp)
	require.True(t, ok, "stale records stay for the grace period")
	assert.Equal(t, StateStale, rec.State)
	assert.Equal(t, h.clock.Now(), rec.StaleSince)

	h.clock.Advance(30 * time.Second)
	rep, err = h.m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Stale, 1)
	assert.Empty(t, rep.NewlyStale)
	assert.False(t, rep.Changed())

	h.clock.Advance(31 * time.Second)
	rep, err = h.m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Len(t, rep.Evicted, 1)
	_, ok = h.store.Find(mp)
	assert.False(t, ok)
}

func TestReconcile_StaleResyncs(t *testing.T) {
	h := newHarness(t)
	mp := filepath.Join(h.base, "music")
	h.mount(t, "//nas/music", mp)
	h.os.detach(mp)
	assert.Empty(t, h.m.ListMounted(context.Background()))

	h.os.attach("//nas/music", mp)
	rep, err := h.m.Reconcile(context.Background())

	require.NoError(t, err)
	assert.Len(t, rep.Resynced, 1)
	require.Len(t, rep.Confirmed, 1)
	rec, _ := h.store.Find(mp)
	assert.Equal(t, StateMounted, rec.State)
	assert.True(t, rec.StaleSince.IsZero())
}

func TestReconcile_TableFailureServesLastConfirmed(t *testing.T) {
	var flaky *flakyTable
	h := newHarness(t, func(h *harness) {
		flaky = &flakyTable{LiveTable: h.os.table}
	})
	// Rebuild on the flaky table; the harness wires the plain one.
	h.m = NewManager(h.store, h.os, h.os, flaky, WithConfig(Config{BaseDir: h.base}), WithClock(h.clock.Now))

	mp := filepath.Join(h.base, "music")
	h.mount(t, "//nas/music", mp)
	require.Len(t, h.m.ListMounted(context.Background()), 1)

	flaky.setErr(errors.New("cannot read /proc/mounts"))
	h.os.detach(mp)

	listed := h.m.ListMounted(context.Background())
	require.Len(t, listed, 1)
	assert.Equal(t, mp, listed[0].Mountpoint)
	rec, _ := h.store.Find(mp)
	assert.Equal(t, StateMounted, rec.State, "no stale marking without a table read")

	_, err := h.m.Reconcile(context.Background())
	assert.Error(t, err)
}

func TestReconcile_TableFailureBeforeFirstPassServesRegistry(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.store = newMemStore(
			MountRecord{ID: "1", Server: "//nas/a", Mountpoint: "/mnt/a", State: StateMounted},
			MountRecord{ID: "2", Server: "//nas/b", Mountpoint: "/mnt/b", State: StateStale},
		)
	})
	flaky := &flakyTable{LiveTable: h.os.table}
	flaky.setErr(errors.New("cannot read /proc/mounts"))
	h.m = NewManager(h.store, h.os, h.os, flaky, WithConfig(Config{BaseDir: h.base}), WithClock(h.clock.Now))

	listed := h.m.ListMounted(context.Background())

	require.Len(t, listed, 1)
	assert.Equal(t, "/mnt/a", listed[0].Mountpoint)
}

func TestReconcile_SkipsMountpointsWithOperationInFlight(t *testing.T) {
	h := newHarness(t)
	mp := filepath.Join(h.base, "music")
	h.mount(t, "//nas/music", mp)
	h.os.detach(mp)

	require.NoError(t, h.m.locks.Lock(context.Background(), mp))
	rep, err := h.m.Reconcile(context.Background())
	h.m.locks.Unlock(mp)

	require.NoError(t, err)
	assert.Len(t, rep.Confirmed, 1)
	rec, _ := h.store.Find(mp)
	assert.Equal(t, StateMounted, rec.State)
}

func TestReconcile_ReportsUnmanagedWithoutAdopting(t *testing.T) {
	h := newHarness(t, func(h *harness) {
		h.os = newFakeOS(
			mount.MountPoint{Device: "//other/share", Path: "/media/other", Type: "cifs"},
			mount.MountPoint{Device: "/dev/sda1", Path: "/", Type: "ext4"},
		)
	})

	rep, err := h.m.Reconcile(context.Background())

	require.NoError(t, err)
	require.Len(t, rep.Unmanaged, 1)
	assert.Equal(t, "/media/other", rep.Unmanaged[0].Path)
	assert.Empty(t, h.store.All())
}

func TestListMounted_OrderedByMountTime(t *testing.T) {
	h := newHarness(t)
	h.mount(t, "//nas/b", filepath.Join(h.base, "b"))
	h.clock.Advance(time.Second)
	h.mount(t, "//nas/a", filepath.Join(h.base, "a"))

	listed := h.m.ListMounted(context.Background())

	require.Len(t, listed, 2)
	assert.Equal(t, "//nas/b", listed[0].Server)
	assert.Equal(t, "//nas/a", listed[1].Server)
	assert.Equal(t, []MountInfo{
		{Server: "//nas/b", Mountpoint: filepath.Join(h.base, "b")},
		{Server: "//nas/a", Mountpoint: filepath.Join(h.base, "a")},
	}, Infos(listed))
}
