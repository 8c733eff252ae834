package mounts

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/mount-utils"

	"github.com/edumarques81/sambamount/internal/metrics"
)

// LiveTable reads the OS mount table. mount.Interface satisfies it.
type LiveTable interface {
	List() ([]mount.MountPoint, error)
}

var shareFSTypes = map[string]bool{
	"cifs":  true,
	"smb3":  true,
	"smbfs": true,
}

// readLive returns the share mounts in the table keyed by cleaned path.
func readLive(table LiveTable) (map[string]LiveMountEntry, error) {
	if table == nil {
		return map[string]LiveMountEntry{}, nil
	}
	mps, err := table.List()
	if err != nil {
		return nil, err
	}
	live := make(map[string]LiveMountEntry, len(mps))
	for _, mp := range mps {
		if !shareFSTypes[mp.Type] {
			continue
		}
		p := filepath.Clean(mp.Path)
		live[p] = LiveMountEntry{Device: mp.Device, Path: p, Type: mp.Type}
	}
	return live, nil
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	// Confirmed records are mounted in both the registry and the OS table.
	Confirmed []MountRecord
	// Stale records are missing from the OS table and awaiting eviction.
	Stale []MountRecord
	// NewlyStale is the subset of Stale that transitioned in this pass.
	NewlyStale []MountRecord
	// Resynced records were stale and reappeared in the OS table.
	Resynced []MountRecord
	// Evicted records stayed stale past the grace period and were removed.
	Evicted []MountRecord
	// Unmanaged share mounts exist in the OS table with no record.
	Unmanaged []LiveMountEntry
}

// Changed reports whether the pass moved any record between states.
func (r Report) Changed() bool {
	return len(r.NewlyStale)+len(r.Resynced)+len(r.Evicted) > 0
}

// Reconciler compares the registry with the OS mount table.
type Reconciler struct {
	store   Store
	table   LiveTable
	locks   *keyedMutex
	grace   time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu            sync.Mutex
	lastConfirmed []MountRecord
	confirmedOnce bool
}

func newReconciler(store Store, table LiveTable, locks *keyedMutex, grace time.Duration, now func() time.Time, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		store:   store,
		table:   table,
		locks:   locks,
		grace:   grace,
		now:     now,
		metrics: m,
	}
}

// LastConfirmed returns the confirmed set of the last successful pass.
// Before any pass has succeeded it falls back to the registry's mounted
// records.
func (r *Reconciler) LastConfirmed() []MountRecord {
	r.mu.Lock()
	if r.confirmedOnce {
		out := make([]MountRecord, len(r.lastConfirmed))
		copy(out, r.lastConfirmed)
		r.mu.Unlock()
		return out
	}
	r.mu.Unlock()

	out := []MountRecord{}
	for _, rec := range r.store.All() {
		if rec.State == StateMounted {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out
}

// Reconcile runs one pass. When the OS table cannot be read, nothing is
// marked stale and the last confirmed set is returned with the error.
// Records whose mountpoint has an operation in flight are reported as
// they are and left untouched.
func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{Confirmed: r.LastConfirmed()}, err
	}

	live, err := readLive(r.table)
	if err != nil {
		r.metrics.RecordReconcileError()
		return Report{Confirmed: r.LastConfirmed()}, fmt.Errorf("read mount table: %w", err)
	}

	now := r.now()
	var rep Report
	known := make(map[string]bool)

	for _, rec := range r.store.All() {
		known[rec.Mountpoint] = true
		if !r.locks.TryLock(rec.Mountpoint) {
			if rec.State == StateMounted {
				rep.Confirmed = append(rep.Confirmed, rec)
			}
			continue
		}
		_, isLive := live[rec.Mountpoint]
		r.reconcileRecord(rec.Mountpoint, isLive, now, &rep)
		r.locks.Unlock(rec.Mountpoint)
	}

	for p, entry := range live {
		if known[p] {
			continue
		}
		log.Info().
			Str("mountpoint", entry.Path).
			Str("device", entry.Device).
			Str("type", entry.Type).
			Msg("Share mounted outside the manager, not adopted")
		rep.Unmanaged = append(rep.Unmanaged, entry)
	}
	sort.Slice(rep.Unmanaged, func(i, j int) bool { return rep.Unmanaged[i].Path < rep.Unmanaged[j].Path })

	sortRecords(rep.Confirmed)
	sortRecords(rep.Stale)

	r.mu.Lock()
	r.lastConfirmed = append([]MountRecord(nil), rep.Confirmed...)
	r.confirmedOnce = true
	r.mu.Unlock()

	r.metrics.SetActive(len(rep.Confirmed))
	r.metrics.RecordDrift("stale", len(rep.NewlyStale))
	r.metrics.RecordDrift("resynced", len(rep.Resynced))
	r.metrics.RecordDrift("evicted", len(rep.Evicted))
	r.metrics.RecordDrift("unmanaged", len(rep.Unmanaged))

	if rep.Changed() {
		log.Info().
			Int("confirmed", len(rep.Confirmed)).
			Int("stale", len(rep.NewlyStale)).
			Int("resynced", len(rep.Resynced)).
			Int("evicted", len(rep.Evicted)).
			Msg("Registry drift reconciled")
	}

	return rep, nil
}

// reconcileRecord must be called with the mountpoint lock held.
func (r *Reconciler) reconcileRecord(mountpoint string, isLive bool, now time.Time, rep *Report) {
	rec, ok := r.store.Find(mountpoint)
	if !ok {
		return
	}

	switch rec.State {
	case StateMounted:
		if isLive {
			rep.Confirmed = append(rep.Confirmed, rec)
			return
		}
		rec.State = StateStale
		rec.StaleSince = now
		if err := r.store.Upsert(rec); err != nil {
			log.Warn().Err(err).Str("mountpoint", mountpoint).Msg("Failed to persist stale state")
		}
		log.Warn().
			Str("mountpoint", mountpoint).
			Str("server", rec.Server).
			Msg("Share missing from mount table, marked stale")
		rep.Stale = append(rep.Stale, rec)
		rep.NewlyStale = append(rep.NewlyStale, rec)

	case StateStale:
		if isLive {
			rec.State = StateMounted
			rec.StaleSince = time.Time{}
			if err := r.store.Upsert(rec); err != nil {
				log.Warn().Err(err).Str("mountpoint", mountpoint).Msg("Failed to persist resync")
			}
			log.Info().Str("mountpoint", mountpoint).Msg("Stale share reappeared, resynced")
			rep.Resynced = append(rep.Resynced, rec)
			rep.Confirmed = append(rep.Confirmed, rec)
			return
		}
		if now.Sub(rec.StaleSince) >= r.grace {
			if err := r.store.Remove(mountpoint); err != nil {
				log.Warn().Err(err).Str("mountpoint", mountpoint).Msg("Failed to evict stale record")
				rep.Stale = append(rep.Stale, rec)
				return
			}
			log.Info().
				Str("mountpoint", mountpoint).
				Str("server", rec.Server).
				Dur("stale_for", now.Sub(rec.StaleSince)).
				Msg("Evicted stale record")
			rep.Evicted = append(rep.Evicted, rec)
			return
		}
		rep.Stale = append(rep.Stale, rec)

	case StateUnmounting:
		// Only reachable if an unmount crashed; recovery resets it on startup.
	}
}

func sortRecords(recs []MountRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		if !recs[i].MountedAt.Equal(recs[j].MountedAt) {
			return recs[i].MountedAt.Before(recs[j].MountedAt)
		}
		return recs[i].Mountpoint < recs[j].Mountpoint
	})
}
