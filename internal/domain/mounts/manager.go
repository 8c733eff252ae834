package mounts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/edumarques81/sambamount/internal/metrics"
)

const (
	// DefaultBaseDir is where generated mountpoints are created.
	DefaultBaseDir = "/mnt"

	maxSuffix          = 100
	maxDeriveAttempts  = 5
	reconcileFlightKey = "reconcile"
)

// Config tunes the Manager.
type Config struct {
	BaseDir        string
	MountTimeout   time.Duration
	CleanupTimeout time.Duration
	StaleGrace     time.Duration
}

// DefaultConfig returns the defaults used when no Option overrides them.
func DefaultConfig() Config {
	return Config{
		BaseDir:        DefaultBaseDir,
		MountTimeout:   30 * time.Second,
		CleanupTimeout: 10 * time.Second,
		StaleGrace:     2 * time.Minute,
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig overrides timeouts and the base directory. Zero fields keep
// their defaults.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		if cfg.BaseDir != "" {
			m.cfg.BaseDir = filepath.Clean(cfg.BaseDir)
		}
		if cfg.MountTimeout > 0 {
			m.cfg.MountTimeout = cfg.MountTimeout
		}
		if cfg.CleanupTimeout > 0 {
			m.cfg.CleanupTimeout = cfg.CleanupTimeout
		}
		if cfg.StaleGrace > 0 {
			m.cfg.StaleGrace = cfg.StaleGrace
		}
	}
}

// WithMetrics records operation outcomes. nil disables metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithClock replaces time.Now for record timestamps and eviction.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager is the public surface for mounting, unmounting and listing
// shares. Operations on different mountpoints run in parallel; operations
// on the same mountpoint are serialised.
type Manager struct {
	store     Store
	invoker   Invoker
	unmounter UnmountInvoker
	table     LiveTable

	cfg        Config
	locks      *keyedMutex
	reconciler *Reconciler
	validate   *validator.Validate
	metrics    *metrics.Metrics
	now        func() time.Time
	flight     singleflight.Group
}

// NewManager wires the manager to its collaborators and resets records left
// in the unmounting state by a previous crash.
func NewManager(store Store, invoker Invoker, unmounter UnmountInvoker, table LiveTable, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		invoker:   invoker,
		unmounter: unmounter,
		table:     table,
		cfg:       DefaultConfig(),
		locks:     newKeyedMutex(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reconciler = newReconciler(store, table, m.locks, m.cfg.StaleGrace, m.clock, m.metrics)
	m.recover()
	return m
}

func (m *Manager) clock() time.Time {
	return m.now().UTC()
}

func (m *Manager) recover() {
	for _, rec := range m.store.All() {
		if rec.State != StateUnmounting {
			continue
		}
		rec.State = StateMounted
		if err := m.store.Upsert(rec); err != nil {
			log.Warn().Err(err).Str("mountpoint", rec.Mountpoint).Msg("Failed to reset interrupted unmount")
			continue
		}
		log.Info().Str("mountpoint", rec.Mountpoint).Msg("Reset record left unmounting by a previous run")
	}
}

// Mount attaches req.Server. The password bytes are cleared before Mount
// returns on every path. Mounting the same server at the same mountpoint
// twice is a no-op that reports AlreadyMounted.
func (m *Manager) Mount(ctx context.Context, req MountRequest) (res MountResult, err error) {
	defer clear(req.Password)

	start := time.Now()
	defer func() {
		m.metrics.RecordOperation("mount", resultLabel(err), time.Since(start))
	}()

	if verr := m.validate.Struct(req); verr != nil {
		return res, validationError(verr)
	}
	share, err := ParseServer(req.Server)
	if err != nil {
		return res, err
	}

	if req.Mountpoint != "" {
		mp, err := CleanMountpoint(req.Mountpoint)
		if err != nil {
			return res, err
		}
		res, _, err = m.mountAt(ctx, share, mp, req, false)
		return res, err
	}

	for attempt := 0; attempt < maxDeriveAttempts; attempt++ {
		mp, err := m.deriveMountpoint(share)
		if err != nil {
			return res, err
		}
		var retry bool
		res, retry, err = m.mountAt(ctx, share, mp, req, true)
		if !retry {
			return res, err
		}
		log.Debug().Str("mountpoint", mp).Str("server", share.Source()).Msg("Generated mountpoint taken, deriving another")
	}
	return res, Errorf(KindMountpointBusy, "no free mountpoint for %s under %s", share.Source(), m.cfg.BaseDir).
		With("mount", "", share.Source())
}

// mountAt runs one mount attempt under the mountpoint lock. retry is true
// when a generated mountpoint turned out to be taken.
func (m *Manager) mountAt(ctx context.Context, share Share, mp string, req MountRequest, generated bool) (MountResult, bool, error) {
	server := share.Source()
	if err := m.locks.Lock(ctx, mp); err != nil {
		return MountResult{}, false, AsError(err).With("mount", mp, server)
	}
	defer m.locks.Unlock(mp)

	if rec, ok := m.store.Find(mp); ok {
		switch {
		case rec.State == StateMounted && strings.EqualFold(rec.Server, server):
			log.Info().Str("mountpoint", mp).Str("server", server).Msg("Share already mounted")
			return MountResult{Mountpoint: mp, Server: server, AlreadyMounted: true, Record: rec}, false, nil
		case rec.State == StateStale:
			log.Info().
				Str("mountpoint", mp).
				Str("server", server).
				Str("previous", rec.Server).
				Msg("Remounting over stale record")
		default:
			if generated {
				return MountResult{}, true, nil
			}
			return MountResult{}, false, &Error{
				Kind:       KindAlreadyMountedConflict,
				Op:         "mount",
				Mountpoint: mp,
				Server:     server,
				Msg:        fmt.Sprintf("mountpoint already holds %s", rec.Server),
			}
		}
	}

	creds := NewCredentials(req.Username, req.Password)
	defer creds.Destroy()

	mctx, cancel := context.WithTimeout(ctx, m.cfg.MountTimeout)
	defer cancel()

	log.Info().
		Str("mountpoint", mp).
		Str("server", server).
		Object("credentials", creds).
		Msg("Mounting share")

	err := m.invoker.Mount(mctx, share.Host, share.Path, mp, creds)
	creds.Destroy()
	if err != nil {
		if mctx.Err() != nil || KindOf(err) == KindTimeout {
			m.cleanupPartialMount(mp)
			msg := fmt.Sprintf("mount did not finish within %s", m.cfg.MountTimeout)
			if errors.Is(ctx.Err(), context.Canceled) {
				msg = "mount cancelled"
			}
			return MountResult{}, false, &Error{
				Kind:       KindTimeout,
				Op:         "mount",
				Mountpoint: mp,
				Server:     server,
				Msg:        msg,
				Detail:     err.Error(),
				Err:        err,
			}
		}
		merr := AsError(err).With("mount", mp, server)
		log.Warn().
			Str("mountpoint", mp).
			Str("server", server).
			Str("kind", string(merr.Kind)).
			Str("detail", merr.Detail).
			Msg("Mount failed")
		return MountResult{}, false, merr
	}

	rec := MountRecord{
		ID:         uuid.New().String(),
		Server:     server,
		SharePath:  share.Path,
		Mountpoint: mp,
		Username:   req.Username,
		MountedAt:  m.clock(),
		State:      StateMounted,
	}
	if err := m.store.Upsert(rec); err != nil {
		log.Error().Err(err).Str("mountpoint", mp).Msg("Failed to record mount, rolling back")
		m.cleanupPartialMount(mp)
		return MountResult{}, false, AsError(err).With("mount", mp, server)
	}

	log.Info().Str("mountpoint", mp).Str("server", server).Msg("Share mounted")
	return MountResult{Mountpoint: mp, Server: server, Record: rec}, false, nil
}

// cleanupPartialMount force-detaches mp after a failed or timed-out mount.
// It runs on its own deadline since the caller's context may be done.
func (m *Manager) cleanupPartialMount(mp string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CleanupTimeout)
	defer cancel()
	if err := m.unmounter.Unmount(ctx, mp, true); err != nil {
		log.Warn().Err(err).Str("mountpoint", mp).Msg("Cleanup unmount failed")
		return
	}
	m.removeMountDir(mp)
}

// deriveMountpoint picks base_dir/host_share, suffixed on collision. A
// server that already has a record keeps its mountpoint.
func (m *Manager) deriveMountpoint(share Share) (string, error) {
	server := share.Source()
	for _, rec := range m.store.All() {
		if rec.Server == server && rec.State != StateUnmounting && m.underBaseDir(rec.Mountpoint) {
			return rec.Mountpoint, nil
		}
	}

	live, err := readLive(m.table)
	if err != nil {
		log.Warn().Err(err).Msg("Mount table unreadable while deriving mountpoint")
		live = map[string]LiveMountEntry{}
	}

	base := filepath.Join(m.cfg.BaseDir, sanitizeName(share))
	for i := 1; i <= maxSuffix; i++ {
		cand := base
		if i > 1 {
			cand = fmt.Sprintf("%s-%d", base, i)
		}
		if m.mountpointFree(cand, server, live) {
			return cand, nil
		}
	}
	return "", Errorf(KindMountpointBusy, "no free mountpoint for %s under %s", server, m.cfg.BaseDir)
}

func (m *Manager) mountpointFree(mp, server string, live map[string]LiveMountEntry) bool {
	if rec, ok := m.store.Find(mp); ok {
		return rec.Server == server && rec.State != StateUnmounting
	}
	if entry, ok := live[mp]; ok {
		return sameSource(entry.Device, server)
	}
	return dirEmptyOrMissing(mp)
}

// Unmount detaches the share at mountpoint. A path with no record but a
// live share mount is adopted first. With opts.Force a busy or hung
// unmount is forced, which may lose in-flight writes.
func (m *Manager) Unmount(ctx context.Context, mountpoint string, opts UnmountOptions) (err error) {
	start := time.Now()
	defer func() {
		m.metrics.RecordOperation("unmount", resultLabel(err), time.Since(start))
	}()

	mp, err := CleanMountpoint(mountpoint)
	if err != nil {
		return err
	}
	if err := m.locks.Lock(ctx, mp); err != nil {
		return AsError(err).With("unmount", mp, "")
	}
	defer m.locks.Unlock(mp)

	rec, ok := m.store.Find(mp)
	adopted := false
	if !ok {
		entry, found := m.liveEntry(mp)
		if !found {
			return &Error{Kind: KindNotMounted, Op: "unmount", Mountpoint: mp}
		}
		rec = m.adopt(entry)
		adopted = true
	}

	// Stale records go straight to deletion; only mounted ones pass
	// through Unmounting.
	stale := rec.State == StateStale
	prev := rec
	if !stale {
		if prev.State == StateUnmounting {
			prev.State = StateMounted
		}
		rec.State = StateUnmounting
		if err := m.store.Upsert(rec); err != nil {
			return AsError(err).With("unmount", mp, rec.Server)
		}
	}

	log.Info().Str("mountpoint", mp).Str("server", rec.Server).Bool("force", opts.Force).Msg("Unmounting share")

	if err := m.unmounter.Unmount(ctx, mp, opts.Force); err != nil {
		var rerr error
		switch {
		case adopted:
			rerr = m.store.Remove(mp)
		case !stale:
			rerr = m.store.Upsert(prev)
		}
		if rerr != nil {
			log.Error().Err(rerr).Str("mountpoint", mp).Msg("Failed to restore record after unmount failure")
		}
		uerr := AsError(err).With("unmount", mp, rec.Server)
		log.Warn().
			Str("mountpoint", mp).
			Str("kind", string(uerr.Kind)).
			Str("detail", uerr.Detail).
			Msg("Unmount failed")
		return uerr
	}

	if err := m.store.Remove(mp); err != nil {
		// The OS side is gone; let the reconciler evict the record.
		rec.State = StateStale
		rec.StaleSince = m.clock()
		if uerr := m.store.Upsert(rec); uerr != nil {
			log.Error().Err(uerr).Str("mountpoint", mp).Msg("Failed to mark unmounted record stale")
		}
		return AsError(err).With("unmount", mp, rec.Server)
	}

	m.removeMountDir(mp)
	log.Info().Str("mountpoint", mp).Msg("Share unmounted")
	return nil
}

func (m *Manager) liveEntry(mp string) (LiveMountEntry, bool) {
	live, err := readLive(m.table)
	if err != nil {
		log.Warn().Err(err).Str("mountpoint", mp).Msg("Mount table unreadable, cannot adopt")
		return LiveMountEntry{}, false
	}
	entry, ok := live[mp]
	return entry, ok
}

func (m *Manager) adopt(entry LiveMountEntry) MountRecord {
	rec := MountRecord{
		ID:         uuid.New().String(),
		Server:     entry.Device,
		Mountpoint: entry.Path,
		MountedAt:  m.clock(),
		State:      StateMounted,
		Adopted:    true,
	}
	if share, err := ParseServer(entry.Device); err == nil {
		rec.Server = share.Source()
		rec.SharePath = share.Path
	}
	log.Info().Str("mountpoint", entry.Path).Str("device", entry.Device).Msg("Adopting unmanaged share for unmount")
	return rec
}

// ListMounted reconciles and returns the confirmed mounts ordered by
// MountedAt. It never fails: if the OS table cannot be read the last
// confirmed set is returned.
func (m *Manager) ListMounted(ctx context.Context) []MountRecord {
	start := time.Now()
	rep, err := m.Reconcile(ctx)
	result := "success"
	if err != nil {
		result = string(KindOf(err))
		log.Warn().Err(err).Msg("Reconcile failed, serving last confirmed mounts")
	}
	m.metrics.RecordOperation("list", result, time.Since(start))
	return rep.Confirmed
}

// Reconcile runs one reconciliation pass. Concurrent callers share a pass.
func (m *Manager) Reconcile(ctx context.Context) (Report, error) {
	v, err, _ := m.flight.Do(reconcileFlightKey, func() (any, error) {
		return m.reconciler.Reconcile(ctx)
	})
	rep, _ := v.(Report)
	if err != nil && rep.Confirmed == nil {
		rep.Confirmed = m.reconciler.LastConfirmed()
	}
	return rep, err
}

// Records returns every registry record, including stale ones.
func (m *Manager) Records() []MountRecord {
	return m.store.All()
}

func (m *Manager) underBaseDir(p string) bool {
	rel, err := filepath.Rel(m.cfg.BaseDir, p)
	if err != nil || rel == "." {
		return false
	}
	return !strings.HasPrefix(rel, "..")
}

func (m *Manager) removeMountDir(mp string) {
	if !m.underBaseDir(mp) {
		return
	}
	if err := os.Remove(mp); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("mountpoint", mp).Msg("Mountpoint directory left in place")
	}
}

func sameSource(device, server string) bool {
	share, err := ParseServer(device)
	if err != nil {
		return false
	}
	return strings.EqualFold(share.Source(), server)
}

func dirEmptyOrMissing(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return os.IsNotExist(err)
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	return errors.Is(err, io.EOF)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Kind: KindInvalidRequest, Msg: err.Error(), Err: err}
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	var msg string
	switch fe.Tag() {
	case "required":
		msg = field + " is required"
	case "startswith":
		msg = field + " must be an absolute path"
	case "max":
		msg = field + " is too long"
	default:
		msg = fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
	return &Error{Kind: KindInvalidRequest, Msg: msg, Err: err}
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
