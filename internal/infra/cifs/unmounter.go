package cifs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"k8s.io/mount-utils"
	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// Unmounter detaches shares with umount, escalating to a forced unmount
// when asked to.
type Unmounter struct {
	exec    exec.Interface
	mounter mount.Interface
	timeout time.Duration
	useSudo bool
}

// NewUnmounter creates an Unmounter using opts.UnmountTimeout and opts.UseSudo.
func NewUnmounter(e exec.Interface, m mount.Interface, opts Options) *Unmounter {
	timeout := opts.UnmountTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().UnmountTimeout
	}
	return &Unmounter{exec: e, mounter: m, timeout: timeout, useSudo: opts.UseSudo}
}

// Unmount detaches mountpoint. Unmounting a path with nothing mounted
// succeeds. Without force a busy share fails with MountpointBusy and a
// hung unmount with Timeout. With force both cases fall through to
// umount -f (plus -l on Linux), which can discard writes still in flight.
func (u *Unmounter) Unmount(ctx context.Context, mountpoint string, force bool) error {
	if err := unsupported(); err != nil {
		return err
	}

	mounted, err := u.isMounted(mountpoint)
	if err != nil {
		return err
	}
	if !mounted {
		log.Debug().Str("mountpoint", mountpoint).Msg("Nothing mounted, unmount is a no-op")
		return nil
	}

	gctx, cancel := context.WithTimeout(ctx, u.timeout)
	out, err := command(gctx, u.exec, u.useSudo, "umount", mountpoint).CombinedOutput()
	timedOut := ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(gctx.Err(), context.DeadlineExceeded))
	cancel()
	if err == nil || notMounted(out) {
		log.Info().Str("mountpoint", mountpoint).Msg("Share unmounted")
		return nil
	}
	if ctx.Err() != nil {
		return &mounts.Error{Kind: mounts.KindTimeout, Msg: "unmount cancelled", Err: ctx.Err()}
	}

	uerr := classify(out, err)
	if timedOut {
		uerr = &mounts.Error{Kind: mounts.KindTimeout, Msg: "unmount did not finish within " + u.timeout.String(), Err: err}
	}
	if !force || (uerr.Kind != mounts.KindMountpointBusy && uerr.Kind != mounts.KindTimeout) {
		log.Warn().
			Str("mountpoint", mountpoint).
			Str("kind", string(uerr.Kind)).
			Str("output", uerr.Detail).
			Msg("Unmount failed")
		return uerr
	}

	log.Warn().
		Str("mountpoint", mountpoint).
		Str("reason", string(uerr.Kind)).
		Strs("args", forceUnmountArgs).
		Msg("Graceful unmount failed, forcing unmount")

	fctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	args := append(append([]string(nil), forceUnmountArgs...), mountpoint)
	out, err = command(fctx, u.exec, u.useSudo, "umount", args...).CombinedOutput()
	if err == nil || notMounted(out) {
		log.Info().Str("mountpoint", mountpoint).Msg("Share force unmounted")
		return nil
	}
	ferr := classify(out, err)
	log.Error().
		Str("mountpoint", mountpoint).
		Str("kind", string(ferr.Kind)).
		Str("output", ferr.Detail).
		Msg("Forced unmount failed")
	return ferr
}

// isMounted checks the mountpoint and, since IsLikelyNotMountPoint misses
// bind mounts, falls back to the mount table.
func (u *Unmounter) isMounted(mountpoint string) (bool, error) {
	notMnt, err := u.mounter.IsLikelyNotMountPoint(mountpoint)
	switch {
	case os.IsNotExist(err):
		return false, nil
	case err != nil && mount.IsCorruptedMnt(err):
		return true, nil
	case err != nil:
		return false, fsError("cannot inspect mountpoint", err)
	case !notMnt:
		return true, nil
	}

	mps, err := u.mounter.List()
	if err != nil {
		return false, fsError("cannot read mount table", err)
	}
	clean := filepath.Clean(mountpoint)
	for _, mp := range mps {
		if filepath.Clean(mp.Path) == clean {
			return true, nil
		}
	}
	return false, nil
}
