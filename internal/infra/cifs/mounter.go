package cifs

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"k8s.io/mount-utils"
	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

var errAlreadyMounted = errors.New("share already mounted at mountpoint")

// Mounter attaches shares with mount -t cifs on Linux and mount_smbfs on
// macOS.
type Mounter struct {
	exec    exec.Interface
	mounter mount.Interface
	opts    Options
}

// NewMounter creates a Mounter. m is used to inspect mountpoints, never
// to perform the mount itself.
func NewMounter(e exec.Interface, m mount.Interface, opts Options) *Mounter {
	return &Mounter{exec: e, mounter: m, opts: opts}
}

// Mount runs the platform helper for //host/sharePath at mountpoint. The
// password reaches the helper on stdin and never appears in argv or the
// logs. Failures are not retried.
func (m *Mounter) Mount(ctx context.Context, host, sharePath, mountpoint string, creds *mounts.Credentials) error {
	if err := unsupported(); err != nil {
		return err
	}
	source := mounts.Share{Host: host, Path: sharePath}.Source()

	if err := m.ensureMountpoint(mountpoint, source); err != nil {
		if errors.Is(err, errAlreadyMounted) {
			log.Info().Str("mountpoint", mountpoint).Str("source", source).Msg("Share already attached, nothing to do")
			return nil
		}
		return err
	}

	cmd, args, err := m.helperCommand(ctx, host, sharePath, mountpoint, creds)
	if err != nil {
		return err
	}

	log.Debug().
		Str("source", source).
		Str("mountpoint", mountpoint).
		Str("args", args).
		Bool("sudo", m.opts.UseSudo).
		Msg("Running mount helper")

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return &mounts.Error{Kind: mounts.KindTimeout, Detail: strings.TrimSpace(string(out)), Err: ctx.Err()}
		}
		merr := classify(out, err)
		log.Error().
			Err(err).
			Str("source", source).
			Str("mountpoint", mountpoint).
			Str("kind", string(merr.Kind)).
			Str("output", merr.Detail).
			Msg("CIFS mount failed")
		return merr
	}

	log.Info().
		Str("source", source).
		Str("mountpoint", mountpoint).
		Msg("CIFS share mounted")
	return nil
}

// ensureMountpoint creates mountpoint if needed and checks it can take a
// mount. It returns errAlreadyMounted when source is already attached there.
func (m *Mounter) ensureMountpoint(mountpoint, source string) error {
	fi, err := os.Stat(mountpoint)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(mountpoint, 0o755); err != nil {
			return fsError("cannot create mountpoint", err)
		}
		return nil
	case err != nil && mount.IsCorruptedMnt(err):
		if m.mountedFrom(mountpoint, source) {
			return errAlreadyMounted
		}
		return &mounts.Error{Kind: mounts.KindMountpointBusy, Msg: "mountpoint holds a disconnected mount", Detail: err.Error(), Err: err}
	case err != nil:
		return fsError("cannot inspect mountpoint", err)
	case !fi.IsDir():
		return mounts.Errorf(mounts.KindInvalidRequest, "mountpoint %s is not a directory", mountpoint)
	}

	notMnt, err := m.mounter.IsLikelyNotMountPoint(mountpoint)
	if err != nil {
		return fsError("cannot inspect mountpoint", err)
	}
	if !notMnt {
		if m.mountedFrom(mountpoint, source) {
			return errAlreadyMounted
		}
		return mounts.NewError(mounts.KindMountpointBusy, "another filesystem is mounted there")
	}

	empty, err := dirEmpty(mountpoint)
	if err != nil {
		return fsError("cannot read mountpoint", err)
	}
	if !empty {
		return mounts.NewError(mounts.KindMountpointBusy, "mountpoint directory is not empty")
	}
	return nil
}

func (m *Mounter) mountedFrom(mountpoint, source string) bool {
	mps, err := m.mounter.List()
	if err != nil {
		return false
	}
	for _, mp := range mps {
		if mp.Path != mountpoint {
			continue
		}
		share, err := mounts.ParseServer(mp.Device)
		if err == nil && strings.EqualFold(share.Source(), source) {
			return true
		}
	}
	return false
}

func dirEmpty(p string) (bool, error) {
	f, err := os.Open(p)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = f.Readdirnames(1)
	if errors.Is(err, io.EOF) {
		return true, nil
	}
	return false, err
}
