// Package cifs invokes the OS SMB mount helpers (mount.cifs on Linux,
// mount_smbfs on macOS) and classifies their failures into mount manager
// error kinds.
package cifs

import (
	"context"
	"errors"
	"io/fs"
	"runtime"
	"time"

	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// Options configures how the helper is invoked.
type Options struct {
	// MountOptions are passed to mount.cifs -o before the credential
	// options. mount_smbfs ignores them.
	MountOptions []string
	FileMode     string
	DirMode      string
	// UseSudo runs the helpers through non-interactive sudo.
	UseSudo bool
	// UnmountTimeout bounds each umount attempt.
	UnmountTimeout time.Duration
}

// DefaultOptions matches the service configuration defaults.
func DefaultOptions() Options {
	return Options{
		MountOptions:   []string{"vers=3.0", "iocharset=utf8", "soft", "noperm"},
		FileMode:       "0644",
		DirMode:        "0755",
		UnmountTimeout: 10 * time.Second,
	}
}

// passwordEnv tells mount.cifs to read the password from file descriptor 0.
const passwordEnv = "PASSWD_FD"

func command(ctx context.Context, e exec.Interface, useSudo bool, name string, args ...string) exec.Cmd {
	if !useSudo {
		return e.CommandContext(ctx, name, args...)
	}
	sudoArgs := append([]string{"-n", "--preserve-env=" + passwordEnv, name}, args...)
	return e.CommandContext(ctx, "sudo", sudoArgs...)
}

func unsupported() error {
	if supported {
		return nil
	}
	return mounts.Errorf(mounts.KindOSError, "SMB mounts are not supported on %s", runtime.GOOS)
}

// fsError classifies a local filesystem failure on the mountpoint.
func fsError(msg string, err error) *mounts.Error {
	kind := mounts.KindOSError
	if errors.Is(err, fs.ErrPermission) {
		kind = mounts.KindPermissionDenied
	}
	return &mounts.Error{Kind: kind, Msg: msg, Detail: err.Error(), Err: err}
}
