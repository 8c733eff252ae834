//go:build darwin

package cifs

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
	"k8s.io/mount-utils"
	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// smbfsTable fills in the two lookups mount-utils leaves unimplemented
// on macOS.
type smbfsTable struct {
	mount.Interface
	exec exec.Interface
}

// NewTable wraps m with a mount table read from the mount command.
func NewTable(m mount.Interface, e exec.Interface) mount.Interface {
	return &smbfsTable{Interface: m, exec: e}
}

func (t *smbfsTable) List() ([]mount.MountPoint, error) {
	out, err := t.exec.Command("mount").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}
	return parseMountList(out), nil
}

// IsLikelyNotMountPoint compares the device of file with its parent.
func (t *smbfsTable) IsLikelyNotMountPoint(file string) (bool, error) {
	var st, parent unix.Stat_t
	if err := unix.Stat(file, &st); err != nil {
		return true, err
	}
	if err := unix.Stat(filepath.Dir(filepath.Clean(file)), &parent); err != nil {
		return true, err
	}
	return st.Dev == parent.Dev, nil
}

// helperCommand builds mount_smbfs. Without -N the helper prompts for the
// password and, with no terminal attached, reads the answer from stdin.
func (m *Mounter) helperCommand(ctx context.Context, host, sharePath, mountpoint string, creds *mounts.Credentials) (exec.Cmd, string, error) {
	user, domain := creds.Account()
	guest := user == ""
	args := smbfsArgs(m.opts, smbfsURL(host, sharePath, user, domain), mountpoint, guest)

	cmd := command(ctx, m.exec, m.opts.UseSudo, "mount_smbfs", args...)
	if !guest {
		cmd.SetStdin(io.MultiReader(creds.PasswordReader(), strings.NewReader("\n")))
	}
	return cmd, strings.Join(args, " "), nil
}
