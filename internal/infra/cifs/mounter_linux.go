//go:build linux

package cifs

import (
	"context"
	"os"
	"strings"

	"k8s.io/mount-utils"
	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// NewTable returns m; mount-utils reads /proc/self/mountinfo on Linux.
func NewTable(m mount.Interface, _ exec.Interface) mount.Interface {
	return m
}

// helperCommand builds mount -t cifs. With a username the password is
// fed on stdin and PASSWD_FD=0 tells mount.cifs to read it from there.
func (m *Mounter) helperCommand(ctx context.Context, host, sharePath, mountpoint string, creds *mounts.Credentials) (exec.Cmd, string, error) {
	optStr, err := m.optionString(creds)
	if err != nil {
		return nil, "", err
	}
	source := mounts.Share{Host: host, Path: sharePath}.Source()

	cmd := command(ctx, m.exec, m.opts.UseSudo, "mount", "-t", "cifs", source, mountpoint, "-o", optStr)
	if creds.Username() != "" {
		cmd.SetEnv(append(os.Environ(), passwordEnv+"=0"))
		cmd.SetStdin(creds.PasswordReader())
	}
	return cmd, "-o " + optStr, nil
}

func (m *Mounter) optionString(creds *mounts.Credentials) (string, error) {
	opts := append([]string(nil), m.opts.MountOptions...)
	if m.opts.FileMode != "" {
		opts = append(opts, "file_mode="+m.opts.FileMode)
	}
	if m.opts.DirMode != "" {
		opts = append(opts, "dir_mode="+m.opts.DirMode)
	}

	user, domain := creds.Account()
	if strings.ContainsAny(user+domain, ",") {
		return "", mounts.NewError(mounts.KindInvalidRequest, "username must not contain commas")
	}
	if user == "" {
		opts = append(opts, "guest")
	} else {
		opts = append(opts, "username="+user)
		if domain != "" {
			opts = append(opts, "domain="+domain)
		}
	}
	return strings.Join(opts, ","), nil
}
