//go:build darwin

package cifs

import (
	"golang.org/x/sys/unix"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

const supported = true

// mount_smbfs exits with the errno of the failed step.
const exitStatusIsErrno = true

var forceUnmountArgs = []string{"-f"}

var errnoKinds = map[int]errnoClass{
	int(unix.EAUTH):        {kind: mounts.KindAuthenticationFailed},
	int(unix.ENEEDAUTH):    {kind: mounts.KindAuthenticationFailed, msg: "server requires credentials"},
	int(unix.EACCES):       {kind: mounts.KindPermissionDenied},
	int(unix.EPERM):        {kind: mounts.KindPermissionDenied},
	int(unix.EHOSTDOWN):    {kind: mounts.KindHostUnreachable, msg: "server is down"},
	int(unix.EHOSTUNREACH): {kind: mounts.KindHostUnreachable},
	int(unix.ENETUNREACH):  {kind: mounts.KindHostUnreachable, msg: "network unreachable"},
	int(unix.ETIMEDOUT):    {kind: mounts.KindHostUnreachable, msg: "connection to server timed out"},
	int(unix.ECONNREFUSED): {kind: mounts.KindHostUnreachable, msg: "server refused the connection"},
	int(unix.EBUSY):        {kind: mounts.KindMountpointBusy},
	int(unix.EEXIST):       {kind: mounts.KindMountpointBusy, msg: "mountpoint already in use"},
	int(unix.ENOENT):       {kind: mounts.KindOSError, msg: "share not found"},
	int(unix.EINVAL):       {kind: mounts.KindOSError, msg: "invalid mount arguments"},
}
