//go:build linux

package cifs

import (
	"golang.org/x/sys/unix"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

const supported = true

// mount.cifs reports its errno in the output, not the exit status.
const exitStatusIsErrno = false

// umount -l detaches now and cleans up once the share is no longer busy.
var forceUnmountArgs = []string{"-f", "-l"}

// errnoKinds maps the errno in "mount error(N)" to a kind.
var errnoKinds = map[int]errnoClass{
	int(unix.EACCES):       {kind: mounts.KindAuthenticationFailed},
	int(unix.ENOKEY):       {kind: mounts.KindAuthenticationFailed},
	int(unix.EKEYEXPIRED):  {kind: mounts.KindAuthenticationFailed, msg: "credentials expired"},
	int(unix.EKEYREJECTED): {kind: mounts.KindAuthenticationFailed},
	int(unix.EHOSTDOWN):    {kind: mounts.KindHostUnreachable, msg: "server is down"},
	int(unix.EHOSTUNREACH): {kind: mounts.KindHostUnreachable},
	int(unix.ENETUNREACH):  {kind: mounts.KindHostUnreachable, msg: "network unreachable"},
	int(unix.ETIMEDOUT):    {kind: mounts.KindHostUnreachable, msg: "connection to server timed out"},
	int(unix.ECONNREFUSED): {kind: mounts.KindHostUnreachable, msg: "server refused the connection"},
	int(unix.ECONNRESET):   {kind: mounts.KindHostUnreachable, msg: "server reset the connection"},
	int(unix.EPERM):        {kind: mounts.KindPermissionDenied},
	int(unix.EBUSY):        {kind: mounts.KindMountpointBusy},
	int(unix.ENOENT):       {kind: mounts.KindOSError, msg: "share not found"},
	int(unix.ENODEV):       {kind: mounts.KindOSError, msg: "kernel has no cifs support"},
	int(unix.EOPNOTSUPP):   {kind: mounts.KindOSError, msg: "server does not support the requested SMB dialect"},
	int(unix.EINVAL):       {kind: mounts.KindOSError, msg: "invalid mount options"},
}
