package cifs

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

var mountErrnoRe = regexp.MustCompile(`mount error\((\d+)\)`)

type errnoClass struct {
	kind mounts.Kind
	msg  string
}

type textRule struct {
	needles []string
	kind    mounts.Kind
	msg     string
}

// Checked in order; the first rule with a matching needle wins.
var textRules = []textRule{
	{
		needles: []string{"could not resolve address", "unable to find suitable address", "host is down",
			"no route to host", "network is unreachable", "connection refused", "connection timed out",
			"server connection failed"},
		kind: mounts.KindHostUnreachable,
	},
	{
		needles: []string{"logon failure", "nt_status_logon_failure", "access denied", "key has been rejected",
			"key has expired", "required key not available", "authentication error"},
		kind: mounts.KindAuthenticationFailed,
	},
	{
		needles: []string{"only root", "must be superuser", "operation not permitted",
			"a password is required", "permission denied"},
		kind: mounts.KindPermissionDenied,
	},
	{
		needles: []string{"already mounted", "device or resource busy", "target is busy", "resource busy", "file exists"},
		kind:    mounts.KindMountpointBusy,
	},
	{
		needles: []string{"no such file or directory"},
		kind:    mounts.KindOSError,
		msg:     "share or path not found on the server",
	},
}

// classify maps a failed helper run to an error kind. The errno printed
// by mount.cifs wins over text matching. Where the helper exits with an
// errno (mount_smbfs), the exit status is consulted last.
func classify(out []byte, err error) *mounts.Error {
	text := strings.TrimSpace(string(out))
	detail := text
	if detail == "" && err != nil {
		detail = err.Error()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &mounts.Error{Kind: mounts.KindTimeout, Detail: detail, Err: err}
	}
	if errors.Is(err, exec.ErrExecutableNotFound) {
		return &mounts.Error{Kind: mounts.KindOSError, Msg: "mount helper not installed", Detail: detail, Err: err}
	}

	if n, ok := parseMountErrno(text); ok {
		if c, ok := errnoKinds[n]; ok {
			return &mounts.Error{Kind: c.kind, Msg: c.msg, Detail: detail, Err: err}
		}
	}

	lower := strings.ToLower(text)
	for _, rule := range textRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return &mounts.Error{Kind: rule.kind, Msg: rule.msg, Detail: detail, Err: err}
			}
		}
	}

	msg := "mount helper failed"
	var ee exec.ExitError
	if errors.As(err, &ee) {
		if exitStatusIsErrno {
			if c, ok := errnoKinds[ee.ExitStatus()]; ok {
				return &mounts.Error{Kind: c.kind, Msg: c.msg, Detail: detail, Err: err}
			}
		}
		msg = "mount helper exited with status " + strconv.Itoa(ee.ExitStatus())
	}
	return &mounts.Error{Kind: mounts.KindOSError, Msg: msg, Detail: detail, Err: err}
}

func parseMountErrno(text string) (int, bool) {
	m := mountErrnoRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// notMounted reports whether umount said there was nothing to detach.
func notMounted(out []byte) bool {
	lower := strings.ToLower(string(out))
	return strings.Contains(lower, "not mounted") ||
		strings.Contains(lower, "not currently mounted") ||
		strings.Contains(lower, "no mount point specified")
}
