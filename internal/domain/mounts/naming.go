package mounts

import (
	"path/filepath"
	"strings"
)

// Share is a parsed server address.
type Share struct {
	Host string
	// Path is the share name plus any sub-directory, without a leading slash.
	Path string
}

// Source returns the UNC form mount.cifs expects: //host/share.
func (s Share) Source() string {
	return "//" + s.Host + "/" + s.Path
}

// ParseServer accepts //host/share, \\host\share, smb://host/share and
// host/share, with optional sub-directories.
func ParseServer(server string) (Share, error) {
	s := strings.TrimSpace(server)
	if s == "" {
		return Share{}, NewError(KindInvalidRequest, "server is required")
	}

	lower := strings.ToLower(s)
	for _, scheme := range []string{"smb://", "cifs://"} {
		if strings.HasPrefix(lower, scheme) {
			s = s[len(scheme):]
			break
		}
	}
	s = strings.ReplaceAll(s, `\`, "/")
	s = strings.TrimLeft(s, "/")

	host, rest, _ := strings.Cut(s, "/")
	rest = strings.Trim(rest, "/")
	if host == "" {
		return Share{}, Errorf(KindInvalidRequest, "server %q has no host", server)
	}
	if strings.ContainsAny(host, " ,") {
		return Share{}, Errorf(KindInvalidRequest, "server %q has an invalid host", server)
	}
	if rest == "" {
		return Share{}, Errorf(KindInvalidRequest, "server %q names no share; use //host/share", server)
	}
	// Commas would be parsed as extra mount options.
	if strings.Contains(rest, ",") {
		return Share{}, Errorf(KindInvalidRequest, "share path %q contains a comma", rest)
	}
	for _, part := range strings.Split(rest, "/") {
		if part == ".." {
			return Share{}, Errorf(KindInvalidRequest, "share path %q escapes the share", rest)
		}
	}
	return Share{Host: host, Path: rest}, nil
}

// CleanMountpoint validates and normalises a caller-supplied mountpoint.
func CleanMountpoint(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", NewError(KindInvalidRequest, "mountpoint is required")
	}
	if strings.ContainsRune(p, 0) {
		return "", NewError(KindInvalidRequest, "mountpoint contains a NUL byte")
	}
	if !filepath.IsAbs(p) {
		return "", Errorf(KindInvalidRequest, "mountpoint %q must be an absolute path", p)
	}
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return "", Errorf(KindInvalidRequest, "mountpoint %q must not contain ..", p)
		}
	}
	clean := filepath.Clean(p)
	if clean == string(filepath.Separator) {
		return "", NewError(KindInvalidRequest, "refusing to mount over /")
	}
	return clean, nil
}

// sanitizeName turns a share address into a single safe path component.
func sanitizeName(s Share) string {
	name := s.Host + "_" + s.Path
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	out = strings.ReplaceAll(out, "..", "_")
	if out == "" {
		out = "share"
	}
	return out
}
