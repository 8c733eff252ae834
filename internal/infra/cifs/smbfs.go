package cifs

import (
	"net/url"
	"regexp"
	"strings"

	"k8s.io/mount-utils"
)

// smbfsURL builds the //[domain;]user@host/share argument of mount_smbfs.
// The password is never part of it. An empty user mounts as guest.
func smbfsURL(host, sharePath, user, domain string) string {
	var b strings.Builder
	b.WriteString("//")
	if user == "" {
		b.WriteString("guest:@")
	} else {
		if domain != "" {
			b.WriteString(escapeUserinfo(domain))
			b.WriteByte(';')
		}
		b.WriteString(escapeUserinfo(user))
		b.WriteByte('@')
	}
	b.WriteString(host)
	for _, seg := range strings.Split(sharePath, "/") {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}

func escapeUserinfo(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// smbfsArgs returns the mount_smbfs arguments. -N suppresses the password
// prompt, so it is only set for guest mounts. mount.options are cifs
// options and do not apply here.
func smbfsArgs(opts Options, shareURL, mountpoint string, guest bool) []string {
	var args []string
	if guest {
		args = append(args, "-N")
	}
	if opts.FileMode != "" {
		args = append(args, "-f", opts.FileMode)
	}
	if opts.DirMode != "" {
		args = append(args, "-d", opts.DirMode)
	}
	return append(args, shareURL, mountpoint)
}

// "//alice@nas/music on /Volumes/music (smbfs, nodev, nosuid, mounted by alice)"
var bsdMountLine = regexp.MustCompile(`^(.+?) on (.+) \(([^,)]+)`)

// parseMountList parses the output of a bare BSD mount. smbfs devices are
// reduced to //host/share so they compare equal to request sources.
func parseMountList(out []byte) []mount.MountPoint {
	var mps []mount.MountPoint
	for _, line := range strings.Split(string(out), "\n") {
		m := bsdMountLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		dev := m[1]
		if m[3] == "smbfs" {
			dev = smbfsDevice(dev)
		}
		mps = append(mps, mount.MountPoint{Device: dev, Path: m[2], Type: m[3]})
	}
	return mps
}

func smbfsDevice(dev string) string {
	rest, ok := strings.CutPrefix(dev, "//")
	if !ok {
		return dev
	}
	hostPart, sharePath, _ := strings.Cut(rest, "/")
	if i := strings.LastIndex(hostPart, "@"); i >= 0 {
		hostPart = hostPart[i+1:]
	}
	if p, err := url.PathUnescape(sharePath); err == nil {
		sharePath = p
	}
	return "//" + hostPart + "/" + sharePath
}
