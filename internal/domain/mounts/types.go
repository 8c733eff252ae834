// Package mounts manages SMB/CIFS share mounts: the request/record model,
// the error taxonomy, credential handling, the mount manager and the
// reconciler that keeps the registry honest against the OS mount table.
package mounts

import (
	"context"
	"time"
)

// State is the lifecycle state of a MountRecord.
type State string

const (
	// StateMounted means the share is believed to be attached.
	StateMounted State = "mounted"
	// StateUnmounting means an unmount is in flight for the mountpoint.
	StateUnmounting State = "unmounting"
	// StateStale means the OS table no longer shows the mount.
	StateStale State = "stale"
)

// MountRequest is a request to attach a share.
type MountRequest struct {
	Server   string `json:"server" validate:"required"`
	Username string `json:"username,omitempty" validate:"omitempty,max=256"`
	// Password is owned by the manager once passed to Mount and is
	// cleared before Mount returns.
	Password   []byte `json:"-"`
	Mountpoint string `json:"mountpoint,omitempty" validate:"omitempty,startswith=/"`
}

// MountRecord is the registry's entry for one mountpoint.
// Credentials are never part of it; Username is kept for display only.
type MountRecord struct {
	ID         string    `json:"id"`
	Server     string    `json:"server"`
	SharePath  string    `json:"share_path,omitempty"`
	Mountpoint string    `json:"mountpoint"`
	Username   string    `json:"username,omitempty"`
	MountedAt  time.Time `json:"mounted_at"`
	State      State     `json:"state"`
	StaleSince time.Time `json:"stale_since,omitempty"`
	Adopted    bool      `json:"adopted,omitempty"`
}

// MountResult is returned by Manager.Mount.
type MountResult struct {
	Mountpoint     string      `json:"mountpoint"`
	Server         string      `json:"server"`
	AlreadyMounted bool        `json:"alreadyMounted"`
	Record         MountRecord `json:"-"`
}

// UnmountOptions tunes Manager.Unmount.
type UnmountOptions struct {
	// Force detaches the share even when it is busy or the graceful
	// unmount hangs. In-flight writes on the share may be lost.
	Force bool
}

// MountInfo is the caller-facing summary of a mounted share.
type MountInfo struct {
	Server     string `json:"server"`
	Mountpoint string `json:"mountpoint"`
}

// Info returns the caller-facing summary of the record.
func (r MountRecord) Info() MountInfo {
	return MountInfo{Server: r.Server, Mountpoint: r.Mountpoint}
}

// Infos converts records to caller-facing summaries, preserving order.
func Infos(records []MountRecord) []MountInfo {
	out := make([]MountInfo, 0, len(records))
	for _, r := range records {
		out = append(out, r.Info())
	}
	return out
}

// LiveMountEntry is one share mount read from the OS mount table.
type LiveMountEntry struct {
	Device string `json:"device"`
	Path   string `json:"path"`
	Type   string `json:"type"`
}

// Invoker attaches a share at a mountpoint.
type Invoker interface {
	Mount(ctx context.Context, host, sharePath, mountpoint string, creds *Credentials) error
}

// UnmountInvoker detaches whatever is mounted at a mountpoint.
type UnmountInvoker interface {
	Unmount(ctx context.Context, mountpoint string, force bool) error
}

// Store is the durable mount registry.
type Store interface {
	Upsert(rec MountRecord) error
	Remove(mountpoint string) error
	Find(mountpoint string) (MountRecord, bool)
	All() []MountRecord
}
