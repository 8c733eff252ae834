//go:build !linux && !darwin

package cifs

import (
	"context"

	"k8s.io/mount-utils"
	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/domain/mounts"
)

// NewTable returns m unchanged; Mount and Unmount fail before using it.
func NewTable(m mount.Interface, _ exec.Interface) mount.Interface {
	return m
}

func (m *Mounter) helperCommand(context.Context, string, string, string, *mounts.Credentials) (exec.Cmd, string, error) {
	return nil, "", unsupported()
}
