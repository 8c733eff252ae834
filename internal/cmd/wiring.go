package cmd

import (
	"errors"
	"fmt"

	"k8s.io/mount-utils"
	"k8s.io/utils/exec"

	"github.com/edumarques81/sambamount/internal/config"
	"github.com/edumarques81/sambamount/internal/domain/mounts"
	"github.com/edumarques81/sambamount/internal/infra/cifs"
	"github.com/edumarques81/sambamount/internal/infra/registry"
	"github.com/edumarques81/sambamount/internal/metrics"
)

// openManager opens the registry and builds a Manager on top of the OS
// helpers. The returned close func releases the registry lock.
func openManager(c *config.Config, mt *metrics.Metrics) (*mounts.Manager, func() error, error) {
	store, err := registry.Open(c.Registry.Path)
	if err != nil {
		if errors.Is(err, registry.ErrLocked) {
			return nil, nil, fmt.Errorf("%w: is 'sambamount serve' running?", err)
		}
		return nil, nil, fmt.Errorf("failed to open registry: %w", err)
	}

	opts := cifs.Options{
		MountOptions:   c.Mount.Options,
		FileMode:       c.Mount.FileMode,
		DirMode:        c.Mount.DirMode,
		UseSudo:        c.Mount.UseSudo,
		UnmountTimeout: c.Mount.UnmountTimeout,
	}
	runner := exec.New()
	table := cifs.NewTable(mount.New(""), runner)

	mgr := mounts.NewManager(
		store,
		cifs.NewMounter(runner, table, opts),
		cifs.NewUnmounter(runner, table, opts),
		table,
		mounts.WithConfig(mounts.Config{
			BaseDir:        c.Mount.BaseDir,
			MountTimeout:   c.Mount.Timeout,
			CleanupTimeout: c.Mount.UnmountTimeout,
			StaleGrace:     c.Reconcile.StaleGrace,
		}),
		mounts.WithMetrics(mt),
	)
	return mgr, store.Close, nil
}
