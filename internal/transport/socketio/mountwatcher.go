package socketio

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StartMountWatcher periodically reconciles the registry against the OS
// mount table and broadcasts the mounted list when shares drifted.
func (s *Server) StartMountWatcher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Debug().Msg("Mount watcher not started: interval disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Info().Dur("interval", interval).Msg("Mount watcher started")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Mount watcher stopped")
				return
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.reconcileOnce(ctx)
			}
		}
	}()
}

func (s *Server) reconcileOnce(ctx context.Context) {
	rep, err := s.mounts.Reconcile(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Mount watcher: reconcile failed")
		return
	}
	if !rep.Changed() {
		return
	}

	log.Info().
		Int("stale", len(rep.NewlyStale)).
		Int("resynced", len(rep.Resynced)).
		Int("evicted", len(rep.Evicted)).
		Msg("Mount watcher detected drift")
	s.debouncer.Trigger()
}
