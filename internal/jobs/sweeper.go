package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/crewdesk/crewdesk/internal/config"
	"github.com/crewdesk/crewdesk/pkg/log"
)

// Sweeper periodically deletes finished jobs past retention. Implements
// srv.Service.
type Sweeper struct {
	store *Store
	cfg   *config.JobsConfig

	shutdownTimeout time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store *Store, cfg *config.JobsConfig) *Sweeper {
	return &Sweeper{
		store:           store,
		cfg:             cfg,
		shutdownTimeout: 5 * time.Second,
		done:            make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = log.FromCtx(ctx).WithContext(runCtx)
	s.cancel = cancel

	go s.loop(runCtx)
	return nil
}

func (s *Sweeper) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
		return nil
	case <-time.After(s.shutdownTimeout):
		return errors.New("sweeper shutdown timed out")
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	logger := log.FromCtx(ctx)
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := time.Now().UTC()
		removed, err := s.store.Sweep(ctx,
			now.Add(-s.cfg.CompletedRetention),
			now.Add(-s.cfg.DeadRetention),
		)
		if err != nil {
			logger.Error().Err(err).Msg("job sweep failed")
			continue
		}
		if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("swept finished jobs")
		}
	}
}
