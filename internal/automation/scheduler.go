package automation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Scheduler drives the due-date sweep on a fixed interval. One sweep runs
// immediately on start, then one per tick until the context is cancelled.
type Scheduler struct {
	Service  Service
	Interval time.Duration
	Log      zerolog.Logger
}

func (s Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	s.Log.Info().Dur("interval", interval).Msg("due date scheduler started")

	s.Service.RunDueDateSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("due date scheduler stopped")
			return
		case <-ticker.C:
			s.Service.RunDueDateSweep(ctx)
		}
	}
}
