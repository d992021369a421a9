// Package worker runs the background loops of the worker process
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/pkg/logging"
)

// Purger drops expired trending data and reports how much it removed
type Purger interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper purges expired mentions on a fixed interval. Reads never depend
// on it; it only bounds storage.
type Sweeper struct {
	purger   Purger
	interval time.Duration
	logger   *zap.Logger
}

// NewSweeper creates a sweeper; a non-positive interval disables it
func NewSweeper(purger Purger, interval time.Duration) *Sweeper {
	return &Sweeper{
		purger:   purger,
		interval: interval,
		logger:   logging.WithComponent("sweeper"),
	}
}

// Run sweeps until ctx is cancelled. A failed sweep is logged and retried on
// the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("Trending sweeper disabled")
		<-ctx.Done()
		return nil
	}
	s.logger.Info("Starting trending sweeper", zap.Duration("interval", s.interval))

	for {
		s.sweepOnce(ctx)
		if !s.wait(ctx) {
			return nil
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	removed, err := s.purger.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Trending sweep failed", zap.Error(err))
		}
		return
	}
	if removed > 0 {
		s.logger.Info("Purged expired mentions", zap.Int64("removed", removed))
	} else {
		s.logger.Debug("Nothing to purge")
	}
}

// wait blocks for one interval; false means ctx was cancelled
func (s *Sweeper) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
