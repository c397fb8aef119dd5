// Package sweeper runs the periodic cleanup pass over durable state:
// hard-expired resources and stale update sessions. Pairing sessions evict
// themselves from their TTL cache and need no sweeping.
package sweeper

import (
	"context"
	"time"

	"github.com/dmitrijs2005/framekeeper/internal/logging"
	"github.com/dmitrijs2005/framekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/framekeeper/internal/server/registry"
	"github.com/dmitrijs2005/framekeeper/internal/server/updates"
)

type Sweeper struct {
	registry *registry.Service
	updates  *updates.Service
	logger   logging.Logger

	interval      time.Duration
	sessionMaxAge time.Duration
}

func New(reg *registry.Service, upd *updates.Service, interval, sessionMaxAge time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		registry:      reg,
		updates:       upd,
		logger:        logger.With("module", "sweeper"),
		interval:      interval,
		sessionMaxAge: sessionMaxAge,
	}
}

// Run sweeps on every tick until ctx is cancelled. A failed pass is logged
// and retried on the next tick; the loop never exits on error.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one cleanup pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	purged, err := s.registry.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error(ctx, "resource purge failed", "error", err.Error())
	} else if purged > 0 {
		s.logger.Info(ctx, "purged expired resources", "count", purged)
	}

	swept, err := s.updates.PurgeStale(ctx, s.sessionMaxAge)
	if err != nil {
		s.logger.Error(ctx, "session purge failed", "error", err.Error())
		return
	}
	if swept > 0 {
		metrics.SweptSessionsTotal.Add(float64(swept))
		s.logger.Info(ctx, "purged stale update sessions", "count", swept)
	}
}
