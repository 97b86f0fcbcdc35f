package scheduler

import (
	"context"
	"time"

	"handlit_backend/platform/logger"
)

const defaultIdempotencyCleanupInterval = time.Hour

// Purger deletes idempotency records past their retention.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// IdempotencyCleanup periodically removes expired idempotency records.
type IdempotencyCleanup struct {
	purger   Purger
	log      *logger.Logger
	interval time.Duration
}

func NewIdempotencyCleanup(purger Purger, log *logger.Logger, interval time.Duration) *IdempotencyCleanup {
	if interval <= 0 {
		interval = defaultIdempotencyCleanupInterval
	}
	return &IdempotencyCleanup{
		purger:   purger,
		log:      log,
		interval: interval,
	}
}

func (c *IdempotencyCleanup) Run(ctx context.Context) {
	if c == nil || c.purger == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *IdempotencyCleanup) cleanup(ctx context.Context) {
	deleted, err := c.purger.Purge(ctx)
	if err != nil {
		c.log.Warn("idempotency cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("idempotency cleanup deleted expired records", "deleted", deleted)
	}
}
