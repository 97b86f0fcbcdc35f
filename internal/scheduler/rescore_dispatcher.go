package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	defaultRescoreInterval = 15 * time.Minute
	defaultRescoreMaxAge   = 6 * time.Hour
	rescoreBatchSize       = 200
)

// StaleDealSource lists open deals whose stored score has gone stale.
type StaleDealSource interface {
	StaleDeals(ctx context.Context, maxAge time.Duration, limit int) ([]uuid.UUID, error)
}

// RescoreDispatcher enqueues a rescore task for every stale open deal so
// stored scores keep decaying between lifecycle events.
type RescoreDispatcher struct {
	client   *asynq.Client
	queue    string
	source   StaleDealSource
	log      *logger.Logger
	interval time.Duration
	maxAge   time.Duration
}

func NewRescoreDispatcher(cfg config.SchedulerConfig, source StaleDealSource, log *logger.Logger, interval, maxAge time.Duration) (*RescoreDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return newRescoreDispatcher(opt, cfg.GetAsynqQueueName(), source, log, interval, maxAge), nil
}

func newRescoreDispatcher(opt asynq.RedisConnOpt, queue string, source StaleDealSource, log *logger.Logger, interval, maxAge time.Duration) *RescoreDispatcher {
	if queue == "" {
		queue = "default"
	}
	if interval <= 0 {
		interval = defaultRescoreInterval
	}
	if maxAge <= 0 {
		maxAge = defaultRescoreMaxAge
	}
	return &RescoreDispatcher{
		client:   asynq.NewClient(opt),
		queue:    queue,
		source:   source,
		log:      log,
		interval: interval,
		maxAge:   maxAge,
	}
}

func (d *RescoreDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *RescoreDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.source == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := d.dispatch(ctx); err != nil {
			d.log.Warn("rescore dispatch failed", "error", err)
		}
	}
}

// dispatch enqueues one batch and returns how many tasks were added. Deals
// that already have a pending rescore are skipped.
func (d *RescoreDispatcher) dispatch(ctx context.Context) (int, error) {
	ids, err := d.source.StaleDeals(ctx, d.maxAge, rescoreBatchSize)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, id := range ids {
		task, err := NewDealRescoreTask(id)
		if err != nil {
			return enqueued, err
		}

		_, err = d.client.EnqueueContext(ctx, task,
			asynq.Queue(d.queue),
			asynq.TaskID(rescoreTaskID(id)),
			asynq.MaxRetry(3),
		)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			continue
		}
		if err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}
