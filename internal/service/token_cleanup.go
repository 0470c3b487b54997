package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipmark/clipmark-api/pkg/config"
	"github.com/clipmark/clipmark-api/pkg/jobs"
)

const sweepJobType = "refresh_token_sweep"

type tokenSweepRepository interface {
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenCleanup periodically purges refresh tokens that expired longer ago
// than the retention window. Revocation never deletes rows, so without the
// sweep the token table grows without bound.
type TokenCleanup struct {
	repo    tokenSweepRepository
	cfg     config.RetentionConfig
	logger  *zap.Logger
	metrics *MetricsService
	queue   *jobs.Queue
	cancel  context.CancelFunc
	now     func() time.Time
}

// NewTokenCleanup constructs the sweep service. The metrics service may be
// nil.
func NewTokenCleanup(repo tokenSweepRepository, cfg config.RetentionConfig, logger *zap.Logger, metrics *MetricsService) *TokenCleanup {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &TokenCleanup{
		repo:    repo,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	c.queue = jobs.NewQueue("token-cleanup", c.sweep, jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 3,
		RetryDelay: time.Minute,
		Logger:     logger,
	})
	return c
}

// Start launches the queue workers and the ticker that enqueues a sweep
// every interval. An immediate first sweep runs on startup.
func (c *TokenCleanup) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.queue.Start(ctx)
	c.enqueue()

	go func() {
		ticker := time.NewTicker(c.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.enqueue()
			}
		}
	}()
}

// Stop halts the ticker and waits for in-flight sweeps to finish.
func (c *TokenCleanup) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.queue.Stop()
}

func (c *TokenCleanup) enqueue() {
	if err := c.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: sweepJobType}); err != nil {
		c.logger.Warn("failed to enqueue token sweep", zap.Error(err))
	}
}

func (c *TokenCleanup) sweep(ctx context.Context, job jobs.Job) error {
	cutoff := c.now().UTC().Add(-c.cfg.MaxAge)
	started := c.now()

	deleted, err := c.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	c.metrics.ObserveDBQuery("delete_expired_tokens", time.Since(started))
	if deleted > 0 {
		c.logger.Info("purged expired refresh tokens", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return nil
}
