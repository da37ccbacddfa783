package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/registrar/pkg/logging"
)

// Cleaner removes completed jobs past their retention. Failed and suspended
// jobs are kept for inspection.
type Cleaner struct {
	pool *pgxpool.Pool
	opts CleanerOptions
}

func NewCleaner(pool *pgxpool.Pool, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	opts.setDefaults()
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Cleaner{pool: pool, opts: opts}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}
	if !c.opts.Enabled {
		return nil
	}

	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		n, err := c.CleanOnce(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).Warn("jobs: cleaner tick failed")
			continue
		}
		if n > 0 {
			c.opts.Logger.WithField("deleted", n).Info("jobs: cleaned completed jobs")
		}
	}
}

func (c *Cleaner) CleanOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-c.opts.Retention)
	q := fmt.Sprintf(`DELETE FROM %s WHERE status = $1 AND completed_at < $2`, jobsTable)
	tag, err := c.pool.Exec(ctx, q, StatusCompleted, cutoff)
	if err != nil {
		return 0, fmt.Errorf("jobs cleaner delete completed: %w", err)
	}
	return tag.RowsAffected(), nil
}
