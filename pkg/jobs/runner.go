package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/composables"
	"github.com/iota-uz/registrar/pkg/logging"
)

// Runner claims due jobs and dispatches them to their task handlers.
type Runner struct {
	pool     *pgxpool.Pool
	registry *Registry
	opts     RunnerOptions

	lockKey int64

	m           *metrics
	queuesLabel string
}

func NewRunner(pool *pgxpool.Pool, registry *Registry, opts RunnerOptions) (*Runner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if registry == nil {
		return nil, invalidConfig("registry is required")
	}

	opts.setDefaults()
	for _, q := range opts.Queues {
		if _, err := ParseQueue(q); err != nil {
			return nil, err
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}

	label := strings.Join(opts.Queues, ",")
	return &Runner{
		pool:        pool,
		registry:    registry,
		opts:        opts,
		m:           getMetrics(),
		queuesLabel: label,
		lockKey:     advisoryLockKey("jobs:" + label),
	}, nil
}

func (r *Runner) Run(ctx context.Context) error {
	if ctx == nil {
		return invalidConfig("ctx is required")
	}

	if r.opts.SingleActive {
		return r.runSingleActive(ctx)
	}

	r.m.runnerLeader.WithLabelValues(r.queuesLabel).Set(1)
	return r.runLoop(ctx, nil)
}

func (r *Runner) runSingleActive(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := r.pool.Acquire(ctx)
		if err != nil {
			r.opts.Logger.WithError(err).Warn("jobs: failed to acquire connection for single-active runner")
			if err := wait(ctx, r.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		leader, err := r.tryAcquireLeader(ctx, conn)
		if err != nil || !leader {
			conn.Release()
			if err != nil {
				r.opts.Logger.WithError(err).Warn("jobs: failed to attempt advisory lock")
			} else {
				r.m.runnerLeader.WithLabelValues(r.queuesLabel).Set(0)
			}
			if err := wait(ctx, r.opts.PollInterval); err != nil {
				return err
			}
			continue
		}

		r.m.runnerLeader.WithLabelValues(r.queuesLabel).Set(1)
		r.opts.Logger.WithField("queues", r.queuesLabel).Info("jobs: runner became leader")

		err = r.runLoop(ctx, conn)
		_ = r.releaseLeader(context.Background(), conn)
		conn.Release()
		return err
	}
}

func wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (r *Runner) runLoop(ctx context.Context, conn *pgxpool.Conn) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	nextDepthAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(nextDepthAt) {
			if err := r.observeQueueDepth(ctx, conn); err != nil {
				r.opts.Logger.WithError(err).Debug("jobs: observe queue depth failed")
			}
			nextDepthAt = time.Now().Add(r.opts.ObserveQueueDepthEvery)
		}

		if _, err := r.ProcessOnce(ctx, conn); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("jobs: process tick failed")
		}
	}
}

type claimed struct {
	Job
}

// outcome is what the runner does with a job after its handler returns.
type outcome string

const (
	outcomeComplete outcome = "success"
	outcomeSuspend  outcome = "suspended"
	outcomeRetry    outcome = "retry"
	outcomeFail     outcome = "failed"
)

func classify(err error, attempts, maxAttempts int) outcome {
	switch {
	case err == nil:
		return outcomeComplete
	case errors.Is(err, ErrSuspended):
		return outcomeSuspend
	case IsPermanent(err), errors.Is(err, ErrUnknownTask), attempts >= maxAttempts:
		return outcomeFail
	default:
		return outcomeRetry
	}
}

// ProcessOnce claims and dispatches one batch. conn may be nil, in which case
// the pool is used.
func (r *Runner) ProcessOnce(ctx context.Context, conn *pgxpool.Conn) (int, error) {
	now := time.Now()
	cutoff := now.Add(-r.opts.LockTTL)

	batch, err := r.claim(ctx, conn, now, cutoff)
	if err != nil {
		return 0, err
	}

	for _, c := range batch {
		r.dispatch(ctx, conn, c)
	}
	return len(batch), nil
}

func (r *Runner) dispatch(ctx context.Context, conn *pgxpool.Conn, c claimed) {
	log := r.opts.Logger.WithFields(logFields(c))

	task, ok := r.registry.Task(c.TaskSlug)
	var (
		output any
		err    error
	)
	start := time.Now()
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTask, c.TaskSlug)
	} else {
		output, err = r.invoke(ctx, task, c.Job)
	}
	latency := time.Since(start)

	result := classify(err, c.Attempts, c.MaxAttempts)
	r.recordDispatch(c, result, latency)

	var stateErr error
	switch result {
	case outcomeComplete:
		if task.DeleteOnSuccess {
			stateErr = r.exec(ctx, conn, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, jobsTable), c.ID)
			break
		}
		raw, mErr := marshalOutput(output)
		if mErr != nil {
			log.WithError(mErr).Warn("jobs: output not serializable; storing empty result")
		}
		stateErr = r.exec(ctx, conn, fmt.Sprintf(
			`UPDATE %s
			    SET status = $2, output = $3, locked_at = NULL, last_error = NULL,
			        completed_at = now(), updated_at = now()
			  WHERE id = $1 AND status = $4`, jobsTable),
			c.ID, string(StatusCompleted), raw, string(StatusProcessing))
	case outcomeSuspend:
		log.WithError(err).Info("jobs: job suspended")
		stateErr = r.setState(ctx, conn, c.ID, StatusSuspended, truncateError(err, r.opts.LastErrorMaxLen), nil)
	case outcomeFail:
		r.m.failedTotal.WithLabelValues(c.Queue, c.TaskSlug).Inc()
		log.WithError(err).Error("jobs: job failed")
		stateErr = r.setState(ctx, conn, c.ID, StatusFailed, truncateError(err, r.opts.LastErrorMaxLen), nil)
	case outcomeRetry:
		next := time.Now().Add(backoff(c.Attempts, r.opts.BaseBackoff, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
		log.WithError(err).WithField("retry_at", next).Warn("jobs: job will be retried")
		stateErr = r.setState(ctx, conn, c.ID, StatusQueued, truncateError(err, r.opts.LastErrorMaxLen), &next)
	}
	if stateErr != nil {
		log.WithError(stateErr).WithField("outcome", result).Warn("jobs: state update failed")
	}
}

func (r *Runner) invoke(ctx context.Context, task Task, job Job) (output any, err error) {
	dispatchCtx := composables.WithPool(ctx, r.pool)
	var cancel context.CancelFunc
	if r.opts.DispatchTimeout > 0 {
		dispatchCtx, cancel = context.WithTimeout(dispatchCtx, r.opts.DispatchTimeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("jobs: handler %s panicked: %v", task.Slug, rec)
		}
	}()
	return task.Handle(dispatchCtx, job)
}

func marshalOutput(output any) ([]byte, error) {
	if output == nil {
		return nil, nil
	}
	if raw, ok := output.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(output)
}

func (r *Runner) setState(ctx context.Context, conn *pgxpool.Conn, id uuid.UUID, status Status, lastError string, availableAt *time.Time) error {
	q := fmt.Sprintf(
		`UPDATE %s
		    SET status = $2,
		        locked_at = NULL,
		        last_error = $3,
		        available_at = COALESCE($4, available_at),
		        updated_at = now()
		  WHERE id = $1 AND status = $5`,
		jobsTable,
	)
	return r.exec(ctx, conn, q, id, string(status), lastError, availableAt, string(StatusProcessing))
}

func (r *Runner) claim(ctx context.Context, conn *pgxpool.Conn, now, lockCutoff time.Time) ([]claimed, error) {
	exec := txExec{pool: r.pool, conn: conn}
	tx, err := exec.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.rollback(ctx)

	q := fmt.Sprintf(
		`SELECT id, queue, task_slug, input, attempts, max_attempts, scheduled, created_at
		   FROM %s
		  WHERE queue = ANY($1)
		    AND ((status = 'queued' AND available_at <= $2)
		      OR (status = 'processing' AND locked_at < $3))
		  ORDER BY available_at, created_at
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`,
		jobsTable,
	)
	rows, err := tx.tx.Query(ctx, q, r.opts.Queues, now, lockCutoff, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("jobs claim select: %w", err)
	}
	defer rows.Close()

	var items []claimed
	var ids []uuid.UUID
	for rows.Next() {
		var c claimed
		if err := rows.Scan(&c.ID, &c.Queue, &c.TaskSlug, &c.Input, &c.Attempts, &c.MaxAttempts, &c.Scheduled, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("jobs claim scan: %w", err)
		}
		c.Attempts++
		c.Status = StatusProcessing
		lockedAt := now
		c.LockedAt = &lockedAt
		items = append(items, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs claim rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, tx.commit(ctx)
	}

	update := fmt.Sprintf(
		`UPDATE %s SET status = 'processing', locked_at = $1, attempts = attempts + 1, updated_at = $1 WHERE id = ANY($2)`,
		jobsTable,
	)
	if _, err := tx.tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
		return nil, fmt.Errorf("jobs claim update: %w", err)
	}

	if err := tx.commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Runner) exec(ctx context.Context, conn *pgxpool.Conn, sql string, args ...any) error {
	exec := txExec{pool: r.pool, conn: conn}
	if _, err := exec.execer().Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("jobs state update: %w", err)
	}
	return nil
}

func (r *Runner) observeQueueDepth(ctx context.Context, conn *pgxpool.Conn) error {
	exec := txExec{pool: r.pool, conn: conn}
	q := fmt.Sprintf(
		`SELECT queue,
		        count(*) FILTER (WHERE status = 'queued'),
		        count(*) FILTER (WHERE status = 'processing')
		   FROM %s
		  WHERE queue = ANY($1)
		  GROUP BY queue`,
		jobsTable,
	)
	rows, err := exec.execer().Query(ctx, q, r.opts.Queues)
	if err != nil {
		return fmt.Errorf("jobs queue depth: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			queue              string
			queued, processing int64
		)
		if err := rows.Scan(&queue, &queued, &processing); err != nil {
			return fmt.Errorf("jobs queue depth scan: %w", err)
		}
		r.m.queued.WithLabelValues(queue).Set(float64(queued))
		r.m.processing.WithLabelValues(queue).Set(float64(processing))
	}
	return rows.Err()
}

func (r *Runner) recordDispatch(c claimed, result outcome, latency time.Duration) {
	r.m.dispatchTotal.WithLabelValues(c.Queue, c.TaskSlug, string(result)).Inc()
	r.m.dispatchLatency.WithLabelValues(c.Queue, c.TaskSlug, string(result)).Observe(latency.Seconds())
}

func (r *Runner) tryAcquireLeader(ctx context.Context, conn *pgxpool.Conn) (bool, error) {
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (r *Runner) releaseLeader(ctx context.Context, conn *pgxpool.Conn) error {
	var ok bool
	return conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey).Scan(&ok)
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

type txExec struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

func (e txExec) begin(ctx context.Context) (*txWrap, error) {
	var (
		tx  pgx.Tx
		err error
	)
	if e.conn != nil {
		tx, err = e.conn.BeginTx(ctx, pgx.TxOptions{})
	} else {
		tx, err = e.pool.BeginTx(ctx, pgx.TxOptions{})
	}
	if err != nil {
		return nil, err
	}
	return &txWrap{tx: tx}, nil
}

func (e txExec) execer() execer {
	if e.conn != nil {
		return e.conn
	}
	return e.pool
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type txWrap struct {
	tx pgx.Tx
}

func (t *txWrap) commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txWrap) rollback(ctx context.Context) {
	_ = t.tx.Rollback(ctx)
}

func logFields(c claimed) logrus.Fields {
	return logrus.Fields{
		"job_id":       c.ID.String(),
		"queue":        c.Queue,
		"task":         c.TaskSlug,
		"attempts":     c.Attempts,
		"max_attempts": c.MaxAttempts,
	}
}
