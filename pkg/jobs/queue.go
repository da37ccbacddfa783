package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/registrar/pkg/composables"
	"github.com/iota-uz/registrar/pkg/repo"
)

const jobsTable = "jobs"

// Queue stores jobs. Implementations take part in the transaction carried by
// ctx, so enqueue and delete commit together with the caller's writes.
type Queue interface {
	Enqueue(ctx context.Context, params EnqueueParams) (*Job, error)
	Get(ctx context.Context, id uuid.UUID) (*Job, error)
	// Delete returns ErrJobNotFound when the job is already gone.
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, params ListParams) ([]Job, error)
	CountRunnableOrActive(ctx context.Context, params CountParams) (int, error)
}

type pgQueue struct {
	m *metrics
}

func NewPgQueue() Queue {
	return &pgQueue{m: getMetrics()}
}

func jobColumns() string {
	return `id, queue, task_slug, input, output, status, attempts, max_attempts, available_at,
		locked_at, last_error, scheduled, created_at, updated_at, completed_at`
}

func (q *pgQueue) Enqueue(ctx context.Context, params EnqueueParams) (*Job, error) {
	if params.TaskSlug == "" {
		return nil, invalidConfig("task slug is required")
	}
	if params.Queue == "" {
		params.Queue = DefaultQueue
	}
	if params.MaxAttempts <= 0 {
		params.MaxAttempts = 1
	}
	if len(params.Input) == 0 {
		params.Input = []byte("{}")
	}
	now := time.Now().UTC()
	if params.AvailableAt.IsZero() {
		params.AvailableAt = now
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	fields := []string{"id", "queue", "task_slug", "input", "status", "max_attempts", "available_at", "scheduled", "created_at", "updated_at"}
	job := &Job{
		ID:          uuid.New(),
		Queue:       params.Queue,
		TaskSlug:    params.TaskSlug,
		Input:       params.Input,
		Status:      StatusQueued,
		MaxAttempts: params.MaxAttempts,
		AvailableAt: params.AvailableAt,
		Scheduled:   params.Scheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	args := []any{job.ID, job.Queue, job.TaskSlug, []byte(job.Input), string(job.Status), job.MaxAttempts, job.AvailableAt, job.Scheduled, now, now}
	if _, err := tx.Exec(ctx, repo.Insert(jobsTable, fields), args...); err != nil {
		return nil, errors.Wrap(err, "insert job")
	}

	q.m.enqueueTotal.WithLabelValues(job.Queue, job.TaskSlug).Inc()
	return job, nil
}

func (q *pgQueue) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	row := tx.QueryRow(ctx, repo.Join("SELECT", jobColumns(), "FROM", jobsTable, "WHERE id = $1"), id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, errors.Wrap(err, "get job")
	}
	return job, nil
}

func (q *pgQueue) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", jobsTable), id)
	if err != nil {
		return errors.Wrap(err, "delete job")
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (q *pgQueue) List(ctx context.Context, params ListParams) ([]Job, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if params.Queue != "" {
		args = append(args, params.Queue)
		where = append(where, fmt.Sprintf("queue = $%d", len(args)))
	}
	if params.TaskSlug != "" {
		args = append(args, params.TaskSlug)
		where = append(where, fmt.Sprintf("task_slug = $%d", len(args)))
	}
	if len(params.Statuses) > 0 {
		args = append(args, statusStrings(params.Statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := repo.Join(
		"SELECT", jobColumns(),
		"FROM", jobsTable,
		repo.JoinWhere(where...),
		"ORDER BY created_at DESC",
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list jobs")
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan job")
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (q *pgQueue) CountRunnableOrActive(ctx context.Context, params CountParams) (int, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where := []string{"task_slug = $1", "status = ANY($2)"}
	args := []any{params.TaskSlug, statusStrings(RunnableOrActive())}
	if params.Queue != "" {
		args = append(args, params.Queue)
		where = append(where, fmt.Sprintf("queue = $%d", len(args)))
	}
	if params.OnlyScheduled {
		where = append(where, "scheduled")
	}

	var n int
	query := repo.Join("SELECT count(*) FROM", jobsTable, repo.JoinWhere(where...))
	if err := tx.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count runnable jobs")
	}
	return n, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job       Job
		status    string
		input     []byte
		output    []byte
		lastError *string
	)
	if err := row.Scan(
		&job.ID,
		&job.Queue,
		&job.TaskSlug,
		&input,
		&output,
		&status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.AvailableAt,
		&job.LockedAt,
		&lastError,
		&job.Scheduled,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.Input = input
	job.Output = output
	job.LastError = lastError
	return &job, nil
}
