package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/modules/registration/infrastructure/persistence/models"
	"github.com/iota-uz/registrar/pkg/composables"
	"github.com/iota-uz/registrar/pkg/repo"
)

const (
	blockedJobSelect = `SELECT id, original_job_id, workflow_slug, input, status, reason, resolution_data, candidates,
		created_at, updated_at FROM blocked_jobs`

	blockedJobInsert = `INSERT INTO blocked_jobs (id, original_job_id, workflow_slug, input, status, reason,
		resolution_data, candidates, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (original_job_id) WHERE status = 'pending' DO NOTHING
		RETURNING id`
)

type BlockedJobRepository struct{}

func NewBlockedJobRepository() blockedjob.Repository {
	return &BlockedJobRepository{}
}

func (r *BlockedJobRepository) Create(ctx context.Context, b *blockedjob.BlockedJob) (*blockedjob.BlockedJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	m := toDBBlockedJob(b)

	var id string
	err = tx.QueryRow(ctx, blockedJobInsert,
		m.ID,
		m.OriginalJobID,
		m.WorkflowSlug,
		m.Input,
		m.Status,
		m.Reason,
		m.ResolutionData,
		m.Candidates,
		m.CreatedAt,
		m.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.GetPendingByOriginalJobID(ctx, b.OriginalJobID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to insert blocked job")
	}
	return r.GetByID(ctx, b.ID)
}

func (r *BlockedJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*blockedjob.BlockedJob, error) {
	docs, err := r.queryBlockedJobs(ctx, blockedJobSelect+" WHERE id = $1", id.String())
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.Wrapf(blockedjob.ErrNotFound, "id %s", id)
	}
	return docs[0], nil
}

func (r *BlockedJobRepository) GetPendingByOriginalJobID(ctx context.Context, jobID uuid.UUID) (*blockedjob.BlockedJob, error) {
	docs, err := r.queryBlockedJobs(ctx,
		blockedJobSelect+" WHERE original_job_id = $1 AND status = $2",
		jobID.String(), string(blockedjob.StatusPending),
	)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.Wrapf(blockedjob.ErrNotFound, "original job %s", jobID)
	}
	return docs[0], nil
}

func buildBlockedJobFilters(params blockedjob.FindParams) ([]string, []any) {
	var where []string
	var args []any
	if params.WorkflowSlug != "" {
		args = append(args, params.WorkflowSlug)
		where = append(where, fmt.Sprintf("workflow_slug = $%d", len(args)))
	}
	if params.Status != "" {
		args = append(args, string(params.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if params.Reason != "" {
		args = append(args, params.Reason)
		where = append(where, fmt.Sprintf("reason = $%d", len(args)))
	}
	return where, args
}

func (r *BlockedJobRepository) List(ctx context.Context, params blockedjob.FindParams) ([]*blockedjob.BlockedJob, error) {
	where, args := buildBlockedJobFilters(params)
	query := repo.Join(
		blockedJobSelect,
		repo.JoinWhere(where...),
		"ORDER BY created_at ASC, id ASC",
		repo.FormatLimitOffset(params.Limit, params.Offset),
	)
	return r.queryBlockedJobs(ctx, query, args...)
}

func (r *BlockedJobRepository) Count(ctx context.Context, params blockedjob.FindParams) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	where, args := buildBlockedJobFilters(params)
	var n int64
	if err := tx.QueryRow(ctx, repo.Join("SELECT COUNT(*) FROM blocked_jobs", repo.JoinWhere(where...)), args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count blocked jobs")
	}
	return n, nil
}

func (r *BlockedJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to blockedjob.Status, resolutionData json.RawMessage) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx,
		repo.Update("blocked_jobs", []string{"status", "resolution_data", "updated_at"}, "id = $4", "status = $5"),
		string(to), dbJSON(resolutionData), time.Now().UTC(), id.String(), string(from),
	)
	if err != nil {
		return false, errors.Wrap(err, "failed to update blocked job status")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BlockedJobRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM blocked_jobs WHERE id = $1`, id.String())
	if err != nil {
		return false, errors.Wrap(err, "failed to delete blocked job")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *BlockedJobRepository) queryBlockedJobs(ctx context.Context, query string, args ...any) ([]*blockedjob.BlockedJob, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var docs []*blockedjob.BlockedJob
	for rows.Next() {
		var m models.BlockedJob
		if err := rows.Scan(
			&m.ID,
			&m.OriginalJobID,
			&m.WorkflowSlug,
			&m.Input,
			&m.Status,
			&m.Reason,
			&m.ResolutionData,
			&m.Candidates,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan blocked job row")
		}
		doc, err := toDomainBlockedJob(&m)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return docs, nil
}
