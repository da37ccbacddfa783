// Package blockedjob models a workflow run parked until an operator or the
// approval checker decides how it continues.
package blockedjob

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/registrar/pkg/serrors"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Reasons recorded on blocked jobs.
const (
	ReasonAmbiguousMatch   = "ambiguous_match"
	ReasonNoMatch          = "no_match"
	ReasonApprovalRequired = "approval_required"
)

var (
	ErrNotFound          = serrors.NewError("BLOCKED_JOB_NOT_FOUND", "blocked job not found", "Errors.BlockedJob.NotFound")
	ErrInvalidResolution = serrors.NewError("BLOCKED_JOB_INVALID_RESOLUTION", "resolution data must be a JSON object", "Errors.BlockedJob.InvalidResolution")
)

type BlockedJob struct {
	ID            uuid.UUID
	OriginalJobID uuid.UUID
	WorkflowSlug  string
	Input         json.RawMessage
	Status        Status
	Reason        string
	// ResolutionData is merged over Input when the job is resolved.
	ResolutionData json.RawMessage
	// Candidates are the provisional match results shown to reviewers.
	Candidates json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Option func(*BlockedJob)

func WithID(id uuid.UUID) Option {
	return func(b *BlockedJob) {
		b.ID = id
	}
}

func WithReason(reason string) Option {
	return func(b *BlockedJob) {
		b.Reason = reason
	}
}

func WithCandidates(candidates json.RawMessage) Option {
	return func(b *BlockedJob) {
		b.Candidates = candidates
	}
}

func WithCreatedAt(t time.Time) Option {
	return func(b *BlockedJob) {
		b.CreatedAt = t
		b.UpdatedAt = t
	}
}

// New returns a pending blocked job for the suspended queue job originalJobID.
func New(originalJobID uuid.UUID, workflowSlug string, input json.RawMessage, opts ...Option) *BlockedJob {
	now := time.Now().UTC()
	b := &BlockedJob{
		ID:            uuid.New(),
		OriginalJobID: originalJobID,
		WorkflowSlug:  workflowSlug,
		Input:         input,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if len(b.Input) == 0 {
		b.Input = json.RawMessage("{}")
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type FindParams struct {
	WorkflowSlug string
	Status       Status
	Reason       string
	Limit        int
	Offset       int
}

type Repository interface {
	// Create stores b, or returns the pending record already stored for the
	// same original job.
	Create(ctx context.Context, b *BlockedJob) (*BlockedJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (*BlockedJob, error)
	GetPendingByOriginalJobID(ctx context.Context, jobID uuid.UUID) (*BlockedJob, error)
	List(ctx context.Context, params FindParams) ([]*BlockedJob, error)
	Count(ctx context.Context, params FindParams) (int64, error)
	// UpdateStatus moves the record from one status to another and reports
	// false when it was not in from any more.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, resolutionData json.RawMessage) (bool, error)
	// Delete reports false when the record was already gone.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
