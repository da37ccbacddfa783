// Package blockedjobtest provides an in-memory blockedjob.Repository.
package blockedjobtest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
)

type Repository struct {
	mu   sync.Mutex
	docs map[uuid.UUID]blockedjob.BlockedJob
}

var _ blockedjob.Repository = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{docs: make(map[uuid.UUID]blockedjob.BlockedJob)}
}

func (r *Repository) Create(_ context.Context, b *blockedjob.BlockedJob) (*blockedjob.BlockedJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.OriginalJobID == b.OriginalJobID && d.Status == blockedjob.StatusPending {
			out := d
			return &out, nil
		}
	}
	r.docs[b.ID] = *b
	out := *b
	return &out, nil
}

func (r *Repository) GetByID(_ context.Context, id uuid.UUID) (*blockedjob.BlockedJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, blockedjob.ErrNotFound
	}
	return &d, nil
}

func (r *Repository) GetPendingByOriginalJobID(_ context.Context, jobID uuid.UUID) (*blockedjob.BlockedJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.OriginalJobID == jobID && d.Status == blockedjob.StatusPending {
			out := d
			return &out, nil
		}
	}
	return nil, blockedjob.ErrNotFound
}

func (r *Repository) filter(params blockedjob.FindParams) []blockedjob.BlockedJob {
	var out []blockedjob.BlockedJob
	for _, d := range r.docs {
		if params.WorkflowSlug != "" && d.WorkflowSlug != params.WorkflowSlug {
			continue
		}
		if params.Status != "" && d.Status != params.Status {
			continue
		}
		if params.Reason != "" && d.Reason != params.Reason {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r *Repository) List(_ context.Context, params blockedjob.FindParams) ([]*blockedjob.BlockedJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := r.filter(params)
	if params.Offset > 0 {
		if params.Offset >= len(docs) {
			return nil, nil
		}
		docs = docs[params.Offset:]
	}
	if params.Limit > 0 && len(docs) > params.Limit {
		docs = docs[:params.Limit]
	}
	out := make([]*blockedjob.BlockedJob, len(docs))
	for i := range docs {
		out[i] = &docs[i]
	}
	return out, nil
}

func (r *Repository) Count(_ context.Context, params blockedjob.FindParams) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.filter(params))), nil
}

func (r *Repository) UpdateStatus(_ context.Context, id uuid.UUID, from, to blockedjob.Status, resolutionData json.RawMessage) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok || d.Status != from {
		return false, nil
	}
	d.Status = to
	d.ResolutionData = resolutionData
	d.UpdatedAt = time.Now().UTC()
	r.docs[id] = d
	return true, nil
}

func (r *Repository) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return false, nil
	}
	delete(r.docs, id)
	return true, nil
}

func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}
