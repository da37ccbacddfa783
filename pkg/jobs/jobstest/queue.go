// Package jobstest provides an in-memory jobs.Queue for unit tests.
package jobstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iota-uz/registrar/pkg/jobs"
)

type Queue struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]jobs.Job
	seq  []uuid.UUID
}

var _ jobs.Queue = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{jobs: make(map[uuid.UUID]jobs.Job)}
}

func (q *Queue) Enqueue(_ context.Context, params jobs.EnqueueParams) (*jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	if params.Queue == "" {
		params.Queue = jobs.DefaultQueue
	}
	if params.AvailableAt.IsZero() {
		params.AvailableAt = now
	}
	if len(params.Input) == 0 {
		params.Input = []byte("{}")
	}
	job := jobs.Job{
		ID:          uuid.New(),
		Queue:       params.Queue,
		TaskSlug:    params.TaskSlug,
		Input:       append([]byte(nil), params.Input...),
		Status:      jobs.StatusQueued,
		MaxAttempts: params.MaxAttempts,
		AvailableAt: params.AvailableAt,
		Scheduled:   params.Scheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.jobs[job.ID] = job
	q.seq = append(q.seq, job.ID)
	return &job, nil
}

// Put stores job as is, for seeding fixtures in a given state.
func (q *Queue) Put(job jobs.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if _, ok := q.jobs[job.ID]; !ok {
		q.seq = append(q.seq, job.ID)
	}
	q.jobs[job.ID] = job
}

func (q *Queue) Get(_ context.Context, id uuid.UUID) (*jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return &job, nil
}

func (q *Queue) Delete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.jobs[id]; !ok {
		return jobs.ErrJobNotFound
	}
	delete(q.jobs, id)
	return nil
}

func (q *Queue) List(_ context.Context, params jobs.ListParams) ([]jobs.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []jobs.Job
	for _, id := range q.seq {
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		if params.Queue != "" && job.Queue != params.Queue {
			continue
		}
		if params.TaskSlug != "" && job.TaskSlug != params.TaskSlug {
			continue
		}
		if len(params.Statuses) > 0 && !hasStatus(params.Statuses, job.Status) {
			continue
		}
		out = append(out, job)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if params.Offset > 0 {
		if params.Offset >= len(out) {
			return nil, nil
		}
		out = out[params.Offset:]
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (q *Queue) CountRunnableOrActive(_ context.Context, params jobs.CountParams) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, job := range q.jobs {
		if job.TaskSlug != params.TaskSlug {
			continue
		}
		if params.Queue != "" && job.Queue != params.Queue {
			continue
		}
		if params.OnlyScheduled && !job.Scheduled {
			continue
		}
		if hasStatus(jobs.RunnableOrActive(), job.Status) {
			n++
		}
	}
	return n, nil
}

// BySlug returns the jobs for slug in enqueue order.
func (q *Queue) BySlug(slug string) []jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Job
	for _, id := range q.seq {
		if job, ok := q.jobs[id]; ok && job.TaskSlug == slug {
			out = append(out, job)
		}
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func hasStatus(list []jobs.Status, s jobs.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
