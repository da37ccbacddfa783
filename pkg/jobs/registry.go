package jobs

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Handler processes one job. A non-nil output is stored as the job result.
type Handler func(ctx context.Context, job Job) (any, error)

type Task struct {
	Slug string
	// Retries is the number of additional attempts after the first failure.
	Retries         int
	DeleteOnSuccess bool
	Handle          Handler
}

func (t Task) MaxAttempts() int {
	if t.Retries < 0 {
		return 1
	}
	return t.Retries + 1
}

// ScheduleDecision is returned by a schedule's BeforeSchedule hook.
type ScheduleDecision struct {
	ShouldSchedule bool
	Input          json.RawMessage
}

type Schedule struct {
	TaskSlug string
	// Cron is a standard five-field expression.
	Cron           string
	Queue          string
	BeforeSchedule func(ctx context.Context) (ScheduleDecision, error)
}

type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]Task
	schedules map[string]Schedule
}

func NewRegistry() *Registry {
	return &Registry{
		tasks:     make(map[string]Task),
		schedules: make(map[string]Schedule),
	}
}

func (r *Registry) Register(t Task) error {
	if t.Slug == "" {
		return invalidConfig("task slug is required")
	}
	if t.Handle == nil {
		return invalidConfig("task %q has no handler", t.Slug)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.Slug]; ok {
		return invalidConfig("task %q registered twice", t.Slug)
	}
	r.tasks[t.Slug] = t
	return nil
}

func (r *Registry) AddSchedule(s Schedule) error {
	if s.TaskSlug == "" || s.Cron == "" {
		return invalidConfig("schedule requires task slug and cron")
	}
	if s.Queue == "" {
		s.Queue = DefaultQueue
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[s.TaskSlug]; !ok {
		return invalidConfig("schedule for unregistered task %q", s.TaskSlug)
	}
	r.schedules[s.TaskSlug] = s
	return nil
}

func (r *Registry) Task(slug string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[slug]
	return t, ok
}

func (r *Registry) Schedule(slug string) (Schedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schedules[slug]
	return s, ok
}

// Schedules are returned sorted by task slug.
func (r *Registry) Schedules() []Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskSlug < out[j].TaskSlug })
	return out
}

func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks))
	for slug := range r.tasks {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}
