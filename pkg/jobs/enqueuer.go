package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Enqueuer resolves a task's retry budget from the registry and serializes
// the input before handing it to a Queue.
type Enqueuer struct {
	queue    Queue
	registry *Registry
}

func NewEnqueuer(queue Queue, registry *Registry) *Enqueuer {
	return &Enqueuer{queue: queue, registry: registry}
}

func (e *Enqueuer) Queue() Queue {
	return e.queue
}

func (e *Enqueuer) Enqueue(ctx context.Context, slug string, input any) (*Job, error) {
	raw, err := marshalInput(input)
	if err != nil {
		return nil, err
	}
	return e.EnqueueParams(ctx, EnqueueParams{TaskSlug: slug, Input: raw})
}

func (e *Enqueuer) EnqueueAt(ctx context.Context, slug string, input any, at time.Time) (*Job, error) {
	raw, err := marshalInput(input)
	if err != nil {
		return nil, err
	}
	return e.EnqueueParams(ctx, EnqueueParams{TaskSlug: slug, Input: raw, AvailableAt: at})
}

func (e *Enqueuer) EnqueueParams(ctx context.Context, params EnqueueParams) (*Job, error) {
	task, ok := e.registry.Task(params.TaskSlug)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, params.TaskSlug)
	}
	if params.MaxAttempts == 0 {
		params.MaxAttempts = task.MaxAttempts()
	}
	return e.queue.Enqueue(ctx, params)
}

func marshalInput(input any) (json.RawMessage, error) {
	switch v := input.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("jobs: input is not valid JSON")
		}
		return v, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal input: %w", err)
	}
	return raw, nil
}
