package jobs

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const DefaultQueue = "default"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	// StatusSuspended jobs wait for an outside decision and are never claimed.
	StatusSuspended Status = "suspended"
)

// Job is a row of the jobs table.
type Job struct {
	ID          uuid.UUID
	Queue       string
	TaskSlug    string
	Input       json.RawMessage
	Output      json.RawMessage
	Status      Status
	Attempts    int
	MaxAttempts int
	AvailableAt time.Time
	LockedAt    *time.Time
	LastError   *string
	Scheduled   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// DecodeInput unmarshals the job input into v.
func (j Job) DecodeInput(v any) error {
	if len(j.Input) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(j.Input, v)
}

type EnqueueParams struct {
	Queue    string
	TaskSlug string
	Input    json.RawMessage
	// MaxAttempts of 0 is resolved from the task's retry budget.
	MaxAttempts int
	AvailableAt time.Time
	Scheduled   bool
}

type ListParams struct {
	Queue    string
	TaskSlug string
	Statuses []Status
	Limit    int
	Offset   int
}

type CountParams struct {
	Queue         string
	TaskSlug      string
	OnlyScheduled bool
}

// RunnableOrActive are the statuses that still lead to a handler invocation.
func RunnableOrActive() []Status {
	return []Status{StatusQueued, StatusProcessing}
}
