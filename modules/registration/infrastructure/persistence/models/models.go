package models

import (
	"time"
)

type BlockedJob struct {
	ID             string
	OriginalJobID  string
	WorkflowSlug   string
	Input          []byte
	Status         string
	Reason         string
	ResolutionData []byte
	Candidates     []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
