package viewmodels

import "encoding/json"

type BlockedJob struct {
	ID             string          `json:"id"`
	OriginalJobID  string          `json:"originalJobId"`
	WorkflowSlug   string          `json:"workflowSlug"`
	Status         string          `json:"status"`
	Reason         string          `json:"reason,omitempty"`
	Input          json.RawMessage `json:"input"`
	ResolutionData json.RawMessage `json:"resolutionData,omitempty"`
	Candidates     json.RawMessage `json:"candidates,omitempty"`
	CreatedAt      string          `json:"createdAt"`
	UpdatedAt      string          `json:"updatedAt"`
}

type BlockedJobList struct {
	Items []*BlockedJob `json:"items"`
	Total int64         `json:"total"`
}

type EnqueuedJob struct {
	JobID string `json:"jobId"`
}
