package mappers

import (
	"time"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/modules/registration/presentation/viewmodels"
)

func BlockedJobToViewModel(b *blockedjob.BlockedJob) *viewmodels.BlockedJob {
	if b == nil {
		return nil
	}
	return &viewmodels.BlockedJob{
		ID:             b.ID.String(),
		OriginalJobID:  b.OriginalJobID.String(),
		WorkflowSlug:   b.WorkflowSlug,
		Status:         string(b.Status),
		Reason:         b.Reason,
		Input:          b.Input,
		ResolutionData: b.ResolutionData,
		Candidates:     b.Candidates,
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.Format(time.RFC3339),
	}
}

func BlockedJobsToViewModels(items []*blockedjob.BlockedJob) []*viewmodels.BlockedJob {
	out := make([]*viewmodels.BlockedJob, 0, len(items))
	for _, b := range items {
		out = append(out, BlockedJobToViewModel(b))
	}
	return out
}
