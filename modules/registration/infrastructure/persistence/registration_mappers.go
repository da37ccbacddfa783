package persistence

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/modules/registration/infrastructure/persistence/models"
)

func toDomainBlockedJob(m *models.BlockedJob) (*blockedjob.BlockedJob, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "parse blocked job id")
	}
	jobID, err := uuid.Parse(m.OriginalJobID)
	if err != nil {
		return nil, errors.Wrap(err, "parse original job id")
	}
	return &blockedjob.BlockedJob{
		ID:             id,
		OriginalJobID:  jobID,
		WorkflowSlug:   m.WorkflowSlug,
		Input:          json.RawMessage(m.Input),
		Status:         blockedjob.Status(m.Status),
		Reason:         m.Reason,
		ResolutionData: nullableJSON(m.ResolutionData),
		Candidates:     nullableJSON(m.Candidates),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}, nil
}

func toDBBlockedJob(b *blockedjob.BlockedJob) *models.BlockedJob {
	return &models.BlockedJob{
		ID:             b.ID.String(),
		OriginalJobID:  b.OriginalJobID.String(),
		WorkflowSlug:   b.WorkflowSlug,
		Input:          b.Input,
		Status:         string(b.Status),
		Reason:         b.Reason,
		ResolutionData: dbJSON(b.ResolutionData),
		Candidates:     dbJSON(b.Candidates),
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func nullableJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}

// dbJSON maps an empty document to SQL NULL.
func dbJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
