package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/pkg/composables"
	"github.com/iota-uz/registrar/pkg/eventbus"
	"github.com/iota-uz/registrar/pkg/logging"
)

// TxRunner runs fn inside a transaction carried by the context it receives.
type TxRunner func(ctx context.Context, fn func(context.Context) error) error

type BlockedJobService struct {
	repo      blockedjob.Repository
	publisher eventbus.EventBus
	inTx      TxRunner
	log       *logrus.Entry
}

type BlockedJobServiceOption func(*BlockedJobService)

func WithTxRunner(fn TxRunner) BlockedJobServiceOption {
	return func(s *BlockedJobService) {
		s.inTx = fn
	}
}

func WithBlockedJobLogger(log *logrus.Entry) BlockedJobServiceOption {
	return func(s *BlockedJobService) {
		s.log = log
	}
}

func NewBlockedJobService(repo blockedjob.Repository, publisher eventbus.EventBus, opts ...BlockedJobServiceOption) *BlockedJobService {
	s := &BlockedJobService{
		repo:      repo,
		publisher: publisher,
		inTx:      composables.InTx,
		log:       logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "blocked_jobs")
	return s
}

type BlockParams struct {
	OriginalJobID uuid.UUID
	WorkflowSlug  string
	Input         json.RawMessage
	Reason        string
	// Candidates is marshalled as is; nil stores nothing.
	Candidates any
}

// ResolutionOutcome reports what a resolve or reject call did. Found is false
// when the record no longer exists; Applied is false when it had already left
// the pending state.
type ResolutionOutcome struct {
	Found   bool              `json:"found"`
	Applied bool              `json:"applied"`
	Status  blockedjob.Status `json:"status,omitempty"`
	Diff    jsondiff.Patch    `json:"diff,omitempty"`
}

// Block parks a workflow run. Blocking the same original job twice returns
// the record created the first time.
func (s *BlockedJobService) Block(ctx context.Context, p BlockParams) (*blockedjob.BlockedJob, error) {
	opts := []blockedjob.Option{blockedjob.WithReason(p.Reason)}
	if p.Candidates != nil {
		raw, err := json.Marshal(p.Candidates)
		if err != nil {
			return nil, errors.Wrap(err, "marshal candidates")
		}
		opts = append(opts, blockedjob.WithCandidates(raw))
	}
	doc := blockedjob.New(p.OriginalJobID, p.WorkflowSlug, p.Input, opts...)

	var stored *blockedjob.BlockedJob
	err := s.inTx(ctx, func(txCtx context.Context) error {
		var err error
		stored, err = s.repo.Create(txCtx, doc)
		if err != nil {
			return errors.Wrap(err, "create blocked job")
		}
		if stored.ID != doc.ID {
			return nil
		}
		if err := s.publisher.Publish(txCtx, blockedjob.Created{Job: *stored}); err != nil && !errors.Is(err, eventbus.ErrNoSubscribers) {
			return errors.Wrap(err, "publish blocked job created")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"blocked_job_id":  stored.ID.String(),
		"original_job_id": stored.OriginalJobID.String(),
		"workflow":        stored.WorkflowSlug,
		"reason":          stored.Reason,
	}).Info("workflow run blocked")
	return stored, nil
}

func (s *BlockedJobService) GetByID(ctx context.Context, id uuid.UUID) (*blockedjob.BlockedJob, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *BlockedJobService) List(ctx context.Context, params blockedjob.FindParams) ([]*blockedjob.BlockedJob, error) {
	return s.repo.List(ctx, params)
}

func (s *BlockedJobService) Count(ctx context.Context, params blockedjob.FindParams) (int64, error) {
	return s.repo.Count(ctx, params)
}

// Resolve moves a pending record to resolved, which requeues its workflow
// with data merged over the original input.
func (s *BlockedJobService) Resolve(ctx context.Context, id uuid.UUID, data json.RawMessage) (ResolutionOutcome, error) {
	if err := blockedjob.ValidateResolution(data); err != nil {
		return ResolutionOutcome{}, err
	}
	return s.transition(ctx, id, blockedjob.StatusResolved, data)
}

func (s *BlockedJobService) Reject(ctx context.Context, id uuid.UUID) (ResolutionOutcome, error) {
	return s.transition(ctx, id, blockedjob.StatusRejected, nil)
}

func (s *BlockedJobService) transition(ctx context.Context, id uuid.UUID, to blockedjob.Status, data json.RawMessage) (ResolutionOutcome, error) {
	var out ResolutionOutcome
	log := s.log.WithFields(logrus.Fields{"blocked_job_id": id.String(), "status": to})

	err := s.inTx(ctx, func(txCtx context.Context) error {
		doc, err := s.repo.GetByID(txCtx, id)
		if errors.Is(err, blockedjob.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out.Found = true
		out.Status = doc.Status
		if doc.Status != blockedjob.StatusPending {
			return nil
		}

		applied, err := s.repo.UpdateStatus(txCtx, id, blockedjob.StatusPending, to, data)
		if err != nil {
			return err
		}
		if !applied {
			return nil
		}

		current := *doc
		current.Status = to
		current.ResolutionData = data
		current.UpdatedAt = time.Now().UTC()
		out.Applied = true
		out.Status = to

		if to == blockedjob.StatusResolved {
			merged, err := blockedjob.MergeInput(doc.Input, data)
			if err != nil {
				return err
			}
			if out.Diff, err = blockedjob.Diff(doc.Input, merged); err != nil {
				return err
			}
		}

		if err := s.publisher.Publish(txCtx, blockedjob.StatusChanged{
			Previous: blockedjob.StatusPending,
			Current:  current,
		}); err != nil {
			return errors.Wrap(err, "publish status change")
		}
		return nil
	})
	if err != nil {
		return ResolutionOutcome{}, err
	}

	switch {
	case !out.Found:
		log.Warn("blocked job not found")
	case !out.Applied:
		log.WithField("current", out.Status).Info("blocked job no longer pending")
	default:
		log.WithField("diff", out.Diff.String()).Info("blocked job transitioned")
	}
	return out, nil
}
