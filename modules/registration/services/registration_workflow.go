package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/modules/registration/hitobito"
	"github.com/iota-uz/registrar/modules/registration/matcher"
	"github.com/iota-uz/registrar/pkg/constants"
	"github.com/iota-uz/registrar/pkg/jobs"
	"github.com/iota-uz/registrar/pkg/logging"
	"github.com/iota-uz/registrar/pkg/serrors"
)

var ErrInvalidInput = serrors.NewError("REGISTRATION_INVALID_INPUT", "invalid registration input", "Errors.Registration.InvalidInput")

// RegistrationInput is the payload every registration step receives. Unknown
// keys are carried along untouched between steps.
type RegistrationInput struct {
	PeopleID        string            `json:"peopleId,omitempty"`
	FirstName       string            `json:"firstName,omitempty" validate:"required_without_all=PeopleID ResolvedUserID"`
	LastName        string            `json:"lastName,omitempty" validate:"required_without_all=PeopleID ResolvedUserID"`
	Nickname        string            `json:"nickname,omitempty"`
	Email           string            `json:"email,omitempty" validate:"omitempty,email"`
	BirthDate       string            `json:"birthDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ResolvedUserID  string            `json:"resolvedUserId,omitempty"`
	Answers         map[string]Answer `json:"answers,omitempty"`
	InternalComment string            `json:"internalComment,omitempty"`
}

func (in RegistrationInput) UserData() matcher.UserData {
	return matcher.UserData{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Nickname:  in.Nickname,
		BirthDate: in.BirthDate,
	}
}

func (in RegistrationInput) FullName() string {
	return strings.TrimSpace(in.FirstName + " " + in.LastName)
}

// DecodeRegistrationInput parses and validates a step payload. Failures wrap
// ErrInvalidInput.
func DecodeRegistrationInput(raw json.RawMessage) (RegistrationInput, error) {
	var in RegistrationInput
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	if err := constants.Validate.Struct(in); err != nil {
		return in, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return in, nil
}

type StepOutput struct {
	UserID       string      `json:"userId,omitempty"`
	Resolution   *Resolution `json:"resolution,omitempty"`
	BlockedJobID string      `json:"blockedJobId,omitempty"`
	NextJobID    string      `json:"nextJobId,omitempty"`
}

// RegistrationWorkflow chains the registration steps through the queue:
// resolve the person, join the helper group, then join the event. Each step
// enqueues the next one with the resolved person id added to the payload.
type RegistrationWorkflow struct {
	resolver *UserResolver
	groups   *GroupMembershipService
	events   *EventMembershipService
	blocked  *BlockedJobService
	queue    JobQueue
	log      *logrus.Entry
}

func NewRegistrationWorkflow(
	resolver *UserResolver,
	groups *GroupMembershipService,
	events *EventMembershipService,
	blocked *BlockedJobService,
	queue JobQueue,
	log *logrus.Entry,
) *RegistrationWorkflow {
	if log == nil {
		log = logging.Nop()
	}
	return &RegistrationWorkflow{
		resolver: resolver,
		groups:   groups,
		events:   events,
		blocked:  blocked,
		queue:    queue,
		log:      log.WithField("component", "registration_workflow"),
	}
}

// Run resolves the registry person. Unresolved runs are blocked for review
// and suspended; a resumed run carrying resolvedUserId skips resolution.
func (w *RegistrationWorkflow) Run(ctx context.Context, jobID uuid.UUID, raw json.RawMessage) (StepOutput, error) {
	in, err := DecodeRegistrationInput(raw)
	if err != nil {
		return StepOutput{}, err
	}

	var out StepOutput
	userID := in.ResolvedUserID
	if userID == "" {
		res, err := w.resolver.Resolve(ctx, in)
		if err != nil {
			return out, err
		}
		out.Resolution = &res
		if res.Status != ResolutionFound {
			reason := blockedjob.ReasonNoMatch
			if res.Status == ResolutionAmbiguous {
				reason = blockedjob.ReasonAmbiguousMatch
			}
			var candidates any
			if len(res.Candidates) > 0 {
				candidates = res.Candidates
			}
			doc, err := w.blocked.Block(ctx, BlockParams{
				OriginalJobID: jobID,
				WorkflowSlug:  RegistrationWorkflowSlug,
				Input:         raw,
				Reason:        reason,
				Candidates:    candidates,
			})
			if err != nil {
				return out, err
			}
			out.BlockedJobID = doc.ID.String()
			return out, jobs.Suspend(reason)
		}
		userID = res.PersonID
	}
	out.UserID = userID

	next, err := withResolvedUser(raw, userID)
	if err != nil {
		return out, err
	}
	job, err := w.queue.Enqueue(ctx, GroupMembershipSlug, next)
	if err != nil {
		return out, errors.Wrap(err, "enqueue group membership")
	}
	out.NextJobID = job.ID.String()
	return out, nil
}

// EnsureGroupMembership adds the resolved person to the helper group. When
// the group needs manual approval the run is blocked until the approval
// checker sees the role.
func (w *RegistrationWorkflow) EnsureGroupMembership(ctx context.Context, jobID uuid.UUID, raw json.RawMessage) (StepOutput, error) {
	in, err := decodeResolved(raw)
	if err != nil {
		return StepOutput{}, err
	}
	out := StepOutput{UserID: in.ResolvedUserID}

	if _, err := w.groups.Ensure(ctx, in.ResolvedUserID, in.FullName()); err != nil {
		var approval *hitobito.ApprovalRequiredError
		if !errors.As(err, &approval) {
			return out, err
		}
		doc, bErr := w.blocked.Block(ctx, BlockParams{
			OriginalJobID: jobID,
			WorkflowSlug:  RegistrationWorkflowSlug,
			Input:         raw,
			Reason:        blockedjob.ReasonApprovalRequired,
		})
		if bErr != nil {
			return out, bErr
		}
		w.log.WithFields(logrus.Fields{
			"person_id":      in.ResolvedUserID,
			"approval_group": approval.GroupName,
		}).Info("helper group membership awaits approval")
		out.BlockedJobID = doc.ID.String()
		return out, jobs.Suspend(blockedjob.ReasonApprovalRequired)
	}

	job, err := w.queue.Enqueue(ctx, EventMembershipSlug, raw)
	if err != nil {
		return out, errors.Wrap(err, "enqueue event membership")
	}
	out.NextJobID = job.ID.String()
	return out, nil
}

func (w *RegistrationWorkflow) EnsureEventMembership(ctx context.Context, raw json.RawMessage) (EventMembershipOutput, error) {
	in, err := decodeResolved(raw)
	if err != nil {
		return EventMembershipOutput{Status: MembershipFailed}, err
	}
	return w.events.Ensure(ctx, EventMembershipInput{
		UserID:          in.ResolvedUserID,
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Answers:         in.Answers,
		InternalComment: in.InternalComment,
	})
}

func decodeResolved(raw json.RawMessage) (RegistrationInput, error) {
	in, err := DecodeRegistrationInput(raw)
	if err != nil {
		return in, err
	}
	if in.ResolvedUserID == "" {
		return in, fmt.Errorf("%w: resolvedUserId is required", ErrInvalidInput)
	}
	return in, nil
}

func withResolvedUser(raw json.RawMessage, userID string) (json.RawMessage, error) {
	patch, err := json.Marshal(map[string]string{"resolvedUserId": userID})
	if err != nil {
		return nil, err
	}
	return blockedjob.MergeInput(raw, patch)
}
