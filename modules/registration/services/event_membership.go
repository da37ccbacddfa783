package services

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/modules/registration/hitobito"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/logging"
	"github.com/iota-uz/registrar/pkg/poll"
)

type Answer = hitobito.Answer

type EventMembershipInput struct {
	UserID          string            `json:"userId" validate:"required"`
	FirstName       string            `json:"firstName,omitempty"`
	LastName        string            `json:"lastName,omitempty"`
	Answers         map[string]Answer `json:"answers,omitempty"`
	InternalComment string            `json:"internalComment,omitempty"`
}

type MembershipStatus string

const (
	MembershipExists  MembershipStatus = "exists"
	MembershipCreated MembershipStatus = "created"
	MembershipUpdated MembershipStatus = "updated"
	MembershipFailed  MembershipStatus = "failed"
)

type EventMembershipOutput struct {
	Success         bool             `json:"success"`
	ParticipationID string           `json:"participationId,omitempty"`
	Status          MembershipStatus `json:"status"`
}

// EventMembershipService makes sure a person participates in the configured
// event, creating the participation when needed.
type EventMembershipService struct {
	clients ClientsFunc
	poll    poll.Options
	log     *logrus.Entry
}

func NewEventMembershipService(clients ClientsFunc, pollOpts poll.Options, log *logrus.Entry) *EventMembershipService {
	if log == nil {
		log = logging.Nop()
	}
	if pollOpts.MaxAttempts == 0 {
		pollOpts = poll.DefaultOptions()
	}
	log = log.WithField("component", "event_membership")
	pollOpts.Logger = log
	pollOpts.Label = "participation after enrollment"
	return &EventMembershipService{clients: clients, poll: pollOpts, log: log}
}

type participationLookup struct {
	id    string
	found bool
}

func (s *EventMembershipService) Ensure(ctx context.Context, in EventMembershipInput) (EventMembershipOutput, error) {
	failed := EventMembershipOutput{Status: MembershipFailed}

	c, err := s.clients()
	if err != nil {
		return failed, err
	}
	if err := c.Config.Require(configuration.SettingEventID, configuration.SettingEventGroupID); err != nil {
		return failed, err
	}
	eventID, groupID := c.Config.EventID, c.Config.EventGroupID
	log := s.log.WithFields(logrus.Fields{"person_id": in.UserID, "event_id": eventID})

	first, last := in.FirstName, in.LastName
	if first == "" || last == "" {
		details, err := c.People.GetDetails(ctx, in.UserID)
		switch {
		case err != nil:
			log.WithError(err).Warn("could not backfill name from person details")
		case details.Attributes == nil:
			log.WithField("failure", details.Failure).Warn("person details unavailable for name backfill")
		default:
			if first == "" {
				first = hitobito.Str(details.Attributes.FirstName)
			}
			if last == "" {
				last = hitobito.Str(details.Attributes.LastName)
			}
		}
	}
	name := strings.TrimSpace(first + " " + last)
	findOpts := hitobito.FindParticipationOptions{GroupID: groupID, SearchName: name}

	out := EventMembershipOutput{Status: MembershipExists}
	participationID, found, err := c.Events.FindParticipationID(ctx, in.UserID, eventID, findOpts)
	if err != nil {
		return failed, errors.Wrap(err, "find participation")
	}

	if !found {
		out.Status = MembershipCreated
		participationID, found, err = c.Events.AddPersonToEvent(ctx, in.UserID, name, groupID, eventID)
		if err != nil {
			return failed, errors.Wrap(err, "add person to event")
		}
		if !found {
			res, err := poll.Poll(ctx, func(ctx context.Context) (participationLookup, error) {
				id, ok, err := c.Events.FindParticipationID(ctx, in.UserID, eventID, findOpts)
				return participationLookup{id: id, found: ok}, err
			}, func(l participationLookup) bool { return l.found }, s.poll)
			if err != nil {
				return failed, errors.Wrap(err, "poll participation")
			}
			participationID, found = res.id, res.found
		}
		if !found {
			return failed, errors.Wrapf(hitobito.ErrNoParticipation, "person %s event %s", in.UserID, eventID)
		}
		log.WithField("participation_id", participationID).Info("participation created")
	}

	if len(in.Answers) > 0 || in.InternalComment != "" {
		upd := hitobito.ParticipationUpdate{Answers: in.Answers, InternalComment: in.InternalComment}
		if err := c.Events.UpdateParticipation(ctx, participationID, eventID, upd); err != nil {
			return failed, errors.Wrap(err, "update participation")
		}
		if out.Status != MembershipCreated {
			out.Status = MembershipUpdated
		}
	}

	out.Success = true
	out.ParticipationID = participationID
	return out, nil
}
