package services

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/modules/registration/hitobito"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/logging"
)

type GroupMembershipOutput struct {
	Success bool   `json:"success"`
	GroupID string `json:"groupId,omitempty"`
}

// GroupMembershipService adds a person to the helper group. Groups that need
// manual approval surface as *hitobito.ApprovalRequiredError.
type GroupMembershipService struct {
	clients ClientsFunc
	log     *logrus.Entry
}

func NewGroupMembershipService(clients ClientsFunc, log *logrus.Entry) *GroupMembershipService {
	if log == nil {
		log = logging.Nop()
	}
	return &GroupMembershipService{clients: clients, log: log.WithField("component", "group_membership")}
}

func (s *GroupMembershipService) Ensure(ctx context.Context, personID, personName string) (GroupMembershipOutput, error) {
	c, err := s.clients()
	if err != nil {
		return GroupMembershipOutput{}, err
	}
	if err := c.Config.Require(configuration.SettingHelperGroupID, configuration.SettingHelperRoleType); err != nil {
		return GroupMembershipOutput{}, err
	}
	groupID := c.Config.HelperGroupID

	ok, err := c.Groups.AddPerson(ctx, personID, groupID, c.Config.HelperRoleType, hitobito.AddPersonOptions{PersonName: personName})
	if err != nil {
		var approval *hitobito.ApprovalRequiredError
		if errors.As(err, &approval) {
			return GroupMembershipOutput{GroupID: groupID}, err
		}
		return GroupMembershipOutput{}, errors.Wrapf(err, "add person %s to helper group", personID)
	}
	s.log.WithFields(logrus.Fields{"person_id": personID, "group_id": groupID}).Info("helper group membership ensured")
	return GroupMembershipOutput{Success: ok, GroupID: groupID}, nil
}
