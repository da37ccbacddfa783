package hitobito

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

// GroupService manages group roles.
type GroupService struct {
	client *Client
	log    *logrus.Entry
}

func NewGroupService(client *Client) *GroupService {
	return &GroupService{client: client, log: client.log.WithField("service", "groups")}
}

func (s *GroupService) GetPersonRoles(ctx context.Context, personID, groupID string) ([]RoleResource, error) {
	params := url.Values{}
	params.Set("filter[person_id][eq]", personID)
	params.Set("filter[group_id][eq]", groupID)

	var doc rolesDocument
	if err := s.client.APIGet(ctx, "/api/roles", params, &doc); err != nil {
		return nil, errors.Wrapf(err, "get roles of person %s in group %s", personID, groupID)
	}
	return doc.Data, nil
}

// CheckActiveRole returns the id of the first active role the person holds in
// the group.
func (s *GroupService) CheckActiveRole(ctx context.Context, personID, groupID string) (string, bool, error) {
	roles, err := s.GetPersonRoles(ctx, personID, groupID)
	if err != nil {
		return "", false, err
	}
	today := s.client.Today()
	for _, r := range roles {
		if IsActive(r, today) {
			return r.ID.String(), true, nil
		}
	}
	return "", false, nil
}

type AddPersonOptions struct {
	// EndOn is an ISO date (yyyy-mm-dd); empty leaves the role open-ended.
	EndOn      string
	PersonName string
}

// AddPerson grants the person a role of roleType in the group. A person who
// already holds an active role there is left alone.
func (s *GroupService) AddPerson(ctx context.Context, personID, groupID, roleType string, opts AddPersonOptions) (bool, error) {
	log := s.log.WithFields(logrus.Fields{"person_id": personID, "group_id": groupID})

	if _, found, err := s.CheckActiveRole(ctx, personID, groupID); err != nil {
		return false, err
	} else if found {
		log.Info("person already has an active role in group")
		return true, nil
	}

	endOn, err := ISOToFormDate(opts.EndOn)
	if err != nil {
		return false, err
	}
	data, err := encodeForm(roleForm{
		PersonID:         personID,
		Person:           opts.PersonName,
		GroupID:          groupID,
		Type:             roleType,
		StartOn:          FormDate(s.client.Today()),
		EndOn:            endOn,
		NewCompany:       "0",
		NewPrivacyPolicy: "1",
	})
	if err != nil {
		return false, errors.Wrap(err, "encode role form")
	}

	resp, err := s.client.SubmitRailsForm(ctx, FormSubmission{
		GetFormURL:         fmt.Sprintf("/groups/%s/roles/new", groupID),
		PostURL:            fmt.Sprintf("/groups/%s/roles", groupID),
		FormData:           data,
		ExtractExtraFields: true,
	})
	if err != nil {
		log.WithError(err).Warn("add person to group failed")
		return false, err
	}

	if resp.Status >= http.StatusBadRequest {
		ferr := &FormError{Status: resp.Status, ValidationErrors: validationErrors(resp.Body)}
		log.WithFields(logrus.Fields{
			"status":       resp.Status,
			"body_preview": preview(resp.Body, 300),
		}).Error(ferr.Error())
		return false, ferr
	}

	if pending, ok := pendingApproval(resp.Body, s.client.frontend); ok {
		log.WithField("approval_group", pending.GroupName).Info("role request awaits manual approval")
		return false, pending
	}
	return true, nil
}

// RemoveRole deletes a role. A role that is already gone counts as removed.
func (s *GroupService) RemoveRole(ctx context.Context, roleID string) (bool, error) {
	if err := s.client.APIDelete(ctx, "/api/roles/"+roleID); err != nil {
		return false, err
	}
	return true, nil
}
