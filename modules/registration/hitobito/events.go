package hitobito

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

const internalCommentField = "participation[internal_comment]"

// EventService manages event participations.
type EventService struct {
	client *Client
	log    *logrus.Entry
}

func NewEventService(client *Client) *EventService {
	return &EventService{client: client, log: client.log.WithField("service", "events")}
}

type FindParticipationOptions struct {
	GroupID    string
	SearchName string
}

// FindParticipationID looks the participation up through the API first and,
// when both options are set, through the frontend's participation list.
func (s *EventService) FindParticipationID(ctx context.Context, personID, eventID string, opts FindParticipationOptions) (string, bool, error) {
	id, err := s.findByAPI(ctx, personID, eventID)
	if err != nil {
		return "", false, err
	}
	if id != "" {
		return id, true, nil
	}
	if opts.GroupID == "" || opts.SearchName == "" {
		return "", false, nil
	}
	id, err = s.findByFrontend(ctx, personID, opts.GroupID, eventID, opts.SearchName)
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

func (s *EventService) findByAPI(ctx context.Context, personID, eventID string) (string, error) {
	params := url.Values{}
	params.Set("filter[person_id][eq]", personID)
	params.Set("filter[group_id][eq]", eventID)

	var doc rolesDocument
	if err := s.client.APIGet(ctx, "/api/roles", params, &doc); err != nil {
		return "", errors.Wrapf(err, "find participation of person %s in event %s", personID, eventID)
	}
	if len(doc.Data) == 0 {
		return "", nil
	}
	today := s.client.Today()
	for _, r := range doc.Data {
		if IsActive(r, today) {
			return r.ID.String(), nil
		}
	}
	return doc.Data[0].ID.String(), nil
}

func (s *EventService) findByFrontend(ctx context.Context, personID, groupID, eventID, name string) (string, error) {
	params := url.Values{}
	params.Set("returning", "true")
	params.Set("page", "1")
	params.Set("q", name)

	var doc participationsDocument
	path := fmt.Sprintf("/groups/%s/events/%s/participations.json", groupID, eventID)
	if err := s.client.frontendJSON(ctx, path, params, &doc); err != nil {
		return "", errors.Wrap(err, "list event participations")
	}
	for _, p := range doc.EventParticipations {
		if p.Links.Person.String() == personID {
			return p.ID.String(), nil
		}
	}
	return "", nil
}

var participationIDPattern = regexp.MustCompile(`/participations/(\d+)`)

// AddPersonToEvent registers the person as participant. The returned id may
// be empty when the registry's answer does not reveal it.
func (s *EventService) AddPersonToEvent(ctx context.Context, personID, personLabel, groupID, eventID string) (string, bool, error) {
	data, err := encodeForm(eventRoleForm{
		Type:     participantRoleType,
		PersonID: personID,
		Person:   personLabel,
	})
	if err != nil {
		return "", false, errors.Wrap(err, "encode event role form")
	}
	params := url.Values{}
	params.Set("event_role[type]", participantRoleType)

	resp, err := s.client.SubmitRailsForm(ctx, FormSubmission{
		GetFormURL: fmt.Sprintf("/groups/%s/events/%s/roles/new", groupID, eventID),
		PostURL:    fmt.Sprintf("/groups/%s/events/%s/roles", groupID, eventID),
		Params:     params,
		FormData:   data,
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"person_id": personID, "event_id": eventID}).Warn("add person to event failed")
		return "", false, err
	}
	if !ok(resp.Status) {
		return "", false, &FormError{Status: resp.Status, ValidationErrors: validationErrors(resp.Body)}
	}

	if m := participationIDPattern.FindStringSubmatch(resp.FinalURL); m != nil {
		return m[1], true, nil
	}
	if m := participationIDPattern.FindStringSubmatch(resp.Body); m != nil {
		return m[1], true, nil
	}
	return "", false, nil
}

type ParticipationUpdate struct {
	// Answers is keyed by question id.
	Answers         map[string]Answer
	InternalComment string
}

// UpdateParticipation writes answers and appends an internal comment line,
// keeping every other value of the edit form as it is.
func (s *EventService) UpdateParticipation(ctx context.Context, participationID, eventID string, upd ParticipationUpdate) error {
	data := url.Values{}
	keys := make([]string, 0, len(upd.Answers))
	for q := range upd.Answers {
		keys = append(keys, q)
	}
	sort.Strings(keys)
	for _, q := range keys {
		a := upd.Answers[q]
		if a.Multi {
			data[fmt.Sprintf("participation[answer_%s][]", q)] = append([]string(nil), a.Values...)
		} else {
			data.Set(fmt.Sprintf("participation[answer_%s]", q), a.String())
		}
	}

	var amend func(url.Values)
	if comment := strings.TrimSpace(upd.InternalComment); comment != "" {
		line := fmt.Sprintf("[%s] %s", s.client.Today().Format(time.RFC3339), comment)
		amend = func(payload url.Values) {
			payload.Set(internalCommentField, appendLine(payload.Get(internalCommentField), line))
		}
	}

	resp, err := s.client.SubmitRailsForm(ctx, FormSubmission{
		GetFormURL:         fmt.Sprintf("/events/%s/participations/%s/edit", eventID, participationID),
		PostURL:            fmt.Sprintf("/events/%s/participations/%s", eventID, participationID),
		Method:             "PATCH",
		FormData:           data,
		ExtractExtraFields: true,
		Amend:              amend,
	})
	if err != nil {
		s.log.WithError(err).WithField("participation_id", participationID).Warn("update participation failed")
		return err
	}
	if !ok(resp.Status) {
		return &FormError{Status: resp.Status, ValidationErrors: validationErrors(resp.Body)}
	}
	return nil
}

func appendLine(existing, line string) string {
	existing = strings.TrimRight(existing, "\r\n ")
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}
