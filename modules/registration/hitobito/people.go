package hitobito

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

type DetailsFailure string

const (
	DetailsOK        DetailsFailure = ""
	DetailsForbidden DetailsFailure = "forbidden"
	DetailsNotFound  DetailsFailure = "not_found"
)

// DetailsResult carries the attributes, or why they are unavailable. A
// forbidden read is expected for people outside the bot's groups.
type DetailsResult struct {
	Attributes *PersonAttributes
	Failure    DetailsFailure
}

func (r DetailsResult) Forbidden() bool { return r.Failure == DetailsForbidden }

type PersonService struct {
	client *Client
	log    *logrus.Entry
}

func NewPersonService(client *Client) *PersonService {
	return &PersonService{client: client, log: client.log.WithField("service", "people")}
}

func (s *PersonService) GetDetails(ctx context.Context, personID string) (DetailsResult, error) {
	var doc personDocument
	err := s.client.APIGet(ctx, "/api/people/"+personID, nil, &doc)

	var herr *HTTPError
	switch {
	case err == nil:
		attrs := doc.Data.Attributes
		return DetailsResult{Attributes: &attrs}, nil
	case errors.As(err, &herr) && herr.Status == http.StatusForbidden:
		return DetailsResult{Failure: DetailsForbidden}, nil
	case errors.As(err, &herr) && herr.Status == http.StatusNotFound:
		return DetailsResult{Failure: DetailsNotFound}, nil
	default:
		return DetailsResult{}, errors.Wrapf(err, "get details of person %s", personID)
	}
}

// Search runs the frontend's global person search.
func (s *PersonService) Search(ctx context.Context, query string) ([]Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", query)

	var res searchResults
	if err := s.client.frontendJSON(ctx, "/full.json", params, &res); err != nil {
		return nil, errors.Wrap(err, "search people")
	}
	return res, nil
}

// LookupByEmail returns the person registered under email, or nil.
func (s *PersonService) LookupByEmail(ctx context.Context, email string) (*Candidate, error) {
	params := url.Values{}
	params.Set("filter[email]", strings.TrimSpace(email))

	var doc peopleDocument
	if err := s.client.APIGet(ctx, "/api/people", params, &doc); err != nil {
		return nil, errors.Wrap(err, "lookup person by email")
	}
	if len(doc.Data) == 0 {
		return nil, nil
	}
	p := doc.Data[0]
	label := strings.TrimSpace(Str(p.Attributes.FirstName) + " " + Str(p.Attributes.LastName))
	s.log.WithField("person_id", p.ID).Debug("person found by email")
	return &Candidate{ID: p.ID, Label: label}, nil
}
