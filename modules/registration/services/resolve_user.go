package services

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/modules/registration/matcher"
	"github.com/iota-uz/registrar/pkg/logging"
)

type ResolutionStatus string

const (
	ResolutionFound     ResolutionStatus = "found"
	ResolutionAmbiguous ResolutionStatus = "ambiguous"
	ResolutionNotFound  ResolutionStatus = "not_found"
)

type Resolution struct {
	PersonID   string           `json:"personId,omitempty"`
	Status     ResolutionStatus `json:"status"`
	Reason     string           `json:"reason"`
	Candidates []matcher.Result `json:"candidates,omitempty"`
}

type resolveStrategy struct {
	name string
	run  func(ctx context.Context, c *Clients, in RegistrationInput) (*Resolution, error)
}

// UserResolver finds the registry person behind a registration. Strategies
// run in order and the first one with an answer wins.
type UserResolver struct {
	clients    ClientsFunc
	strategies []resolveStrategy
	log        *logrus.Entry
}

func NewUserResolver(clients ClientsFunc, log *logrus.Entry) *UserResolver {
	if log == nil {
		log = logging.Nop()
	}
	r := &UserResolver{clients: clients, log: log.WithField("component", "resolve_user")}
	r.strategies = []resolveStrategy{
		{name: "id", run: resolveByID},
		{name: "search", run: r.resolveBySearch},
		{name: "email", run: resolveByEmailLookup},
	}
	return r
}

func (r *UserResolver) Resolve(ctx context.Context, in RegistrationInput) (Resolution, error) {
	c, err := r.clients()
	if err != nil {
		return Resolution{}, err
	}
	for _, s := range r.strategies {
		res, err := s.run(ctx, c, in)
		if err != nil {
			return Resolution{}, errors.Wrapf(err, "resolve user by %s", s.name)
		}
		if res == nil {
			continue
		}
		r.log.WithFields(logrus.Fields{
			"strategy":   s.name,
			"status":     res.Status,
			"person_id":  res.PersonID,
			"candidates": len(res.Candidates),
		}).Info("user resolved")
		return *res, nil
	}
	return Resolution{Status: ResolutionNotFound, Reason: "no registry person matched the registration"}, nil
}

func resolveByID(_ context.Context, _ *Clients, in RegistrationInput) (*Resolution, error) {
	if in.PeopleID == "" {
		return nil, nil
	}
	return &Resolution{PersonID: in.PeopleID, Status: ResolutionFound, Reason: "matched by registry id"}, nil
}

func (r *UserResolver) resolveBySearch(ctx context.Context, c *Clients, in RegistrationInput) (*Resolution, error) {
	if in.Email == "" {
		return nil, nil
	}
	name := strings.TrimSpace(in.FirstName + " " + in.LastName)
	queries := []string{
		joinNonEmpty(in.FirstName, in.LastName, in.Email, in.Nickname),
		name,
	}
	user := in.UserData()

	seen := make(map[string]struct{})
	var results []matcher.Result
	for _, q := range queries {
		candidates, err := c.People.Search(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, cand := range candidates {
			if _, dup := seen[cand.ID.String()]; dup {
				continue
			}
			seen[cand.ID.String()] = struct{}{}

			res, err := c.Matcher.Match(ctx, cand, user)
			if err != nil {
				return nil, err
			}
			if res.Matched {
				results = append(results, res)
			}
		}
	}
	if len(results) == 0 {
		return nil, nil
	}
	rankByLabel(results, name)

	for _, res := range results {
		if !res.NeedsReview {
			return &Resolution{PersonID: res.PersonID, Status: ResolutionFound, Reason: "matched via search", Candidates: results}, nil
		}
	}
	reason := string(results[0].Reason)
	if reason == "" {
		reason = "multiple candidates found or manual review required"
	}
	return &Resolution{PersonID: results[0].PersonID, Status: ResolutionAmbiguous, Reason: reason, Candidates: results}, nil
}

func resolveByEmailLookup(ctx context.Context, c *Clients, in RegistrationInput) (*Resolution, error) {
	if in.Email == "" {
		return nil, nil
	}
	cand, err := c.People.LookupByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if cand == nil || cand.ID == "" {
		return nil, nil
	}
	return &Resolution{PersonID: cand.ID.String(), Status: ResolutionFound, Reason: "matched by email lookup"}, nil
}

// rankByLabel orders results by how closely their label matches name.
// Labels that do not contain name at all keep their order at the end.
func rankByLabel(results []matcher.Result, name string) {
	rank := func(label string) int {
		d := fuzzy.RankMatchNormalizedFold(name, label)
		if d < 0 {
			return math.MaxInt
		}
		return d
	}
	sort.SliceStable(results, func(i, j int) bool {
		return rank(results[i].PersonLabel) < rank(results[j].PersonLabel)
	})
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
