// Package matcher decides whether a registry search candidate is the person
// who submitted a registration.
package matcher

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/modules/registration/hitobito"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/logging"
	"github.com/iota-uz/registrar/pkg/poll"
)

type Reason string

const (
	ReasonLabelMismatch       Reason = "label_mismatch"
	ReasonNoAPIDetails        Reason = "no_api_details"
	ReasonDataMismatch        Reason = "data_mismatch"
	ReasonSignificantMismatch Reason = "significant_mismatch"
)

// UserData is the submitted identity a candidate is checked against.
type UserData struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}

// Result is the outcome for one candidate. NeedsReview implies Matched.
type Result struct {
	Matched             bool                       `json:"matched"`
	NeedsReview         bool                       `json:"needsReview"`
	PersonID            string                     `json:"personId"`
	PersonLabel         string                     `json:"personLabel"`
	Reason              Reason                     `json:"reason,omitempty"`
	Mismatches          []string                   `json:"mismatches,omitempty"`
	AddedToSupportGroup bool                       `json:"addedToSupportGroup,omitempty"`
	Details             *hitobito.PersonAttributes `json:"details,omitempty"`
}

type Config struct {
	SupportGroupID   string
	ExternalRoleType string
	// GrantDays is how long the support-group role lasts.
	GrantDays int
	Poll      poll.Options
	Now       func() time.Time
}

type Matcher struct {
	people PersonDirectory
	groups GroupRoles
	cfg    Config
	log    *logrus.Entry
}

var outcomes = sync.OnceValue(func() *prometheus.CounterVec {
	return promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "registrar",
		Subsystem: "matcher",
		Name:      "outcomes_total",
		Help:      "Candidate match outcomes by reason.",
	}, []string{"reason"})
})

func New(people PersonDirectory, groups GroupRoles, cfg Config, log *logrus.Entry) *Matcher {
	if cfg.GrantDays <= 0 {
		cfg.GrantDays = 30
	}
	if cfg.ExternalRoleType == "" {
		cfg.ExternalRoleType = "Group::ExternalRole"
	}
	if cfg.Poll.MaxAttempts == 0 {
		cfg.Poll = poll.DefaultOptions()
		cfg.Poll.WaitFirst = true
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logging.Nop()
	}
	cfg.Poll.Logger = log
	cfg.Poll.Label = "person details after support grant"
	return &Matcher{people: people, groups: groups, cfg: cfg, log: log.WithField("component", "matcher")}
}

func (m *Matcher) Match(ctx context.Context, c hitobito.Candidate, u UserData) (Result, error) {
	res, err := m.match(ctx, c, u)
	if err == nil {
		reason := string(res.Reason)
		if reason == "" {
			reason = "verified"
		}
		outcomes().WithLabelValues(reason).Inc()
	}
	return res, err
}

func (m *Matcher) match(ctx context.Context, c hitobito.Candidate, u UserData) (Result, error) {
	personID := c.ID.String()
	log := m.log.WithField("person_id", personID)
	base := Result{PersonID: personID, PersonLabel: c.Label}

	if !LabelMatches(c.Label, u) {
		base.Reason = ReasonLabelMismatch
		return base, nil
	}

	details, err := m.people.GetDetails(ctx, personID)
	if err != nil {
		return Result{}, err
	}

	granted := false
	if details.Forbidden() {
		log.Info("person details forbidden, granting support group access")
		granted, err = m.grant(ctx, personID)
		if err != nil {
			return Result{}, err
		}
		if granted {
			details, err = poll.Poll(ctx,
				func(ctx context.Context) (hitobito.DetailsResult, error) { return m.people.GetDetails(ctx, personID) },
				func(r hitobito.DetailsResult) bool { return !r.Forbidden() },
				m.cfg.Poll,
			)
			if err != nil {
				return Result{}, err
			}
		}
	}

	if details.Attributes == nil {
		base.Matched = true
		base.NeedsReview = true
		base.Reason = ReasonNoAPIDetails
		base.AddedToSupportGroup = granted
		return base, nil
	}

	v := Verify(u, *details.Attributes)
	base.Details = details.Attributes

	switch {
	case v.Verified:
		if granted {
			if err := m.revoke(ctx, personID); err != nil {
				return Result{}, err
			}
		}
		base.Matched = true
		return base, nil
	case v.NameMatch && v.BirthdayMatch && v.NicknameMatch:
		base.Matched = true
		base.NeedsReview = true
		base.Reason = ReasonDataMismatch
		base.Mismatches = v.Mismatches
		base.AddedToSupportGroup = granted
		return base, nil
	default:
		if granted {
			if err := m.revoke(ctx, personID); err != nil {
				return Result{}, err
			}
		}
		base.Reason = ReasonSignificantMismatch
		base.Mismatches = v.Mismatches
		return base, nil
	}
}

// grant adds the time-boxed support-group role. A grant parked for approval
// is reported as not granted.
func (m *Matcher) grant(ctx context.Context, personID string) (bool, error) {
	if m.cfg.SupportGroupID == "" {
		return false, errors.Wrap(configuration.ErrMissingRegistrySetting, string(configuration.SettingSupportGroupID))
	}
	endOn := hitobito.ISODate(m.cfg.Now().AddDate(0, 0, m.cfg.GrantDays))
	ok, err := m.groups.AddPerson(ctx, personID, m.cfg.SupportGroupID, m.cfg.ExternalRoleType, hitobito.AddPersonOptions{EndOn: endOn})
	var pending *hitobito.ApprovalRequiredError
	if errors.As(err, &pending) {
		m.log.WithField("person_id", personID).Warn("support group grant awaits approval")
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "grant support group access")
	}
	return ok, nil
}

// revoke removes every role the person holds in the support group.
func (m *Matcher) revoke(ctx context.Context, personID string) error {
	roles, err := m.groups.GetPersonRoles(ctx, personID, m.cfg.SupportGroupID)
	if err != nil {
		return errors.Wrap(err, "list support group roles")
	}
	for _, r := range roles {
		if _, err := m.groups.RemoveRole(ctx, r.ID.String()); err != nil {
			return errors.Wrapf(err, "remove support group role %s", r.ID)
		}
	}
	return nil
}
