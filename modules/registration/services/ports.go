package services

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/registrar/modules/registration/hitobito"
	"github.com/iota-uz/registrar/modules/registration/matcher"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/jobs"
)

// Workflow and task slugs known to the queue.
const (
	RegistrationWorkflowSlug = "registrationWorkflow"
	GroupMembershipSlug      = "ensureGroupMembership"
	EventMembershipSlug      = "ensureEventMembership"
	ApprovalCheckSlug        = "checkHitobitoApprovals"
)

type GroupDirectory interface {
	CheckActiveRole(ctx context.Context, personID, groupID string) (string, bool, error)
	AddPerson(ctx context.Context, personID, groupID, roleType string, opts hitobito.AddPersonOptions) (bool, error)
}

type EventDirectory interface {
	FindParticipationID(ctx context.Context, personID, eventID string, opts hitobito.FindParticipationOptions) (string, bool, error)
	AddPersonToEvent(ctx context.Context, personID, personLabel, groupID, eventID string) (string, bool, error)
	UpdateParticipation(ctx context.Context, participationID, eventID string, upd hitobito.ParticipationUpdate) error
}

type PersonDirectory interface {
	GetDetails(ctx context.Context, personID string) (hitobito.DetailsResult, error)
	Search(ctx context.Context, query string) ([]hitobito.Candidate, error)
	LookupByEmail(ctx context.Context, email string) (*hitobito.Candidate, error)
}

type CandidateMatcher interface {
	Match(ctx context.Context, c hitobito.Candidate, u matcher.UserData) (matcher.Result, error)
}

// JobQueue is satisfied by *jobs.Enqueuer.
type JobQueue interface {
	Enqueue(ctx context.Context, slug string, input any) (*jobs.Job, error)
	Queue() jobs.Queue
}

// Clients bundles the registry services a step talks to together with the
// settings they were built from.
type Clients struct {
	Config  *configuration.RegistryOptions
	Groups  GroupDirectory
	Events  EventDirectory
	People  PersonDirectory
	Matcher CandidateMatcher
}

// ClientsFunc builds the registry clients on demand, so missing settings are
// reported by the step that needs them rather than at startup.
type ClientsFunc func() (*Clients, error)

// StaticClients always returns c.
func StaticClients(c *Clients) ClientsFunc {
	return func() (*Clients, error) {
		return c, nil
	}
}

// Cached memoizes the first successful build. Failures are not cached.
func (f ClientsFunc) Cached() ClientsFunc {
	var (
		mu     sync.Mutex
		cached *Clients
	)
	return func() (*Clients, error) {
		mu.Lock()
		defer mu.Unlock()
		if cached != nil {
			return cached, nil
		}
		c, err := f()
		if err != nil {
			return nil, err
		}
		cached = c
		return c, nil
	}
}

// NewRegistryClients wires the hitobito services from cfg. lim may be nil.
func NewRegistryClients(cfg *configuration.RegistryOptions, lim *limiter.Limiter, log *logrus.Entry) ClientsFunc {
	return func() (*Clients, error) {
		client, err := hitobito.NewClientFromConfig(cfg, lim, log)
		if err != nil {
			return nil, err
		}
		people := hitobito.NewPersonService(client)
		groups := hitobito.NewGroupService(client)
		m := matcher.New(people, groups, matcher.Config{
			SupportGroupID:   cfg.SupportGroupID,
			ExternalRoleType: cfg.ExternalRoleType,
			GrantDays:        cfg.SupportGrantDays,
			Now:              client.Today,
		}, log)
		return &Clients{
			Config:  cfg,
			Groups:  groups,
			Events:  hitobito.NewEventService(client),
			People:  people,
			Matcher: m,
		}, nil
	}
}
