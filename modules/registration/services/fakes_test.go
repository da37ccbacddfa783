package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob/blockedjobtest"
	"github.com/iota-uz/registrar/modules/registration/hitobito"
	"github.com/iota-uz/registrar/modules/registration/matcher"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/eventbus"
	"github.com/iota-uz/registrar/pkg/jobs"
	"github.com/iota-uz/registrar/pkg/jobs/jobstest"
	"github.com/iota-uz/registrar/pkg/logging"
	"github.com/iota-uz/registrar/pkg/poll"
)

func roleKey(personID, groupID string) string { return personID + "@" + groupID }

type fakeGroups struct {
	mu        sync.Mutex
	active    map[string]bool
	approval  map[string]bool
	checkErr  error
	addCalls  int
	lastAdded hitobito.AddPersonOptions
}

func newFakeGroups() *fakeGroups {
	return &fakeGroups{active: map[string]bool{}, approval: map[string]bool{}}
}

func (f *fakeGroups) setActive(personID, groupID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[roleKey(personID, groupID)] = true
}

func (f *fakeGroups) CheckActiveRole(_ context.Context, personID, groupID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.checkErr != nil {
		return "", false, f.checkErr
	}
	if f.active[roleKey(personID, groupID)] {
		return "role-" + personID, true, nil
	}
	return "", false, nil
}

func (f *fakeGroups) AddPerson(_ context.Context, personID, groupID, _ string, opts hitobito.AddPersonOptions) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	f.lastAdded = opts
	if f.approval[personID] {
		return false, &hitobito.ApprovalRequiredError{GroupName: "Helfer", GroupURL: "https://db.example.org/groups/9"}
	}
	f.active[roleKey(personID, groupID)] = true
	return true, nil
}

type fakeEvents struct {
	mu             sync.Mutex
	participations map[string]string
	// addID is returned by AddPersonToEvent; empty means the id has to be
	// looked up afterwards.
	addID string
	// visibleAfter is the number of lookups after an add before the new
	// participation shows up.
	visibleAfter int
	pendingID    string
	findCalls    int
	addCalls     int
	updates      []hitobito.ParticipationUpdate
	lastFindOpts hitobito.FindParticipationOptions
	lastLabel    string
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{participations: map[string]string{}}
}

func (f *fakeEvents) FindParticipationID(_ context.Context, personID, _ string, opts hitobito.FindParticipationOptions) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	f.lastFindOpts = opts
	if id, ok := f.participations[personID]; ok {
		return id, true, nil
	}
	if f.pendingID != "" {
		if f.visibleAfter <= 1 {
			f.participations[personID] = f.pendingID
			return f.pendingID, true, nil
		}
		f.visibleAfter--
	}
	return "", false, nil
}

func (f *fakeEvents) AddPersonToEvent(_ context.Context, personID, personLabel, _, _ string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	f.lastLabel = personLabel
	if f.addID != "" {
		f.participations[personID] = f.addID
		return f.addID, true, nil
	}
	return "", false, nil
}

func (f *fakeEvents) UpdateParticipation(_ context.Context, _, _ string, upd hitobito.ParticipationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)
	return nil
}

type fakePeople struct {
	mu         sync.Mutex
	details    map[string]hitobito.DetailsResult
	detailsErr error
	search     map[string][]hitobito.Candidate
	byEmail    map[string]*hitobito.Candidate
	queries    []string
}

func newFakePeople() *fakePeople {
	return &fakePeople{
		details: map[string]hitobito.DetailsResult{},
		search:  map[string][]hitobito.Candidate{},
		byEmail: map[string]*hitobito.Candidate{},
	}
}

func (f *fakePeople) GetDetails(_ context.Context, personID string) (hitobito.DetailsResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailsErr != nil {
		return hitobito.DetailsResult{}, f.detailsErr
	}
	if d, ok := f.details[personID]; ok {
		return d, nil
	}
	return hitobito.DetailsResult{Failure: hitobito.DetailsNotFound}, nil
}

func (f *fakePeople) Search(_ context.Context, query string) ([]hitobito.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.search[query], nil
}

func (f *fakePeople) LookupByEmail(_ context.Context, email string) (*hitobito.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byEmail[email], nil
}

type fakeMatcher struct {
	mu      sync.Mutex
	results map[string]matcher.Result
	err     error
	calls   []string
}

func (f *fakeMatcher) Match(_ context.Context, c hitobito.Candidate, _ matcher.UserData) (matcher.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c.ID.String())
	if f.err != nil {
		return matcher.Result{}, f.err
	}
	if r, ok := f.results[c.ID.String()]; ok {
		r.PersonID = c.ID.String()
		r.PersonLabel = c.Label
		return r, nil
	}
	return matcher.Result{PersonID: c.ID.String(), PersonLabel: c.Label, Reason: matcher.ReasonLabelMismatch}, nil
}

func strPtr(s string) *string { return &s }

func testRegistryOptions() *configuration.RegistryOptions {
	return &configuration.RegistryOptions{
		SupportGroupID: "3",
		EventID:        "77",
		EventGroupID:   "5",
		HelperGroupID:  "9",
		HelperRoleType: "Group::Helper",
	}
}

func fastPoll() poll.Options {
	return poll.Options{MaxAttempts: 3, InitialDelay: time.Millisecond, Backoff: true}
}

func noTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type harness struct {
	cfg      *configuration.RegistryOptions
	groups   *fakeGroups
	events   *fakeEvents
	people   *fakePeople
	matcher  *fakeMatcher
	clients  ClientsFunc
	repo     *blockedjobtest.Repository
	queue    *jobstest.Queue
	enqueuer *jobs.Enqueuer
	bus      eventbus.EventBus
	blocked  *BlockedJobService
	workflow *RegistrationWorkflow
	checker  *ApprovalChecker
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	registry := jobs.NewRegistry()
	noop := func(context.Context, jobs.Job) (any, error) { return nil, nil }
	for _, slug := range []string{RegistrationWorkflowSlug, GroupMembershipSlug, EventMembershipSlug, ApprovalCheckSlug} {
		require.NoError(t, registry.Register(jobs.Task{Slug: slug, Retries: 3, Handle: noop}))
	}

	h := &harness{
		cfg:     testRegistryOptions(),
		groups:  newFakeGroups(),
		events:  newFakeEvents(),
		people:  newFakePeople(),
		matcher: &fakeMatcher{results: map[string]matcher.Result{}},
		repo:    blockedjobtest.NewRepository(),
		queue:   jobstest.NewQueue(),
		bus:     eventbus.NewEventPublisher(logging.Nop()),
	}
	h.enqueuer = jobs.NewEnqueuer(h.queue, registry)
	h.clients = StaticClients(&Clients{
		Config:  h.cfg,
		Groups:  h.groups,
		Events:  h.events,
		People:  h.people,
		Matcher: h.matcher,
	})

	lifecycle := NewBlockedJobLifecycle(h.repo, h.enqueuer, nil)
	h.bus.Subscribe(lifecycle.OnStatusChanged)
	h.bus.Subscribe(lifecycle.OnCreated)

	h.blocked = NewBlockedJobService(h.repo, h.bus, WithTxRunner(noTx))
	h.workflow = NewRegistrationWorkflow(
		NewUserResolver(h.clients, nil),
		NewGroupMembershipService(h.clients, nil),
		NewEventMembershipService(h.clients, fastPoll(), nil),
		h.blocked,
		h.enqueuer,
		nil,
	)
	h.checker = NewApprovalChecker(h.clients, h.blocked, nil)
	return h
}

// suspendedJob seeds the queue with a job parked by a step.
func (h *harness) suspendedJob(slug string, input string) jobs.Job {
	job := jobs.Job{
		Queue:     jobs.DefaultQueue,
		TaskSlug:  slug,
		Input:     []byte(input),
		Status:    jobs.StatusSuspended,
		CreatedAt: time.Now().UTC(),
	}
	h.queue.Put(job)
	stored := h.queue.BySlug(slug)
	return stored[len(stored)-1]
}
