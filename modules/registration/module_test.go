package registration_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/registrar/modules/registration"
	"github.com/iota-uz/registrar/modules/registration/services"
	"github.com/iota-uz/registrar/pkg/application"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/eventbus"
	"github.com/iota-uz/registrar/pkg/jobs"
	"github.com/iota-uz/registrar/pkg/jobs/jobstest"
	"github.com/iota-uz/registrar/pkg/logging"
)

func newApp(t *testing.T) application.Application {
	t.Helper()
	app := application.New(&application.ApplicationOptions{
		EventBus: eventbus.NewEventPublisher(logging.Nop()),
		Queue:    jobstest.NewQueue(),
		Logger:   logging.Nop().Logger,
	})
	cfg := &configuration.RegistryOptions{}
	err := registration.NewModule(&registration.ModuleOptions{
		Config:  &configuration.Configuration{Registry: *cfg},
		Clients: services.StaticClients(&services.Clients{Config: cfg}),
	}).Register(app)
	require.NoError(t, err)
	return app
}

func TestModule_RegistersTasksAndSchedule(t *testing.T) {
	t.Parallel()
	app := newApp(t)

	for _, slug := range []string{
		services.RegistrationWorkflowSlug,
		services.GroupMembershipSlug,
		services.EventMembershipSlug,
	} {
		task, ok := app.Jobs().Task(slug)
		require.True(t, ok, slug)
		assert.Equal(t, 4, task.MaxAttempts(), slug)
	}

	checker, ok := app.Jobs().Task(services.ApprovalCheckSlug)
	require.True(t, ok)
	assert.Equal(t, 1, checker.MaxAttempts())
	assert.True(t, checker.DeleteOnSuccess)

	schedule, ok := app.Jobs().Schedule(services.ApprovalCheckSlug)
	require.True(t, ok)
	assert.Equal(t, "0 */2 * * *", schedule.Cron)
	require.NotNil(t, schedule.BeforeSchedule)

	require.Len(t, app.Controllers(), 1)
	assert.Equal(t, "/registrations", app.Controllers()[0].Key())
	assert.NotNil(t, app.Service(services.BlockedJobService{}))
}

func TestModule_UnfixableErrorsArePermanent(t *testing.T) {
	t.Parallel()
	app := newApp(t)
	ctx := context.Background()

	run, _ := app.Jobs().Task(services.RegistrationWorkflowSlug)
	_, err := run.Handle(ctx, jobs.Job{ID: uuid.New(), Input: json.RawMessage(`{"email":"nope"}`)})
	require.ErrorIs(t, err, services.ErrInvalidInput)
	assert.True(t, jobs.IsPermanent(err))

	event, _ := app.Jobs().Task(services.EventMembershipSlug)
	_, err = event.Handle(ctx, jobs.Job{ID: uuid.New(), Input: json.RawMessage(`{"resolvedUserId":"42"}`)})
	require.ErrorIs(t, err, configuration.ErrMissingRegistrySetting)
	assert.True(t, jobs.IsPermanent(err))

	checker, _ := app.Jobs().Task(services.ApprovalCheckSlug)
	_, err = checker.Handle(ctx, jobs.Job{ID: uuid.New()})
	require.ErrorIs(t, err, configuration.ErrMissingRegistrySetting)
	assert.True(t, jobs.IsPermanent(err))
}
