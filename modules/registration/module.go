package registration

import (
	"github.com/iota-uz/registrar/modules/registration/infrastructure/persistence"
	"github.com/iota-uz/registrar/modules/registration/presentation/controllers"
	"github.com/iota-uz/registrar/modules/registration/services"
	"github.com/iota-uz/registrar/pkg/application"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/middleware"
	"github.com/iota-uz/registrar/pkg/poll"
)

type ModuleOptions struct {
	Config *configuration.Configuration
	// Clients overrides the registry clients built from Config.
	Clients services.ClientsFunc
	// SkipControllers registers the services and tasks only.
	SkipControllers bool
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	conf := m.options.Config
	log := app.Logger().WithField("module", m.Name())

	clients := m.options.Clients
	if clients == nil {
		lim := middleware.NewRegistryLimiter(conf.RateLimit, log)
		clients = services.NewRegistryClients(&conf.Registry, lim, log).Cached()
	}

	repo := persistence.NewBlockedJobRepository()
	lifecycle := services.NewBlockedJobLifecycle(repo, app.Enqueuer(), log)
	app.EventPublisher().Subscribe(lifecycle.OnCreated)
	app.EventPublisher().Subscribe(lifecycle.OnStatusChanged)

	blocked := services.NewBlockedJobService(repo, app.EventPublisher(), services.WithBlockedJobLogger(log))
	groups := services.NewGroupMembershipService(clients, log)
	events := services.NewEventMembershipService(clients, poll.DefaultOptions(), log)
	resolver := services.NewUserResolver(clients, log)
	workflow := services.NewRegistrationWorkflow(resolver, groups, events, blocked, app.Enqueuer(), log)
	checker := services.NewApprovalChecker(clients, blocked, log)

	app.RegisterServices(blocked, groups, events, resolver, workflow, checker)

	if err := registerTasks(app.Jobs(), app.Enqueuer().Queue(), &taskSet{workflow: workflow, checker: checker}); err != nil {
		return err
	}
	if !m.options.SkipControllers {
		app.RegisterControllers(controllers.NewRegistrationController(app, controllers.ControllerOptions{
			CreatesPerMinute: 60,
		}))
	}
	return nil
}

func (m *Module) Name() string {
	return "registration"
}
