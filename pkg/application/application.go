package application

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/eventbus"
	"github.com/iota-uz/registrar/pkg/jobs"
)

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
	// Queue defaults to the Postgres queue.
	Queue jobs.Queue
}

func New(opts *ApplicationOptions) Application {
	queue := opts.Queue
	if queue == nil {
		queue = jobs.NewPgQueue()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	registry := jobs.NewRegistry()
	return &application{
		pool:           opts.Pool,
		eventPublisher: opts.EventBus,
		logger:         logger,
		registry:       registry,
		enqueuer:       jobs.NewEnqueuer(queue, registry),
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]interface{}),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	registry       *jobs.Registry
	enqueuer       *jobs.Enqueuer
	services       map[reflect.Type]interface{}
	controllers    map[string]Controller
	middleware     []mux.MiddlewareFunc
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) Jobs() *jobs.Registry {
	return app.registry
}

func (app *application) Enqueuer() *jobs.Enqueuer {
	return app.enqueuer
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

// Controllers are returned in key order so route registration is stable.
func (app *application) Controllers() []Controller {
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	controllers := make([]Controller, 0, len(keys))
	for _, k := range keys {
		controllers = append(controllers, app.controllers[k])
	}
	return controllers
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}
