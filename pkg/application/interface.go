package application

import (
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/eventbus"
	"github.com/iota-uz/registrar/pkg/jobs"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

// Application holds the process-wide wiring that modules register into.
type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	Jobs() *jobs.Registry
	Enqueuer() *jobs.Enqueuer
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}
}

type Module interface {
	Register(app Application) error
	Name() string
}
