package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/registrar/pkg/application"
	"github.com/iota-uz/registrar/pkg/configuration"
	"github.com/iota-uz/registrar/pkg/httpapi"
	"github.com/iota-uz/registrar/pkg/middleware"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	loggerOpts := middleware.DefaultLoggerOptions()
	loggerOpts.RequestIDHeader = conf.RequestIDHeader
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, loggerOpts),
		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.CORSOrigins...),
	}
	if options.Pool != nil {
		middlewares = append(middlewares, middleware.ProvidePool(options.Pool))
	}
	app.RegisterMiddleware(middlewares...)

	return NewHTTPServer(app, notFound(), methodNotAllowed()), nil
}

func notFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found", map[string]string{"path": r.URL.Path})
	})
}

func methodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})
}
