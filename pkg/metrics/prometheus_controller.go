package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iota-uz/registrar/pkg/application"
)

type PrometheusController struct {
	path     string
	gatherer prometheus.Gatherer
}

func NewPrometheusController(path string) application.Controller {
	return NewPrometheusControllerWithGatherer(path, prometheus.DefaultGatherer)
}

func NewPrometheusControllerWithGatherer(path string, g prometheus.Gatherer) application.Controller {
	if path == "" {
		path = "/debug/prometheus"
	}
	return &PrometheusController{path: path, gatherer: g}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	r.Handle(c.path, promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}
