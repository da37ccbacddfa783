package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/iota-uz/registrar/pkg/application"
	"github.com/iota-uz/registrar/pkg/httpapi"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	db Pinger
}

// NewHealthController reports the service healthy when db answers a ping.
// A nil db always reports healthy.
func NewHealthController(db Pinger) application.Controller {
	return &HealthController{db: db}
}

func (c *HealthController) Key() string {
	return "/health"
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc("/health", c.Get).Methods(http.MethodGet)
}

func (c *HealthController) Get(w http.ResponseWriter, r *http.Request) {
	if c.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := c.db.Ping(ctx); err != nil {
			_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error(), nil)
			return
		}
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
