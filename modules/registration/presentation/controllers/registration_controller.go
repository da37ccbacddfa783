package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/form"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/registrar/modules/registration/domain/blockedjob"
	"github.com/iota-uz/registrar/modules/registration/presentation/mappers"
	"github.com/iota-uz/registrar/modules/registration/presentation/viewmodels"
	"github.com/iota-uz/registrar/modules/registration/services"
	"github.com/iota-uz/registrar/pkg/application"
	"github.com/iota-uz/registrar/pkg/composables"
	"github.com/iota-uz/registrar/pkg/constants"
	"github.com/iota-uz/registrar/pkg/httpapi"
	"github.com/iota-uz/registrar/pkg/middleware"
	"github.com/iota-uz/registrar/pkg/serrors"
)

const (
	maxBodyBytes     = 1 << 20
	defaultPageLimit = 50
)

var queryDecoder = form.NewDecoder()

type ListBlockedParams struct {
	Status   string `form:"status" validate:"omitempty,oneof=pending resolved rejected"`
	Workflow string `form:"workflow"`
	Reason   string `form:"reason" validate:"omitempty,oneof=ambiguous_match no_match approval_required"`
	Limit    int    `form:"limit" validate:"gte=0,lte=500"`
	Offset   int    `form:"offset" validate:"gte=0"`
}

type ResolveRequest struct {
	ResolutionData json.RawMessage `json:"resolutionData"`
}

type ControllerOptions struct {
	BasePath string
	// CreatesPerMinute bounds POST requests per client IP; 0 disables the limit.
	CreatesPerMinute int
}

type RegistrationController struct {
	app     application.Application
	blocked *services.BlockedJobService
	opts    ControllerOptions
}

func NewRegistrationController(app application.Application, opts ControllerOptions) application.Controller {
	if opts.BasePath == "" {
		opts.BasePath = "/registrations"
	}
	return &RegistrationController{
		app:     app,
		blocked: app.Service(services.BlockedJobService{}).(*services.BlockedJobService),
		opts:    opts,
	}
}

func (c *RegistrationController) Key() string {
	return c.opts.BasePath
}

func (c *RegistrationController) Register(r *mux.Router) {
	router := r.PathPrefix(c.opts.BasePath).Subrouter()

	var create http.Handler = http.HandlerFunc(c.Create)
	if c.opts.CreatesPerMinute > 0 {
		create = middleware.IPRateLimitPeriod(c.opts.CreatesPerMinute, time.Minute)(create)
	}
	router.Handle("", create).Methods(http.MethodPost)
	router.HandleFunc("/blocked", c.ListBlocked).Methods(http.MethodGet)
	router.HandleFunc("/blocked/{id}", c.GetBlocked).Methods(http.MethodGet)
	router.HandleFunc("/blocked/{id}/resolve", c.Resolve).Methods(http.MethodPost)
	router.HandleFunc("/blocked/{id}/reject", c.Reject).Methods(http.MethodPost)
}

// Create validates the payload and queues a registration run. The stored
// input is the request body as sent, so keys unknown to the workflow survive.
func (c *RegistrationController) Create(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read request body", nil)
		return
	}
	if _, err := services.DecodeRegistrationInput(raw); err != nil {
		writeInputError(w, err)
		return
	}
	job, err := c.app.Enqueuer().Enqueue(r.Context(), services.RegistrationWorkflowSlug, json.RawMessage(raw))
	if err != nil {
		composables.UseLogger(r.Context()).WithError(err).Error("failed to enqueue registration")
		_ = httpapi.WriteError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", "failed to enqueue registration", nil)
		return
	}
	composables.UseLogger(r.Context()).WithField("job_id", job.ID).Info("registration queued")
	_ = httpapi.WriteJSON(w, http.StatusAccepted, &viewmodels.EnqueuedJob{JobID: job.ID.String()})
}

func (c *RegistrationController) ListBlocked(w http.ResponseWriter, r *http.Request) {
	var params ListBlockedParams
	if err := queryDecoder.Decode(&params, r.URL.Query()); err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	if err := constants.Validate.Struct(params); err != nil {
		fields, _ := serrors.ProcessValidatorErrors(err)
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters", fields)
		return
	}
	if params.Limit == 0 {
		params.Limit = defaultPageLimit
	}
	find := blockedjob.FindParams{
		WorkflowSlug: params.Workflow,
		Status:       blockedjob.Status(params.Status),
		Reason:       params.Reason,
		Limit:        params.Limit,
		Offset:       params.Offset,
	}
	items, err := c.blocked.List(r.Context(), find)
	if err != nil {
		c.internalError(w, r, err)
		return
	}
	total, err := c.blocked.Count(r.Context(), find)
	if err != nil {
		c.internalError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, &viewmodels.BlockedJobList{
		Items: mappers.BlockedJobsToViewModels(items),
		Total: total,
	})
}

func (c *RegistrationController) GetBlocked(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	doc, err := c.blocked.GetByID(r.Context(), id)
	if errors.Is(err, blockedjob.ErrNotFound) {
		writeNotFound(w, id)
		return
	}
	if err != nil {
		c.internalError(w, r, err)
		return
	}
	_ = httpapi.WriteJSON(w, http.StatusOK, mappers.BlockedJobToViewModel(doc))
}

func (c *RegistrationController) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := httpapi.DecodeJSON(r, maxBodyBytes, &req); err != nil {
		_ = httpapi.WriteDecodeError(w, err)
		return
	}
	out, err := c.blocked.Resolve(r.Context(), id, req.ResolutionData)
	if errors.Is(err, blockedjob.ErrInvalidResolution) {
		_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "INVALID_RESOLUTION", err.Error(), nil)
		return
	}
	c.writeOutcome(w, r, id, out, err)
}

func (c *RegistrationController) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	out, err := c.blocked.Reject(r.Context(), id)
	c.writeOutcome(w, r, id, out, err)
}

func (c *RegistrationController) writeOutcome(w http.ResponseWriter, r *http.Request, id uuid.UUID, out services.ResolutionOutcome, err error) {
	if err != nil {
		c.internalError(w, r, err)
		return
	}
	if !out.Found {
		writeNotFound(w, id)
		return
	}
	status := http.StatusOK
	if !out.Applied {
		status = http.StatusConflict
	}
	_ = httpapi.WriteJSON(w, status, out)
}

func (c *RegistrationController) internalError(w http.ResponseWriter, r *http.Request, err error) {
	composables.UseLogger(r.Context()).WithError(err).Error("blocked job request failed")
	_ = httpapi.WriteError(w, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error", nil)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_ID", "id must be a uuid", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeNotFound(w http.ResponseWriter, id uuid.UUID) {
	_ = httpapi.WriteError(w, http.StatusNotFound, "BLOCKED_JOB_NOT_FOUND", "blocked job not found", map[string]string{"id": id.String()})
}

func writeInputError(w http.ResponseWriter, err error) {
	if fields, ok := serrors.ProcessValidatorErrors(err); ok {
		_ = httpapi.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "registration is invalid", fields)
		return
	}
	_ = httpapi.WriteError(w, http.StatusBadRequest, "INVALID_JSON", err.Error(), nil)
}
