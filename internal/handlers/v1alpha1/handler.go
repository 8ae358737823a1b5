// Package v1alpha1 exposes the job lifecycle over HTTP. Handlers validate
// and decode; all domain decisions live in the service layer.
package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/recovery"
	"github.com/plotterd/plotterd/internal/service"
)

type ServiceHandler struct {
	jobs     *service.JobService
	pens     *service.PenService
	recovery *recovery.Manager
	validate *validator.Validate
}

func NewServiceHandler(jobs *service.JobService, pens *service.PenService, rec *recovery.Manager) *ServiceHandler {
	return &ServiceHandler{
		jobs:     jobs,
		pens:     pens,
		recovery: rec,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, statusFor(err))
	render.JSON(w, r, api.Error{Message: err.Error()})
}

func renderJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func parseUUID(w http.ResponseWriter, r *http.Request, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: "invalid id " + raw})
		return uuid.Nil, false
	}
	return id, true
}
