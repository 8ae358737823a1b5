package v1alpha1

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	api "github.com/plotterd/plotterd/api/v1alpha1"
	"github.com/plotterd/plotterd/internal/service"
)

func (h *ServiceHandler) Routes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", h.CreateJob)
		r.Get("/", h.ListJobs)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Delete("/", h.DeleteJob)
			r.Post("/analyze", h.AnalyzeJob)
			r.Post("/optimize", h.OptimizeJob)
			r.Post("/queue", h.QueueJob)
			r.Post("/arm", h.ArmJob)
			r.Post("/start", h.StartPlot)
			r.Post("/pause", h.PauseJob)
			r.Post("/resume", h.ResumeJob)
			r.Post("/abort", h.AbortJob)
			r.Get("/plan", h.PlanPreview)
			r.Get("/journal", h.Journal)
			r.Get("/checklist", h.Checklist)
			r.Put("/checklist/{key}", h.SetChecklistItem)
			r.Put("/layers/{layerId}/pen", h.AssignPen)
		})
	})
	r.Get("/recovery", h.ListInterrupted)
	r.Route("/pens", func(r chi.Router) {
		r.Post("/", h.CreatePen)
		r.Get("/", h.ListPens)
		r.Get("/{id}", h.GetPen)
		r.Delete("/{id}", h.DeletePen)
	})
}

func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var create api.JobCreate
	if err := render.DecodeJSON(r.Body, &create); err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(create); err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: err.Error()})
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), &create)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusCreated, job)
}

func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	var states []string
	if raw := r.URL.Query().Get("state"); raw != "" {
		states = strings.Split(raw, ",")
	}
	jobs, err := h.jobs.ListJobs(r.Context(), states)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, jobs)
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, job)
}

func (h *ServiceHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.jobs.DeleteJob(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ServiceHandler) AnalyzeJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, err := h.jobs.AnalyzeJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, job)
}

func (h *ServiceHandler) OptimizeJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, err := h.jobs.ApplyOptimizations(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, job)
}

func (h *ServiceHandler) QueueJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, err := h.jobs.QueueJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, job)
}

func (h *ServiceHandler) ArmJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, err := h.jobs.ArmJob(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, job)
}

func (h *ServiceHandler) StartPlot(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	job, err := h.jobs.StartPlot(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusAccepted, job)
}

type controlRequest struct {
	Reason string `json:"reason"`
}

func (h *ServiceHandler) PauseJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req controlRequest
	_ = render.DecodeJSON(r.Body, &req)
	if err := h.jobs.PauseJob(r.Context(), id, req.Reason); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *ServiceHandler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.jobs.ResumeJob(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *ServiceHandler) AbortJob(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req controlRequest
	_ = render.DecodeJSON(r.Body, &req)
	if err := h.jobs.AbortJob(r.Context(), id, req.Reason); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListInterrupted reports jobs the recovery manager considers interrupted:
// device-holding states with a heartbeat older than the grace period.
func (h *ServiceHandler) ListInterrupted(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.recovery.DetectInterrupted(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, service.JobListToApi(jobs))
}

func (h *ServiceHandler) PlanPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	mode := api.PlanMode(r.URL.Query().Get("mode"))
	preview, err := h.jobs.PlanPreview(r.Context(), id, mode)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, preview)
}

func (h *ServiceHandler) Journal(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	entries, err := h.jobs.Journal(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, entries)
}

func (h *ServiceHandler) Checklist(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	items, err := h.jobs.Checklist(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, items)
}

func (h *ServiceHandler) SetChecklistItem(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var update api.ChecklistItemUpdate
	if err := render.DecodeJSON(r.Body, &update); err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: "invalid request body"})
		return
	}
	if err := h.jobs.SetChecklistItem(r.Context(), id, chi.URLParam(r, "key"), update.Done); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ServiceHandler) AssignPen(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	layerID, ok := parseUUID(w, r, chi.URLParam(r, "layerId"))
	if !ok {
		return
	}
	var assignment api.LayerPenAssignment
	if err := render.DecodeJSON(r.Body, &assignment); err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(assignment); err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: err.Error()})
		return
	}

	layer, err := h.jobs.AssignPen(r.Context(), id, layerID, assignment.PenId)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, layer)
}
