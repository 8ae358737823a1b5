package v1alpha1

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	api "github.com/plotterd/plotterd/api/v1alpha1"
)

func (h *ServiceHandler) CreatePen(w http.ResponseWriter, r *http.Request) {
	var create api.PenCreate
	if err := render.DecodeJSON(r.Body, &create); err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: "invalid request body"})
		return
	}
	if err := h.validate.Struct(create); err != nil {
		renderJSON(w, r, http.StatusBadRequest, api.Error{Message: err.Error()})
		return
	}

	pen, err := h.pens.CreatePen(r.Context(), &create)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusCreated, pen)
}

func (h *ServiceHandler) ListPens(w http.ResponseWriter, r *http.Request) {
	pens, err := h.pens.ListPens(r.Context())
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, pens)
}

func (h *ServiceHandler) GetPen(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	pen, err := h.pens.GetPen(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	renderJSON(w, r, http.StatusOK, pen)
}

func (h *ServiceHandler) DeletePen(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.pens.DeletePen(r.Context(), id); err != nil {
		renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
