// Package api exposes a read-only status surface over the task store so
// operators can watch a run without tailing logs.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fablereel/fablereel/internal/task"
)

// StatusHandler serves the status endpoints.
type StatusHandler struct {
	store task.Store
}

// NewStatusHandler creates a StatusHandler backed by the given store.
func NewStatusHandler(store task.Store) *StatusHandler {
	return &StatusHandler{store: store}
}

// NewRouter builds the HTTP router for the status API.
func NewRouter(handler *StatusHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", handler.Health)
	r.Get("/units", handler.ListUnits)
	r.Get("/units/{unit}/tasks", handler.ListUnitTasks)

	return r
}

// Health reports process liveness.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// UnitsResponse lists the units known to the store.
type UnitsResponse struct {
	Units []string `json:"units"`
}

// ListUnits returns every unit the store knows about.
func (h *StatusHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := h.store.Units(r.Context())
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list units", err)
		return
	}
	if units == nil {
		units = []string{}
	}
	RespondWithJSON(w, r, http.StatusOK, UnitsResponse{Units: units})
}

// UnitTasksResponse lists a unit's in-flight tasks.
type UnitTasksResponse struct {
	Unit  string             `json:"unit"`
	Tasks []*task.Descriptor `json:"tasks"`
}

// ListUnitTasks returns the unit's pending task records.
func (h *StatusHandler) ListUnitTasks(w http.ResponseWriter, r *http.Request) {
	unit := chi.URLParam(r, "unit")
	if unit == "" {
		RespondWithError(w, r, http.StatusBadRequest, "Unit name is required", nil)
		return
	}

	tasks, err := h.store.ListPending(r.Context(), unit)
	if err != nil {
		RespondWithError(w, r, http.StatusInternalServerError, "Failed to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*task.Descriptor{}
	}
	RespondWithJSON(w, r, http.StatusOK, UnitTasksResponse{Unit: unit, Tasks: tasks})
}
