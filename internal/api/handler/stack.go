package handler

import (
	"net/http"
	"strconv"

	"github.com/bcnelson/gitops-stack-manager/internal/storage"
	"github.com/go-chi/chi/v5"
)

// StackHandler serves the deployed-state cache: the last known outcome for
// every stack the controller has touched, and the cycle history.
type StackHandler struct {
	store storage.Store
}

// NewStackHandler creates a new StackHandler.
func NewStackHandler(store storage.Store) *StackHandler {
	return &StackHandler{store: store}
}

// List handles GET /api/v1/stacks.
func (h *StackHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.ListRecords(r.Context())
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Get handles GET /api/v1/stacks/{name}.
func (h *StackHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	record, err := h.store.GetRecord(r.Context(), name)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, record)
}

// ListCycles handles GET /api/v1/cycles?limit=N.
func (h *StackHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	cycles, err := h.store.ListCycles(r.Context(), limit)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cycles)
}
