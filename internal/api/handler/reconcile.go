package handler

import (
	"net/http"

	"github.com/bcnelson/gitops-stack-manager/internal/reconcile"
)

// ReconcileHandler requests out-of-band reconciliation cycles.
type ReconcileHandler struct {
	loop *reconcile.Loop
}

// NewReconcileHandler creates a new ReconcileHandler.
func NewReconcileHandler(loop *reconcile.Loop) *ReconcileHandler {
	return &ReconcileHandler{loop: loop}
}

// Trigger handles POST /api/v1/reconcile. The cycle runs on the loop's own
// goroutine, so it is serialized with timer-driven cycles; this endpoint only
// queues the request.
func (h *ReconcileHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.loop.TriggerReconcile()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "reconciliation requested"})
}
