package api

import (
	"log/slog"
	"net/http"

	"github.com/bcnelson/gitops-stack-manager/internal/api/handler"
	"github.com/bcnelson/gitops-stack-manager/internal/api/middleware"
	"github.com/bcnelson/gitops-stack-manager/internal/reconcile"
	"github.com/bcnelson/gitops-stack-manager/internal/storage"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the status HTTP router. Everything here is a read-only
// view of the deployed-state cache, plus one endpoint to request an
// out-of-band reconciliation.
func NewRouter(store storage.Store, loop *reconcile.Loop, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)

		stackHandler := handler.NewStackHandler(store)
		r.Get("/stacks", stackHandler.List)
		r.Get("/stacks/{name}", stackHandler.Get)
		r.Get("/cycles", stackHandler.ListCycles)

		reconcileHandler := handler.NewReconcileHandler(loop)
		r.Post("/reconcile", reconcileHandler.Trigger)
	})

	return r
}
