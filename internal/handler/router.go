package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
)

// NewRouter builds the HTTP router. metrics may be nil.
func NewRouter(events *EventHandler, reconcile *ReconcileHandler, log *logger.Logger, timeout time.Duration, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(log))             // structured access log
	r.Use(CORS)
	r.Use(Timeout(timeout))

	r.Get("/health", HealthCheck)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	events.Routes(r)
	reconcile.Routes(r)
	return r
}
