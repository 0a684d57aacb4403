package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/hackathon-reg/internal/lifecycle"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/logger"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/model"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/repository"
	"github.com/Shivanand-hulikatti/hackathon-reg/internal/runlog"
)

// ReconcileHandler exposes the lifecycle engine to operators.
type ReconcileHandler struct {
	engine *lifecycle.Engine
	runs   runlog.Store
	log    *logger.Logger
}

// NewReconcileHandler constructs a ReconcileHandler.
func NewReconcileHandler(engine *lifecycle.Engine, runs runlog.Store, log *logger.Logger) *ReconcileHandler {
	return &ReconcileHandler{engine: engine, runs: runs, log: log}
}

// Routes mounts the reconciliation endpoints on r.
func (h *ReconcileHandler) Routes(r chi.Router) {
	r.Post("/classify", h.Classify)
	r.Route("/reconciliation", func(r chi.Router) {
		r.Get("/preview", h.Preview)
		r.Post("/run", h.Run)
		r.Post("/sweep", h.Sweep)
		r.Post("/aggregates", h.RefreshAggregates)
		r.Get("/last", h.Last)
		r.Get("/history", h.History)
	})
}

type classifyResponse struct {
	Boundaries     model.Boundaries     `json:"boundaries"`
	Classification model.Classification `json:"classification"`
	Issue          string               `json:"issue,omitempty"`
}

// Classify handles POST /classify
// Classifies an arbitrary schedule without touching the store.
func (h *ReconcileHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req model.ClassifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	b, err := h.engine.Normalizer().Boundaries(model.Schedule{
		RegistrationDeadline: req.RegistrationDeadline,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	now := h.engine.Now()
	if req.Now != nil {
		now = *req.Now
	}

	resp := classifyResponse{Boundaries: b, Classification: lifecycle.Classify(b, now)}
	if err := lifecycle.CheckBoundaries(b); err != nil {
		resp.Issue = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Preview handles GET /reconciliation/preview
func (h *ReconcileHandler) Preview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.engine.Preview(r.Context())
	if err != nil {
		h.writeEngineError(w, "preview", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// Run handles POST /reconciliation/run
func (h *ReconcileHandler) Run(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Run(r.Context())
	if err != nil {
		h.writeEngineError(w, "run", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Sweep handles POST /reconciliation/sweep
// An optional ?event_id= limits the sweep to one event.
func (h *ReconcileHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var ids []string
	if id := r.URL.Query().Get("event_id"); id != "" {
		ids = append(ids, id)
	}
	result, err := h.engine.Sweep(r.Context(), ids...)
	if err != nil {
		h.writeEngineError(w, "sweep", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RefreshAggregates handles POST /reconciliation/aggregates
// An optional ?event_id= limits the recount to one event.
func (h *ReconcileHandler) RefreshAggregates(w http.ResponseWriter, r *http.Request) {
	results, err := h.engine.RefreshAggregates(r.Context(), r.URL.Query().Get("event_id"))
	if err != nil {
		h.writeEngineError(w, "refresh aggregates", err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Last handles GET /reconciliation/last
func (h *ReconcileHandler) Last(w http.ResponseWriter, r *http.Request) {
	result, err := h.runs.Latest(r.Context())
	if err != nil {
		if errors.Is(err, runlog.ErrNoRuns) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("failed to read run log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run log")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// History handles GET /reconciliation/history
// ?limit= caps the number of summaries returned, newest first.
func (h *ReconcileHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.runs.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to read run log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read run log")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *ReconcileHandler) writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case errors.Is(err, lifecycle.ErrStorageUnavailable):
		h.log.Error("reconciliation "+op+" failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		h.log.Error("reconciliation "+op+" failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reconciliation "+op+" failed")
	}
}
