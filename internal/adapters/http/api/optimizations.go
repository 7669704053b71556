package api

import (
	"net/http"

	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/pkg/logger"
)

// OptimizationsHandler handles asynchronous optimization jobs.
type OptimizationsHandler struct {
	deps         Dependencies
	maxBodyBytes int64
}

// NewOptimizationsHandler creates a new optimizations handler.
func NewOptimizationsHandler(deps Dependencies, maxBodyBytes int64) *OptimizationsHandler {
	return &OptimizationsHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleSubmit handles POST /v1/optimizations. New jobs answer 202, a
// resubmitted request answers 200 with the existing job.
func (h *OptimizationsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req model.OptimizationRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}

	res, err := h.deps.Submit(r.Context(), req)
	if err != nil {
		writeFailure(w, err)
		return
	}
	status := http.StatusAccepted
	if res.Duplicate {
		status = http.StatusOK
	}
	logger.GetOrNop().Named("api").Debug(r.Context(), "optimization submitted",
		logger.String("job_id", res.JobID),
		logger.Bool("duplicate", res.Duplicate),
		logger.String("request_id", RequestIDFrom(r.Context())),
	)
	w.Header().Set("Location", "/v1/optimizations/"+res.JobID)
	writeJSON(w, status, res)
}

// HandleGet handles GET /v1/optimizations/{id}.
func (h *OptimizationsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	j, err := h.deps.Job(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}
