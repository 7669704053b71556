// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"

	service "github.com/okian/fsrs/internal/app"
	"github.com/okian/fsrs/internal/domain/model"
	"github.com/okian/fsrs/internal/domain/scheduler"
)

const defaultMaxBodyBytes = 32 << 20

// Dependencies required by the optimization job handlers.
type Dependencies interface {
	// Submit queues an optimization job. Identical requests share a job.
	Submit(ctx context.Context, req model.OptimizationRequest) (service.SubmitResult, error)

	// Job returns the current view of a job.
	Job(ctx context.Context, id string) (model.Job, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	jobsHandler   *OptimizationsHandler
	memoryHandler *MemoryHandler

	submitLimiter *rate.Limiter
}

// Option applies a configuration option to the Server.
type Option func(*serverConfig)

type serverConfig struct {
	defaultRetention float64
	maxBodyBytes     int64
	submitLimiter    *rate.Limiter
}

// WithDefaultRetention sets the desired retention used when a request
// leaves it out.
func WithDefaultRetention(r float64) Option {
	return func(c *serverConfig) {
		if scheduler.ValidateRetention(r) == nil {
			c.defaultRetention = r
		}
	}
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithSubmitRate throttles POST /v1/optimizations. A non-positive rate
// disables throttling.
func WithSubmitRate(perSec float64, burst int) Option {
	return func(c *serverConfig) {
		if perSec > 0 && burst > 0 {
			c.submitLimiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	cfg := serverConfig{
		defaultRetention: scheduler.DefaultDesiredRetention,
		maxBodyBytes:     defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		jobsHandler:   NewOptimizationsHandler(deps, cfg.maxBodyBytes),
		memoryHandler: NewMemoryHandler(cfg.defaultRetention, cfg.maxBodyBytes),
		submitLimiter: cfg.submitLimiter,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	submit := s.jobsHandler.HandleSubmit
	if s.submitLimiter != nil {
		submit = RateLimit(submit, s.submitLimiter)
	}
	mux.HandleFunc("POST /v1/optimizations", MetricsMiddleware(submit, "optimizations_submit"))
	mux.HandleFunc("GET /v1/optimizations/{id}", MetricsMiddleware(s.jobsHandler.HandleGet, "optimizations_get"))

	m := s.memoryHandler
	mux.HandleFunc("GET /v1/parameters/default", MetricsMiddleware(m.HandleDefaultParameters, "parameters_default"))
	mux.HandleFunc("POST /v1/retrievability", MetricsMiddleware(m.HandleRetrievability, "retrievability"))
	mux.HandleFunc("POST /v1/interval", MetricsMiddleware(m.HandleInterval, "interval"))
	mux.HandleFunc("POST /v1/states/initial", MetricsMiddleware(m.HandleInitialState, "states_initial"))
	mux.HandleFunc("POST /v1/states/next", MetricsMiddleware(m.HandleNextState, "states_next"))
	mux.HandleFunc("POST /v1/states/sm2", MetricsMiddleware(m.HandleFromSM2, "states_sm2"))
	mux.HandleFunc("POST /v1/states/replay", MetricsMiddleware(m.HandleReplay, "states_replay"))
	mux.HandleFunc("POST /v1/repeat", MetricsMiddleware(m.HandleRepeat, "repeat"))
	mux.HandleFunc("POST /v1/evaluate", MetricsMiddleware(m.HandleEvaluate, "evaluate"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status code and writes it.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, service.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, model.ErrNoTrainableData):
		return http.StatusUnprocessableEntity, "no_trainable_data"
	case errors.Is(err, model.ErrEmptyHistory):
		return http.StatusUnprocessableEntity, "empty_history"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidParameterVector),
		errors.Is(err, model.ErrInvalidRetention),
		errors.Is(err, model.ErrInvalidEaseFactor):
		return http.StatusBadRequest, "bad_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decode reads a JSON body into v, rejecting unknown fields and trailing data.
func decode(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", ErrBadRequest)
	}
	return nil
}
