package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/fsrs/pkg/fsrs"
)

// MemoryHandler serves the synchronous memory model operations.
type MemoryHandler struct {
	defaultRetention float64
	maxBodyBytes     int64
}

// NewMemoryHandler creates a new memory model handler.
func NewMemoryHandler(defaultRetention float64, maxBodyBytes int64) *MemoryHandler {
	return &MemoryHandler{defaultRetention: defaultRetention, maxBodyBytes: maxBodyBytes}
}

// numbers decodes either a JSON number or an array of numbers.
type numbers struct {
	values []float64
	scalar bool
}

func (n *numbers) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		n.scalar = false
		return json.Unmarshal(b, &n.values)
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n.values, n.scalar = []float64{v}, true
	return nil
}

// broadcast stretches a scalar to length n.
func (n numbers) broadcast(length int) []float64 {
	if !n.scalar || length == 1 {
		return n.values
	}
	out := make([]float64, length)
	for i := range out {
		out[i] = n.values[0]
	}
	return out
}

type retrievabilityRequest struct {
	Stability   *numbers `json:"stability"`
	ElapsedDays *numbers `json:"elapsed_days"`
}

type retrievabilityResponse struct {
	Retrievability any `json:"retrievability"`
}

type intervalRequest struct {
	Stability        *float64  `json:"stability"`
	DesiredRetention *float64  `json:"desired_retention"`
	Parameters       []float64 `json:"parameters"`
}

type intervalResponse struct {
	Interval float64 `json:"interval"`
}

type initialStateRequest struct {
	Rating     *int      `json:"rating"`
	Parameters []float64 `json:"parameters"`
}

type nextStateRequest struct {
	Stability   *float64  `json:"stability"`
	Difficulty  *float64  `json:"difficulty"`
	ElapsedDays *float64  `json:"elapsed_days"`
	Rating      *int      `json:"rating"`
	Parameters  []float64 `json:"parameters"`
}

type repeatRequest struct {
	Stability        *float64  `json:"stability"`
	Difficulty       *float64  `json:"difficulty"`
	ElapsedDays      float64   `json:"elapsed_days"`
	DesiredRetention *float64  `json:"desired_retention"`
	Parameters       []float64 `json:"parameters"`
}

type sm2Request struct {
	EaseFactor   *float64  `json:"ease_factor"`
	Interval     *float64  `json:"interval"`
	SM2Retention *float64  `json:"sm2_retention"`
	Parameters   []float64 `json:"parameters"`
}

type replayRequest struct {
	Ratings           []int     `json:"ratings"`
	DeltaTs           []int     `json:"delta_ts"`
	InitialStability  *float64  `json:"initial_stability"`
	InitialDifficulty *float64  `json:"initial_difficulty"`
	Parameters        []float64 `json:"parameters"`
}

type evaluateRequest struct {
	Ratings    []int     `json:"ratings"`
	DeltaTs    []int     `json:"delta_ts"`
	CardStarts []int     `json:"card_starts"`
	Parameters []float64 `json:"parameters"`
}

type parametersResponse struct {
	Parameters []float64 `json:"parameters"`
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrBadRequest, field)
}

func (h *MemoryHandler) retention(r *float64) float64 {
	if r == nil {
		return h.defaultRetention
	}
	return *r
}

// HandleDefaultParameters handles GET /v1/parameters/default.
func (h *MemoryHandler) HandleDefaultParameters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, parametersResponse{Parameters: fsrs.DefaultParameters()})
}

// HandleRetrievability handles POST /v1/retrievability. Scalars in yield a
// scalar out; a scalar paired with an array is broadcast.
func (h *MemoryHandler) HandleRetrievability(w http.ResponseWriter, r *http.Request) {
	var req retrievabilityRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	switch {
	case req.Stability == nil:
		writeFailure(w, missing("stability"))
		return
	case req.ElapsedDays == nil:
		writeFailure(w, missing("elapsed_days"))
		return
	}

	if req.Stability.scalar && req.ElapsedDays.scalar {
		writeJSON(w, http.StatusOK, retrievabilityResponse{
			Retrievability: fsrs.Retrievability(req.Stability.values[0], req.ElapsedDays.values[0]),
		})
		return
	}
	n := max(len(req.Stability.values), len(req.ElapsedDays.values))
	out, err := fsrs.RetrievabilityVec(req.Stability.broadcast(n), req.ElapsedDays.broadcast(n))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, retrievabilityResponse{Retrievability: out})
}

// HandleInterval handles POST /v1/interval.
func (h *MemoryHandler) HandleInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Stability == nil {
		writeFailure(w, missing("stability"))
		return
	}
	ivl, err := fsrs.NextInterval(*req.Stability, h.retention(req.DesiredRetention), req.Parameters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intervalResponse{Interval: ivl})
}

// HandleInitialState handles POST /v1/states/initial.
func (h *MemoryHandler) HandleInitialState(w http.ResponseWriter, r *http.Request) {
	var req initialStateRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	if req.Rating == nil {
		writeFailure(w, missing("rating"))
		return
	}
	s, err := fsrs.InitialState(*req.Rating, req.Parameters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleNextState handles POST /v1/states/next.
func (h *MemoryHandler) HandleNextState(w http.ResponseWriter, r *http.Request) {
	var req nextStateRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	switch {
	case req.Stability == nil:
		writeFailure(w, missing("stability"))
		return
	case req.Difficulty == nil:
		writeFailure(w, missing("difficulty"))
		return
	case req.ElapsedDays == nil:
		writeFailure(w, missing("elapsed_days"))
		return
	case req.Rating == nil:
		writeFailure(w, missing("rating"))
		return
	}
	s, err := fsrs.NextState(*req.Stability, *req.Difficulty, *req.ElapsedDays, *req.Rating, req.Parameters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleRepeat handles POST /v1/repeat. Without a stability the card is
// treated as new.
func (h *MemoryHandler) HandleRepeat(w http.ResponseWriter, r *http.Request) {
	var req repeatRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	out, err := fsrs.Repeat(req.Stability, req.Difficulty, req.ElapsedDays, h.retention(req.DesiredRetention), req.Parameters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleFromSM2 handles POST /v1/states/sm2.
func (h *MemoryHandler) HandleFromSM2(w http.ResponseWriter, r *http.Request) {
	var req sm2Request
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	switch {
	case req.EaseFactor == nil:
		writeFailure(w, missing("ease_factor"))
		return
	case req.Interval == nil:
		writeFailure(w, missing("interval"))
		return
	}
	s, err := fsrs.FromSM2(*req.EaseFactor, *req.Interval, h.retention(req.SM2Retention), req.Parameters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleReplay handles POST /v1/states/replay.
func (h *MemoryHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	s, err := fsrs.ReplayHistory(req.Ratings, req.DeltaTs, req.InitialStability, req.InitialDifficulty, req.Parameters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleEvaluate handles POST /v1/evaluate.
func (h *MemoryHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decode(w, r, h.maxBodyBytes, &req); err != nil {
		writeFailure(w, err)
		return
	}
	res, err := fsrs.EvaluateLog(req.Ratings, req.DeltaTs, req.CardStarts, req.Parameters)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
