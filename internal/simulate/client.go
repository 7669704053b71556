package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/okian/fsrs/internal/domain/model"
)

// SubmitReply is the body of POST /v1/optimizations.
type SubmitReply struct {
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate"`
}

// EvaluateReply is the body of POST /v1/evaluate.
type EvaluateReply struct {
	LogLoss          float64 `json:"log_loss"`
	CalibrationError float64 `json:"calibration_error"`
	Items            int     `json:"items"`
}

type evaluateRequest struct {
	Ratings    []int     `json:"ratings"`
	DeltaTs    []int     `json:"delta_ts"`
	CardStarts []int     `json:"card_starts"`
	Parameters []float64 `json:"parameters,omitempty"`
}

type errorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Circuit breaker settings. Only transport failures and 5xx replies count.
const (
	breakerMaxFailures uint32 = 5
	breakerTimeout            = 10 * time.Second
)

type reply struct {
	status int
	body   []byte
}

// Client talks to the scheduling service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	poll    *rate.Limiter
	breaker *gobreaker.CircuitBreaker[reply]
}

// NewClient creates a client for baseURL. Job polls are spaced at least
// pollInterval apart.
func NewClient(baseURL string, timeout, pollInterval time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		poll:    rate.NewLimiter(rate.Every(pollInterval), 1),
		breaker: gobreaker.NewCircuitBreaker[reply](gobreaker.Settings{
			Name:        "fsrs-service",
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerMaxFailures
			},
		}),
	}
}

// BreakerState reports the circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK)
}

// Submit posts a review log for optimization.
func (c *Client) Submit(ctx context.Context, req model.OptimizationRequest) (SubmitReply, error) {
	var out SubmitReply
	err := c.do(ctx, http.MethodPost, "/v1/optimizations", req, &out, http.StatusAccepted, http.StatusOK)
	return out, err
}

// Job fetches a job once.
func (c *Client) Job(ctx context.Context, id string) (model.Job, error) {
	var out model.Job
	err := c.do(ctx, http.MethodGet, "/v1/optimizations/"+id, nil, &out, http.StatusOK)
	return out, err
}

// WaitForJob polls until the job is terminal. A failed job is returned
// together with ErrJobFailed.
func (c *Client) WaitForJob(ctx context.Context, id string) (model.Job, error) {
	for {
		if err := c.poll.Wait(ctx); err != nil {
			return model.Job{}, fmt.Errorf("%w: %s: %w", ErrPollTimeout, id, err)
		}
		j, err := c.Job(ctx, id)
		if err != nil {
			return model.Job{}, err
		}
		switch j.Status {
		case model.JobSucceeded:
			return j, nil
		case model.JobFailed:
			return j, fmt.Errorf("%w: %s: %s", ErrJobFailed, id, j.Error)
		}
	}
}

// Evaluate scores w against the review log. A nil w uses the service
// defaults.
func (c *Client) Evaluate(ctx context.Context, ratings, deltaTs, cardStarts []int, w []float64) (EvaluateReply, error) {
	var out EvaluateReply
	body := evaluateRequest{Ratings: ratings, DeltaTs: deltaTs, CardStarts: cardStarts, Parameters: w}
	err := c.do(ctx, http.MethodPost, "/v1/evaluate", body, &out, http.StatusOK)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, want ...int) error {
	var body io.Reader = http.NoBody
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	resp, err := c.breaker.Execute(func() (reply, error) {
		return c.roundTrip(ctx, method, path, body, in != nil)
	})
	if err != nil && resp.status == 0 {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	data := resp.body

	for _, code := range want {
		if resp.status != code {
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: %s %s: %w", ErrUnexpectedReply, method, path, err)
		}
		return nil
	}

	var e errorReply
	if json.Unmarshal(data, &e) == nil && e.Code != "" {
		return fmt.Errorf("%w: %s %s: %d %s: %s", ErrUnexpectedReply, method, path, resp.status, e.Code, e.Message)
	}
	return fmt.Errorf("%w: %s %s: status %d", ErrUnexpectedReply, method, path, resp.status)
}

// roundTrip performs one request. A 5xx reply is returned as an error so
// the breaker counts it; the body is kept for the caller either way.
func (c *Client) roundTrip(ctx context.Context, method, path string, body io.Reader, isJSON bool) (reply, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return reply{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return reply{}, fmt.Errorf("read body: %w", err)
	}
	out := reply{status: resp.StatusCode, body: data}
	if resp.StatusCode >= http.StatusInternalServerError {
		return out, fmt.Errorf("%w: status %d", ErrUnexpectedReply, resp.StatusCode)
	}
	return out, nil
}
