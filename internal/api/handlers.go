package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/product-ingest/internal/catalog"
	"github.com/ignite/product-ingest/internal/datanorm"
	"github.com/ignite/product-ingest/internal/ingest"
	"github.com/ignite/product-ingest/internal/pkg/httputil"
	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/source"
	"github.com/ignite/product-ingest/internal/storage"
)

// maxBodyBytes caps inline record containers on /api/transform.
const maxBodyBytes = 32 << 20

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

// CorrelationHeader lets callers pin the correlation id of a run.
const CorrelationHeader = "X-Correlation-ID"

// Ingestor is the slice of *ingest.Service the handlers drive.
type Ingestor interface {
	Ingest(ctx context.Context, correlationID, locator string) ingest.Response
	RunTask(ctx context.Context, req ingest.TaskRequest) any
	Transform(correlationID string, data []byte) (*datanorm.Outcome, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	svc       Ingestor
	runs      storage.RunStore
	startedAt time.Time
}

// NewHandlers creates a new Handlers instance. runs may be nil, which
// disables the run history endpoints.
func NewHandlers(svc Ingestor, runs storage.RunStore) *Handlers {
	return &Handlers{svc: svc, runs: runs, startedAt: time.Now()}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status":         "healthy",
		"timestamp":      time.Now().UTC(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}

// IngestRequest names the container either as bucket+key or as a locator.
type IngestRequest struct {
	Bucket  string `json:"bucket"`
	Key     string `json:"key"`
	Locator string `json:"locator"`
}

func (req IngestRequest) locator() (string, error) {
	switch {
	case req.Locator != "":
		return req.Locator, nil
	case req.Bucket != "" && req.Key != "":
		return source.S3(req.Bucket, req.Key), nil
	}
	return "", ingesterr.NewConfigurationFailure("either locator or bucket and key are required", "locator", nil)
}

// Ingest runs a full fetch, transform and publish invocation. The HTTP
// status mirrors the invocation's statusCode.
func (h *Handlers) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	loc, err := req.locator()
	if err != nil {
		httputil.Failure(w, err)
		return
	}
	resp := h.svc.Ingest(r.Context(), correlationID(r), loc)
	httputil.JSON(w, resp.StatusCode, resp.Body)
}

// RunTask executes a single step. The task type comes from the path and
// wins over any taskType in the body.
func (h *Handlers) RunTask(w http.ResponseWriter, r *http.Request) {
	var req ingest.TaskRequest
	if r.ContentLength != 0 {
		if !httputil.Decode(w, r, &req) {
			return
		}
	}
	req.TaskType = chi.URLParam(r, "task")
	if req.CorrelationID == "" {
		req.CorrelationID = correlationID(r)
	}

	out := h.svc.RunTask(r.Context(), req)
	if failure, ok := out.(ingest.TaskFailure); ok {
		status := http.StatusBadRequest
		if retryable, _ := failure.Error["retryable"].(bool); retryable {
			status = http.StatusInternalServerError
		}
		httputil.JSON(w, status, failure)
		return
	}
	httputil.OK(w, out)
}

// TransformResponse is the dry-run result: canonical products plus the
// per-record report. Nothing is published.
type TransformResponse struct {
	Products []catalog.Product `json:"products"`
	Summary  datanorm.Summary  `json:"summary"`
	Failures []datanorm.Entry  `json:"failures"`
	Warnings []datanorm.Entry  `json:"warnings"`
	Skipped  []datanorm.Entry  `json:"skipped"`
}

// Transform normalizes the request body without fetching or publishing.
func (h *Handlers) Transform(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "read body: "+err.Error())
		return
	}
	outcome, err := h.svc.Transform(correlationID(r), data)
	if err != nil {
		httputil.Failure(w, err)
		return
	}
	httputil.OK(w, TransformResponse{
		Products: nonNil(outcome.Successes),
		Summary:  outcome.Summary(),
		Failures: nonNil(outcome.Failures),
		Warnings: nonNil(outcome.Warnings),
		Skipped:  nonNil(outcome.Skipped),
	})
}

// GetRun returns one run by batch id.
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httputil.NotFound(w, "run history is disabled")
		return
	}
	rec, err := h.runs.GetRun(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if rec == nil {
		httputil.NotFound(w, "run not found")
		return
	}
	httputil.OK(w, rec)
}

// ListRuns returns recent runs, newest first, optionally for one locator.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		httputil.NotFound(w, "run history is disabled")
		return
	}
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunLimit {
			httputil.BadRequest(w, "limit must be between 1 and "+strconv.Itoa(maxRunLimit))
			return
		}
		limit = n
	}
	locator := r.URL.Query().Get("locator")

	runs, err := h.runs.ListRuns(r.Context(), locator, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"runs":    nonNil(runs),
		"locator": locator,
		"limit":   limit,
	})
}

// correlationID prefers the caller's header, then chi's request id.
func correlationID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(CorrelationHeader)); v != "" {
		return v
	}
	return middleware.GetReqID(r.Context())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
