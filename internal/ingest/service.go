// Package ingest runs one ingestion invocation: fetch a record container,
// normalize every record, publish the successes, and report.
package ingest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ignite/product-ingest/internal/catalog"
	"github.com/ignite/product-ingest/internal/datanorm"
	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/ignite/product-ingest/internal/pkg/runctx"
	"github.com/ignite/product-ingest/internal/publish"
	"github.com/ignite/product-ingest/internal/source"
	"github.com/ignite/product-ingest/internal/storage"
)

const (
	msgComplete   = "Processing complete"
	msgNoProducts = "No valid products to process"
)

// Response is the invocation result. StatusCode follows HTTP semantics:
// 200 on completion, 400 for non-retryable failures, 500 for retryable or
// unexpected ones.
type Response struct {
	StatusCode int  `json:"statusCode"`
	Body       Body `json:"body"`
}

type Body struct {
	Message        string            `json:"message,omitempty"`
	CorrelationID  string            `json:"correlationId"`
	BatchID        string            `json:"batchId"`
	Source         *SourceInfo       `json:"source,omitempty"`
	Transformation *datanorm.Summary `json:"transformation,omitempty"`
	Publishing     *publish.Result   `json:"publishing,omitempty"`
	Error          map[string]any    `json:"error,omitempty"`
	DurationMS     float64           `json:"durationMs"`
}

type SourceInfo struct {
	Locator string `json:"locator"`
	Bucket  string `json:"bucket,omitempty"`
	Key     string `json:"key,omitempty"`
}

// Publisher is the slice of *publish.Pipeline the service needs.
type Publisher interface {
	Publish(ctx context.Context, run runctx.Run, products []catalog.Product, sourceRef string) (publish.Result, error)
}

type Service struct {
	fetcher     source.Fetcher
	transformer *datanorm.Transformer
	publisher   Publisher
	runs        storage.RunStore
	log         *logger.Logger
}

func NewService(fetcher source.Fetcher, transformer *datanorm.Transformer, publisher Publisher, log *logger.Logger) *Service {
	if transformer == nil {
		transformer = datanorm.NewTransformer(datanorm.Options{})
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{fetcher: fetcher, transformer: transformer, publisher: publisher, log: log}
}

// SetRunStore enables run history. Every Ingest call is recorded.
func (s *Service) SetRunStore(runs storage.RunStore) {
	s.runs = runs
}

// Runs returns the run history store, or nil when history is disabled.
func (s *Service) Runs() storage.RunStore { return s.runs }

// Ingest processes the container at locator. An empty correlationID is
// generated. Errors never escape; they are reported in the Response.
func (s *Service) Ingest(ctx context.Context, correlationID, locator string) Response {
	start := time.Now()
	run := runctx.New(correlationID, "", s.log)
	log := run.Logger()

	log.Info("Invocation started", "locator", locator)

	info := sourceInfo(locator)
	body, err := s.process(ctx, run, info)
	body.CorrelationID = run.CorrelationID
	body.BatchID = run.BatchID
	body.Source = info

	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
		body.Message = ""
		body.Error = ingesterr.ToMap(err)
		log.Error("Ingestion error", "error", err, "retryable", ingesterr.IsRetryable(err))
	}
	resp := finish(log, status, body, start)
	s.recordRun(ctx, run, resp, start)
	return resp
}

// recordRun saves the run summary. A history write never changes the
// invocation result.
func (s *Service) recordRun(ctx context.Context, run runctx.Run, resp Response, start time.Time) {
	if s.runs == nil {
		return
	}
	b := resp.Body
	rec := storage.RunRecord{
		BatchID:       b.BatchID,
		CorrelationID: b.CorrelationID,
		StatusCode:    resp.StatusCode,
		Message:       b.Message,
		StartedAt:     start.UTC(),
		DurationMS:    b.DurationMS,
	}
	if b.Source != nil {
		rec.Locator = b.Source.Locator
	}
	if t := b.Transformation; t != nil {
		rec.Succeeded, rec.Failed = t.SuccessCount, t.FailureCount
		rec.Skipped, rec.Warnings = t.SkippedCount, t.WarningCount
	}
	if p := b.Publishing; p != nil {
		rec.Published, rec.PublishFailed = p.Published, p.Failed
	}
	if et, ok := b.Error["error_type"].(string); ok {
		rec.ErrorType = et
	}
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		run.Logger().Warn("Failed to record run", "error", err)
	}
}

func (s *Service) process(ctx context.Context, run runctx.Run, info *SourceInfo) (Body, error) {
	log := run.Logger()

	data, err := s.fetcher.Get(ctx, info.Locator)
	if err != nil {
		return Body{}, err
	}

	records, err := datanorm.ParseRecords(data)
	if err != nil {
		cf := ingesterr.NewConfigurationFailure("Invalid JSON in source object", info.Locator, err)
		return Body{}, cf
	}
	log.Info("Loaded records", "raw_product_count", len(records))

	outcome := s.transformer.TransformBatch(run, records)
	summary := outcome.Summary()
	body := Body{Transformation: &summary}

	if outcome.SuccessCount() == 0 {
		log.Warn("No products successfully transformed")
		body.Message = msgNoProducts
		return body, nil
	}

	res, err := s.publisher.Publish(ctx, run, outcome.Successes, info.Locator)
	body.Publishing = &res
	if err != nil {
		return body, err
	}
	body.Message = msgComplete
	return body, nil
}

// Transform runs normalization only. Used for dry runs.
func (s *Service) Transform(correlationID string, data []byte) (*datanorm.Outcome, error) {
	records, err := datanorm.ParseRecords(data)
	if err != nil {
		return nil, ingesterr.NewConfigurationFailure("Invalid JSON in request body", "body", err)
	}
	run := runctx.New(correlationID, "", s.log)
	return s.transformer.TransformBatch(run, records), nil
}

func sourceInfo(locator string) *SourceInfo {
	info := &SourceInfo{Locator: locator}
	if loc, err := source.ParseLocator(locator); err == nil && loc.Scheme == source.SchemeS3 {
		info.Bucket, info.Key = loc.Bucket, loc.Key
	}
	return info
}

func statusFor(err error) int {
	var c ingesterr.Classified
	if errors.As(err, &c) && !c.Retryable() {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func finish(log *logger.Logger, status int, body Body, start time.Time) Response {
	ms := float64(time.Since(start).Microseconds()) / 1000
	body.DurationMS = ms
	log.Info("Invocation complete", "status_code", status, "duration_ms", ms)
	return Response{StatusCode: status, Body: body}
}
