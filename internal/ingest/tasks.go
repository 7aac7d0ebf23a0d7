package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/product-ingest/internal/catalog"
	"github.com/ignite/product-ingest/internal/datanorm"
	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/runctx"
	"github.com/ignite/product-ingest/internal/publish"
	"github.com/ignite/product-ingest/internal/source"
)

// Step task names.
const (
	TaskValidate  = "validate"
	TaskTransform = "transform"
	TaskPublish   = "publish"
)

// TaskRequest drives one step of an orchestrated workflow.
type TaskRequest struct {
	TaskType          string            `json:"taskType"`
	CorrelationID     string            `json:"correlationId,omitempty"`
	Products          json.RawMessage   `json:"products,omitempty"`
	CanonicalProducts []json.RawMessage `json:"canonicalProducts,omitempty"`
	BatchID           string            `json:"batchId,omitempty"`
	SourceRef         string            `json:"sourceRef,omitempty"`
	SourceBucket      string            `json:"sourceBucket,omitempty"`
	SourceKey         string            `json:"sourceKey,omitempty"`
}

type ValidateResult struct {
	Success      bool            `json:"success"`
	Valid        bool            `json:"valid"`
	Reason       string          `json:"reason,omitempty"`
	ValidCount   int             `json:"validCount"`
	InvalidCount int             `json:"invalidCount"`
	Products     json.RawMessage `json:"products"`
}

type TransformResult struct {
	Success           bool              `json:"success"`
	CanonicalProducts []catalog.Product `json:"canonicalProducts"`
	TransformedCount  int               `json:"transformedCount"`
	ErrorCount        int               `json:"errorCount"`
	SkippedCount      int               `json:"skippedCount"`
	Warnings          []datanorm.Entry  `json:"warnings"`
	Errors            []datanorm.Entry  `json:"errors,omitempty"`
}

type PublishTaskResult struct {
	Success bool   `json:"success"`
	BatchID string `json:"batchId"`
	// SkippedCount counts payload entries that were not canonical products.
	SkippedCount int `json:"skippedCount"`
	publish.Result
}

// TaskFailure replaces any task result when the task errors.
type TaskFailure struct {
	Success bool           `json:"success"`
	Error   map[string]any `json:"error"`
}

// RunTask executes one step. The result is always JSON-serializable;
// failures come back as a TaskFailure rather than an error.
func (s *Service) RunTask(ctx context.Context, req TaskRequest) any {
	taskType := req.TaskType
	if taskType == "" {
		taskType = TaskTransform
	}
	run := runctx.New(req.CorrelationID, req.BatchID, s.log)
	run.Logger().Info("Step task", "task_type", taskType)

	var (
		out any
		err error
	)
	switch taskType {
	case TaskValidate:
		out, err = s.validateTask(req)
	case TaskTransform:
		out, err = s.transformTask(run, req)
	case TaskPublish:
		out, err = s.publishTask(ctx, run, req)
	default:
		err = ingesterr.NewConfigurationFailure(fmt.Sprintf("Unknown task type: %s", taskType), "taskType", nil)
	}
	if err != nil {
		run.Logger().Error("Step task failed", "task_type", taskType, "error", err)
		return TaskFailure{Success: false, Error: ingesterr.ToMap(err)}
	}
	return out
}

func taskRecords(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	records, err := datanorm.ParseRecords(raw)
	if err != nil {
		return nil, ingesterr.NewConfigurationFailure("Invalid products payload", "products", err)
	}
	return records, nil
}

func (s *Service) validateTask(req TaskRequest) (ValidateResult, error) {
	records, err := taskRecords(req.Products)
	if err != nil {
		return ValidateResult{}, err
	}
	if len(records) == 0 {
		return ValidateResult{Success: true, Reason: "No products provided", Products: json.RawMessage("[]")}, nil
	}

	res := ValidateResult{Success: true, Products: req.Products}
	for _, r := range records {
		if datanorm.QuickValid(r) {
			res.ValidCount++
		} else {
			res.InvalidCount++
		}
	}
	res.Valid = res.ValidCount > 0
	return res, nil
}

func (s *Service) transformTask(run runctx.Run, req TaskRequest) (TransformResult, error) {
	records, err := taskRecords(req.Products)
	if err != nil {
		return TransformResult{}, err
	}
	outcome := s.transformer.TransformBatch(run, records)

	res := TransformResult{
		Success:           true,
		CanonicalProducts: outcome.Successes,
		TransformedCount:  outcome.SuccessCount(),
		ErrorCount:        outcome.FailureCount(),
		SkippedCount:      outcome.SkippedCount(),
		Warnings:          outcome.Warnings,
		Errors:            outcome.Failures,
	}
	if res.CanonicalProducts == nil {
		res.CanonicalProducts = []catalog.Product{}
	}
	if res.Warnings == nil {
		res.Warnings = []datanorm.Entry{}
	}
	return res, nil
}

func (s *Service) publishTask(ctx context.Context, run runctx.Run, req TaskRequest) (PublishTaskResult, error) {
	log := run.Logger()

	products := make([]catalog.Product, 0, len(req.CanonicalProducts))
	for i, raw := range req.CanonicalProducts {
		var p catalog.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			log.Warn("Failed to decode canonical product", "index", i, "error", err)
			continue
		}
		if p.ID == "" {
			log.Warn("Canonical product has no id", "index", i)
			continue
		}
		if len(p.Variants) == 0 {
			log.Warn("Canonical product has no variants", "index", i, "product_id", p.ID)
			continue
		}
		products = append(products, p)
	}

	res := PublishTaskResult{
		Success:      true,
		BatchID:      run.BatchID,
		SkippedCount: len(req.CanonicalProducts) - len(products),
	}
	if len(products) == 0 {
		return res, nil
	}

	out, err := s.publisher.Publish(ctx, run, products, req.sourceRef())
	if err != nil {
		return PublishTaskResult{}, err
	}
	res.Result = out
	return res, nil
}

func (r TaskRequest) sourceRef() string {
	switch {
	case r.SourceRef != "":
		return r.SourceRef
	case r.SourceBucket != "" && r.SourceKey != "":
		return source.S3(r.SourceBucket, r.SourceKey)
	}
	return "unknown"
}
