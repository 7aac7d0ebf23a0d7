// Package runctx carries the identifiers of one ingestion run. A Run is
// passed explicitly to every stage instead of living in globals.
package runctx

import (
	"github.com/google/uuid"
	"github.com/ignite/product-ingest/internal/pkg/logger"
)

type Run struct {
	CorrelationID string
	BatchID       string
	Log           *logger.Logger

	base *logger.Logger
}

// New starts a run. Empty ids are generated.
func New(correlationID, batchID string, base *logger.Logger) Run {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if batchID == "" {
		batchID = uuid.NewString()
	}
	if base == nil {
		base = logger.Default()
	}
	return Run{
		CorrelationID: correlationID,
		BatchID:       batchID,
		Log:           base.With("correlation_id", correlationID, "batch_id", batchID),
		base:          base,
	}
}

// Logger returns the run logger, falling back to the default logger for a
// zero Run.
func (r Run) Logger() *logger.Logger {
	if r.Log == nil {
		return logger.Default()
	}
	return r.Log
}

// WithBatch returns a copy of r with a different batch id.
func (r Run) WithBatch(batchID string) Run {
	return New(r.CorrelationID, batchID, r.base)
}
