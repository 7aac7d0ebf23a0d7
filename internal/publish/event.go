package publish

import (
	"context"
	"time"

	"github.com/ignite/product-ingest/internal/catalog"
)

const (
	DefaultSource     = "com.challenge.ingestion"
	DefaultDetailType = "ProductIngested"
	DefaultBusName    = "default"

	// MaxBatchEntries is the per-call entry limit of both PutEvents and
	// SendMessageBatch.
	MaxBatchEntries = 10
)

// Envelope is the detail of one ProductIngested event.
type Envelope struct {
	EventID       string           `json:"eventId"`
	Timestamp     time.Time        `json:"timestamp"`
	CorrelationID string           `json:"correlationId"`
	Product       catalog.Product  `json:"product"`
	Metadata      EnvelopeMetadata `json:"metadata"`
}

type EnvelopeMetadata struct {
	SourceRef  string `json:"sourceRef"`
	BatchID    string `json:"batchId"`
	ItemIndex  int    `json:"itemIndex"`
	TotalItems int    `json:"totalItems"`
	S3Bucket   string `json:"s3Bucket,omitempty"`
	S3Key      string `json:"s3Key,omitempty"`
}

// Entry is one bus submission. ID is the envelope's event id.
type Entry struct {
	ID         string
	Source     string
	DetailType string
	BusName    string
	Time       time.Time
	Detail     []byte
}

// FailedEntry is an entry the bus rejected inside an otherwise accepted call.
type FailedEntry struct {
	EntryID      string `json:"entry_id"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// BusResult reports per-entry rejections of one call. FailedCount may
// exceed len(FailedEntries) when the bus does not say which entries failed.
type BusResult struct {
	FailedCount   int
	FailedEntries []FailedEntry
}

// EventBus submits at most MaxBatchEntries entries per call. A returned
// error means the call itself failed and no entry is known to be accepted.
type EventBus interface {
	Publish(ctx context.Context, entries []Entry) (BusResult, error)
}
