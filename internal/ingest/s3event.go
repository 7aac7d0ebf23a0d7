package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/runctx"
	"github.com/ignite/product-ingest/internal/source"
)

// S3Event is the subset of an S3 event notification the service reads.
type S3Event struct {
	Records []S3EventRecord `json:"Records"`
}

type S3EventRecord struct {
	EventName string `json:"eventName,omitempty"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size,omitempty"`
		} `json:"object"`
	} `json:"s3"`
}

// ParseS3Event decodes a notification body.
func ParseS3Event(data []byte) (S3Event, error) {
	var ev S3Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return S3Event{}, ingesterr.NewConfigurationFailure("Invalid S3 event payload", "event", err)
	}
	return ev, nil
}

// Object returns the bucket and decoded key of the first record.
// Notification keys are form-encoded, so "+" is a space.
func (e S3Event) Object() (bucket, key string, err error) {
	if len(e.Records) == 0 {
		return "", "", ingesterr.NewConfigurationFailure("Invalid event structure: missing Records", "event.Records", nil)
	}
	r := e.Records[0]
	bucket, key = r.S3.Bucket.Name, r.S3.Object.Key
	if bucket == "" || key == "" {
		return "", "", ingesterr.NewConfigurationFailure("Invalid event structure: missing bucket or key", "event.Records[0].s3", nil)
	}
	if decoded, derr := url.QueryUnescape(key); derr == nil {
		key = decoded
	}
	return bucket, key, nil
}

// HandleS3Event ingests the object named by the first record of ev.
func (s *Service) HandleS3Event(ctx context.Context, correlationID string, ev S3Event) Response {
	bucket, key, err := ev.Object()
	if err != nil {
		start := time.Now()
		run := runctx.New(correlationID, "", s.log)
		run.Logger().Error("Ingestion error", "error", err)
		return finish(run.Logger(), http.StatusBadRequest, Body{
			CorrelationID: run.CorrelationID,
			BatchID:       run.BatchID,
			Error:         ingesterr.ToMap(err),
		}, start)
	}
	return s.Ingest(ctx, correlationID, source.S3(bucket, key))
}
