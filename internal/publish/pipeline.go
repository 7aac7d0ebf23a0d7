// Package publish emits canonical products as events in fixed-size chunks
// and accounts for entries the bus rejects.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ignite/product-ingest/internal/catalog"
	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/retry"
	"github.com/ignite/product-ingest/internal/pkg/runctx"
	"github.com/ignite/product-ingest/internal/source"
)

type Options struct {
	BatchSize  int
	Source     string
	DetailType string
	BusName    string
	// CallsPerSecond limits bus calls. Zero means unlimited.
	CallsPerSecond float64

	Now   func() time.Time
	NewID func() string
}

// Result is the aggregate of one Publish call. Published+Failed equals the
// number of products in every chunk that was attempted.
type Result struct {
	Published     int           `json:"published"`
	Failed        int           `json:"failed"`
	Total         int           `json:"total"`
	FailedEntries []FailedEntry `json:"failed_entries,omitempty"`
}

type Pipeline struct {
	bus     EventBus
	policy  *retry.Policy
	limiter *rate.Limiter
	opts    Options
}

// DefaultPolicy is the publish retry policy: 3 attempts, 0.5s base, 10s cap.
func DefaultPolicy(opts ...retry.Option) *retry.Policy {
	base := []retry.Option{
		retry.WithName("publish"),
		retry.WithMaxAttempts(3),
		retry.WithBaseDelay(500 * time.Millisecond),
		retry.WithMaxDelay(10 * time.Second),
	}
	return retry.New(append(base, opts...)...)
}

func NewPipeline(bus EventBus, policy *retry.Policy, opts Options) *Pipeline {
	if opts.BatchSize <= 0 {
		opts.BatchSize = MaxBatchEntries
	}
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.DetailType == "" {
		opts.DetailType = DefaultDetailType
	}
	if opts.BusName == "" {
		opts.BusName = DefaultBusName
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	p := &Pipeline{bus: bus, policy: policy, opts: opts}
	if opts.CallsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(opts.CallsPerSecond), 1)
	}
	return p
}

// Publish sends products in chunks of BatchSize, in input order, tagging
// each envelope with run's correlation and batch ids. A chunk whose call
// still fails after retries counts as failed in full and aborts the
// remaining chunks. The returned *ingesterr.ServiceFailure carries the
// progress reached, which is also returned as the Result.
func (p *Pipeline) Publish(ctx context.Context, run runctx.Run, products []catalog.Product, sourceRef string) (Result, error) {
	log := run.Logger()
	res := Result{Total: len(products)}
	if len(products) == 0 {
		return res, nil
	}

	meta := EnvelopeMetadata{SourceRef: sourceRef, BatchID: run.BatchID, TotalItems: len(products)}
	if loc, err := source.ParseLocator(sourceRef); err == nil && loc.Scheme == source.SchemeS3 {
		meta.S3Bucket, meta.S3Key = loc.Bucket, loc.Key
	}

	log.Info("Publishing products", "total", len(products), "batch_size", p.opts.BatchSize, "bus", p.opts.BusName)

	for start := 0; start < len(products); start += p.opts.BatchSize {
		end := start + p.opts.BatchSize
		if end > len(products) {
			end = len(products)
		}
		chunk := products[start:end]

		entries, err := p.entries(run, chunk, start, meta)
		if err != nil {
			return res, err
		}

		out, err := retry.Do(ctx, p.policy, func(ctx context.Context) (BusResult, error) {
			if p.limiter != nil {
				if err := p.limiter.Wait(ctx); err != nil {
					return BusResult{}, err
				}
			}
			return p.bus.Publish(ctx, entries)
		})
		if err != nil {
			res.Failed += len(chunk)
			log.Error("Publish call failed, aborting remaining chunks",
				"chunk_start", start,
				"chunk_size", len(chunk),
				"published", res.Published,
				"failed", res.Failed,
				"error", err)
			return res, progressFailure(err, res)
		}

		failed := out.FailedCount
		if failed < 0 {
			failed = 0
		}
		if failed > len(chunk) {
			failed = len(chunk)
		}
		res.Published += len(chunk) - failed
		res.Failed += failed

		if failed > 0 {
			for _, fe := range out.FailedEntries {
				log.Warn("Entry rejected by bus", "entry_id", fe.EntryID, "error_code", fe.ErrorCode, "error", fe.ErrorMessage)
			}
			res.FailedEntries = append(res.FailedEntries, out.FailedEntries...)
		}
	}

	log.Info("Publishing complete", "published", res.Published, "failed", res.Failed, "total", res.Total)
	return res, nil
}

func (p *Pipeline) entries(run runctx.Run, chunk []catalog.Product, offset int, meta EnvelopeMetadata) ([]Entry, error) {
	entries := make([]Entry, 0, len(chunk))
	for i, prod := range chunk {
		now := p.opts.Now()
		env := Envelope{
			EventID:       p.opts.NewID(),
			Timestamp:     now,
			CorrelationID: run.CorrelationID,
			Product:       prod,
			Metadata:      meta,
		}
		env.Metadata.ItemIndex = offset + i

		detail, err := json.Marshal(env)
		if err != nil {
			return nil, ingesterr.NewTransformationFailure(prod.ID, "envelope", fmt.Errorf("marshal envelope: %w", err))
		}
		entries = append(entries, Entry{
			ID:         env.EventID,
			Source:     p.opts.Source,
			DetailType: p.opts.DetailType,
			BusName:    p.opts.BusName,
			Time:       now,
			Detail:     detail,
		})
	}
	return entries, nil
}

// progressFailure attaches res to err. Configuration failures pass through
// unchanged; anything else surfaces as a ServiceFailure.
func progressFailure(err error, res Result) error {
	prog := ingesterr.Progress{Published: res.Published, Failed: res.Failed, Total: res.Total}
	var cf *ingesterr.ConfigurationFailure
	if errors.As(err, &cf) {
		return err
	}
	var sf *ingesterr.ServiceFailure
	if errors.As(err, &sf) {
		return sf.WithProgress(prog)
	}
	return ingesterr.NewServiceFailure("events", "publish", err).WithProgress(prog)
}
