// Package trigger long-polls an SQS queue of S3 object-created
// notifications and runs one ingestion per object.
package trigger

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/product-ingest/internal/ingest"
	"github.com/ignite/product-ingest/internal/pkg/distlock"
	"github.com/ignite/product-ingest/internal/pkg/logger"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Handler runs one ingestion; *ingest.Service satisfies it.
type Handler interface {
	HandleS3Event(ctx context.Context, correlationID string, ev ingest.S3Event) ingest.Response
}

type Options struct {
	QueueURL          string
	WaitSeconds       int32
	MaxMessages       int32
	VisibilityTimeout int32
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration
	// LeaseTTL is renewed every third of its length while a run is in
	// flight. Zero disables renewal.
	LeaseTTL time.Duration
}

type Consumer struct {
	client  sqsAPI
	handler Handler
	locks   distlock.Factory
	opts    Options
	log     *logger.Logger

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer builds a consumer. A nil locks factory disables leases.
func NewConsumer(client sqsAPI, handler Handler, locks distlock.Factory, opts Options, log *logger.Logger) *Consumer {
	if opts.WaitSeconds == 0 {
		opts.WaitSeconds = 20
	}
	if opts.MaxMessages == 0 {
		opts.MaxMessages = 10
	}
	if opts.ErrorBackoff == 0 {
		opts.ErrorBackoff = 5 * time.Second
	}
	if locks == nil {
		locks = distlock.NewFactory(nil, 0)
	}
	if log == nil {
		log = logger.Default()
	}
	return &Consumer{
		client:  client,
		handler: handler,
		locks:   locks,
		opts:    opts,
		log:     log.With("component", "trigger", "queue_url", opts.QueueURL),
		done:    make(chan struct{}),
	}
}

func (c *Consumer) Start(ctx context.Context) {
	c.log.Info("SQS trigger consumer started")
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.poll(ctx)
	}()
}

// Stop ends polling and waits for the in-flight batch to finish.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("SQS receive error", "error", err)
			timer := time.NewTimer(c.opts.ErrorBackoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			case <-c.done:
				timer.Stop()
				return
			}
		}
	}
}

// PollOnce receives one batch and handles every message in it. It returns
// the number of messages deleted.
func (c *Consumer) PollOnce(ctx context.Context) (int, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.opts.QueueURL),
		MaxNumberOfMessages: c.opts.MaxMessages,
		WaitTimeSeconds:     c.opts.WaitSeconds,
	}
	if c.opts.VisibilityTimeout > 0 {
		in.VisibilityTimeout = c.opts.VisibilityTimeout
	}
	out, err := c.client.ReceiveMessage(ctx, in)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, msg := range out.Messages {
		if c.handle(ctx, msg) {
			c.deleteMessage(ctx, msg.ReceiptHandle)
			deleted++
		}
	}
	return deleted, nil
}

// handle reports whether msg is finished with and can be deleted.
// Messages are kept only when the run failed with a retryable error or
// the lease could not be checked.
func (c *Consumer) handle(ctx context.Context, msg types.Message) bool {
	msgID := aws.ToString(msg.MessageId)
	log := c.log.With("message_id", msgID)

	ev, err := ingest.ParseS3Event([]byte(aws.ToString(msg.Body)))
	if err != nil {
		log.Warn("SQS bad message", "error", err, "body", logger.Truncate(aws.ToString(msg.Body)))
		return true
	}
	bucket, key, err := ev.Object()
	if err != nil {
		// s3:TestEvent and other notifications without records
		log.Info("Ignoring message without an S3 object", "error", err)
		return true
	}

	lease := c.locks(distlock.ObjectKey(bucket, key))
	ok, err := lease.Acquire(ctx)
	if err != nil {
		log.Error("Lease check failed", "bucket", bucket, "key", key, "error", err)
		return false
	}
	if !ok {
		log.Info("Object already being processed, dropping duplicate", "bucket", bucket, "key", key)
		return true
	}
	stopRenew := c.renewLease(ctx, lease, log)
	defer func() {
		stopRenew()
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Lease release failed", "error", err)
		}
	}()

	resp := c.handler.HandleS3Event(ctx, msgID, ev)
	if resp.StatusCode >= http.StatusInternalServerError {
		log.Warn("Ingestion failed, leaving message for redelivery", "status_code", resp.StatusCode, "error", resp.Body.Error)
		return false
	}
	log.Info("Message processed", "status_code", resp.StatusCode, "batch_id", resp.Body.BatchID)
	return true
}

// renewLease keeps lease alive until the returned stop func is called.
// Renewal ends early once another holder owns the lease.
func (c *Consumer) renewLease(ctx context.Context, lease distlock.DistLock, log *logger.Logger) (stop func()) {
	if c.opts.LeaseTTL <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(c.opts.LeaseTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := lease.Extend(ctx, c.opts.LeaseTTL)
				if errors.Is(err, distlock.ErrNotOwner) {
					log.Error("Lease lost while processing", "error", err)
					return
				}
				if err != nil {
					log.Warn("Lease renewal failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.opts.QueueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		c.log.Warn("SQS delete failed", "error", err)
	}
}
