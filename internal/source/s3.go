package source

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/retry"
)

type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher reads whole objects with GetObject.
type S3Fetcher struct {
	client s3API
	policy *retry.Policy
}

// DefaultPolicy is the fetch retry policy: 3 attempts, 1s base, 60s cap.
func DefaultPolicy(opts ...retry.Option) *retry.Policy {
	base := []retry.Option{
		retry.WithName("fetch"),
		retry.WithMaxAttempts(3),
		retry.WithBaseDelay(time.Second),
		retry.WithMaxDelay(60 * time.Second),
	}
	return retry.New(append(base, opts...)...)
}

func NewS3Fetcher(client s3API, policy *retry.Policy) *S3Fetcher {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &S3Fetcher{client: client, policy: policy}
}

func (f *S3Fetcher) Get(ctx context.Context, locator string) ([]byte, error) {
	loc, err := ParseLocator(locator)
	if err != nil || loc.Scheme != SchemeS3 {
		return nil, ingesterr.NewConfigurationFailure(fmt.Sprintf("not an s3 locator: %q", locator), "locator", err)
	}

	return retry.Do(ctx, f.policy, func(ctx context.Context) ([]byte, error) {
		out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(loc.Bucket),
			Key:    aws.String(loc.Key),
		})
		if err != nil {
			return nil, s3Failure(loc, err)
		}
		defer out.Body.Close()

		data, err := io.ReadAll(out.Body)
		if err != nil {
			return nil, s3Failure(loc, fmt.Errorf("read body: %w", err))
		}
		return data, nil
	})
}

func s3Failure(loc Locator, err error) error {
	sf := ingesterr.NewServiceFailure("s3", "GetObject", err)
	sf.With("bucket", loc.Bucket)
	sf.With("key", loc.Key)
	return sf
}
