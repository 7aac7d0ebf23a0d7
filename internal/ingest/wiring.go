package ingest

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/product-ingest/internal/config"
	"github.com/ignite/product-ingest/internal/datanorm"
	"github.com/ignite/product-ingest/internal/pkg/httpretry"
	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/ignite/product-ingest/internal/pkg/retry"
	"github.com/ignite/product-ingest/internal/publish"
	"github.com/ignite/product-ingest/internal/source"
	"github.com/ignite/product-ingest/internal/storage"
)

// Clients are the AWS clients shared by every adapter of one process.
type Clients struct {
	S3          *s3.Client
	EventBridge *eventbridge.Client
	SQS         *sqs.Client
	DynamoDB    *dynamodb.Client
}

// LoadAWSConfig resolves region, profile and credentials. A configured
// endpoint URL (LocalStack) becomes the base endpoint of every client.
func LoadAWSConfig(ctx context.Context, c config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if p := c.GetProfile(); p != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(p))
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	if c.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(c.EndpointURL)
	}
	return awsCfg, nil
}

func NewClients(awsCfg aws.Config) *Clients {
	pathStyle := awsCfg.BaseEndpoint != nil
	return &Clients{
		S3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			// LocalStack serves buckets on the path, not as subdomains.
			o.UsePathStyle = pathStyle
		}),
		EventBridge: eventbridge.NewFromConfig(awsCfg),
		SQS:         sqs.NewFromConfig(awsCfg),
		DynamoDB:    dynamodb.NewFromConfig(awsCfg),
	}
}

// PolicyOptions turns a policy section into retry options.
func PolicyOptions(pc config.PolicyConfig, log *logger.Logger) []retry.Option {
	opts := []retry.Option{retry.WithLogger(log)}
	if pc.MaxAttempts > 0 {
		opts = append(opts, retry.WithMaxAttempts(pc.MaxAttempts))
	}
	if pc.BaseDelayMS > 0 {
		opts = append(opts, retry.WithBaseDelay(pc.BaseDelay()))
	}
	if pc.MaxDelayMS > 0 {
		opts = append(opts, retry.WithMaxDelay(pc.MaxDelay()))
	}
	if pc.ExponentialBase > 0 {
		opts = append(opts, retry.WithExponentialBase(pc.ExponentialBase))
	}
	switch {
	case pc.DisableJitter:
		opts = append(opts, retry.WithoutJitter())
	case pc.JitterMax > 0:
		opts = append(opts, retry.WithJitter(pc.JitterMin, pc.JitterMax))
	}
	return opts
}

// NewBus picks the event bus named by cfg.Bus.
func NewBus(cfg config.PublishConfig, clients *Clients) (publish.EventBus, error) {
	switch cfg.Bus {
	case config.BusEventBridge:
		return publish.NewEventBridgeBus(clients.EventBridge), nil
	case config.BusSQS:
		return publish.NewSQSBus(clients.SQS, cfg.QueueURL), nil
	case config.BusMemory:
		return publish.NewMemoryBus(), nil
	}
	return nil, fmt.Errorf("unknown publish bus %q", cfg.Bus)
}

// NewSourceRouter serves the locator schemes enabled in cfg. Locators with
// any other scheme fail as configuration errors.
func NewSourceRouter(cfg config.SourceConfig, clients *Clients, fetchPolicy *retry.Policy) *source.Router {
	r := source.NewRouter()
	if cfg.Allows(config.SchemeS3) {
		r.Register(source.NewS3Fetcher(clients.S3, fetchPolicy), source.SchemeS3)
	}
	if cfg.Allows(config.SchemeHTTP) || cfg.Allows(config.SchemeHTTPS) {
		web := source.NewHTTPFetcher(httpretry.NewRetryClient(nil, fetchPolicy))
		for _, s := range []string{config.SchemeHTTP, config.SchemeHTTPS} {
			if cfg.Allows(s) {
				r.Register(web, s)
			}
		}
	}
	if cfg.Allows(config.SchemeFile) {
		r.Register(source.FileFetcher{Root: cfg.FileRoot}, source.SchemeFile)
	}
	return r
}

// Build wires a Service from configuration.
func Build(cfg *config.Config, clients *Clients, log *logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fetchPolicy := source.DefaultPolicy(PolicyOptions(cfg.Retry.Fetch, log)...)
	publishPolicy := publish.DefaultPolicy(PolicyOptions(cfg.Retry.Publish, log)...)

	bus, err := NewBus(cfg.Publish, clients)
	if err != nil {
		return nil, err
	}
	pipeline := publish.NewPipeline(bus, publishPolicy, publish.Options{
		BatchSize:      cfg.Publish.BatchSize,
		Source:         cfg.Publish.Source,
		DetailType:     cfg.Publish.DetailType,
		BusName:        cfg.Publish.BusName,
		CallsPerSecond: cfg.Publish.CallsPerSecond,
	})
	transformer := datanorm.NewTransformer(datanorm.Options{
		Source:    cfg.Ingest.Source,
		Currency:  cfg.Ingest.Currency,
		SKUPrefix: cfg.Ingest.SKUPrefix,
	})

	return NewService(NewSourceRouter(cfg.Source, clients, fetchPolicy), transformer, pipeline, log), nil
}

// NewRunStore picks the run history backend named by cfg.Type.
func NewRunStore(cfg config.StorageConfig, clients *Clients) (storage.RunStore, error) {
	switch cfg.Type {
	case config.StorageDynamoDB:
		return storage.NewDynamoStore(clients.DynamoDB, cfg.TableName, cfg.TTL()), nil
	case config.StorageMemory, config.StorageLocal:
		return storage.New(cfg)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}

// Bootstrap resolves AWS clients for cfg and builds the Service on them.
// The clients are returned so callers can share them with other consumers.
func Bootstrap(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Service, *Clients, error) {
	awsCfg, err := LoadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, nil, err
	}
	clients := NewClients(awsCfg)
	svc, err := Build(cfg, clients, log)
	if err != nil {
		return nil, nil, err
	}
	runs, err := NewRunStore(cfg.Storage, clients)
	if err != nil {
		return nil, nil, err
	}
	svc.SetRunStore(runs)
	return svc, clients, nil
}
