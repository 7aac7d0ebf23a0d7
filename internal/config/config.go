package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	AWS     AWSConfig     `yaml:"aws"`
	Publish PublishConfig `yaml:"publish"`
	Retry   RetryConfig   `yaml:"retry"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Source  SourceConfig  `yaml:"source"`
	Trigger TriggerConfig `yaml:"trigger"`
	Lock    LockConfig    `yaml:"lock"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Host        string   `yaml:"host"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// AWSConfig holds client settings shared by S3, EventBridge and SQS.
// EndpointURL points every client at LocalStack; static keys are only
// needed there.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Profile         string `yaml:"profile"`
	EndpointURL     string `yaml:"endpoint_url"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GetProfile returns the shared-config profile, or "" on ECS/Lambda where
// the task role supplies credentials.
func (c AWSConfig) GetProfile() string {
	if p := os.Getenv("AWS_PROFILE_OVERRIDE"); p != "" {
		return p
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.Profile
}

// Bus kinds accepted by publish.bus.
const (
	BusEventBridge = "eventbridge"
	BusSQS         = "sqs"
	BusMemory      = "memory"
)

// PublishConfig holds event bus settings
type PublishConfig struct {
	Bus            string  `yaml:"bus"`
	BusName        string  `yaml:"bus_name"`
	QueueURL       string  `yaml:"queue_url"`
	BatchSize      int     `yaml:"batch_size"`
	Source         string  `yaml:"source"`
	DetailType     string  `yaml:"detail_type"`
	CallsPerSecond float64 `yaml:"calls_per_second"`
}

// PolicyConfig mirrors retry.Policy. Zero values take the policy's own
// defaults.
type PolicyConfig struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseDelayMS     int     `yaml:"base_delay_ms"`
	MaxDelayMS      int     `yaml:"max_delay_ms"`
	ExponentialBase float64 `yaml:"exponential_base"`
	JitterMin       float64 `yaml:"jitter_min"`
	JitterMax       float64 `yaml:"jitter_max"`
	DisableJitter   bool    `yaml:"disable_jitter"`
}

func (c PolicyConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

func (c PolicyConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

type RetryConfig struct {
	Fetch   PolicyConfig `yaml:"fetch"`
	Publish PolicyConfig `yaml:"publish"`
}

// IngestConfig tunes the product mapping
type IngestConfig struct {
	Source    string `yaml:"source"`
	Currency  string `yaml:"currency"`
	SKUPrefix string `yaml:"sku_prefix"`
}

// Locator schemes accepted by source.schemes.
const (
	SchemeS3    = "s3"
	SchemeHTTP  = "http"
	SchemeHTTPS = "https"
	SchemeFile  = "file"
)

// AllSchemes lists every locator scheme the service can fetch.
var AllSchemes = []string{SchemeS3, SchemeHTTP, SchemeHTTPS, SchemeFile}

// SourceConfig limits which locators a caller may name. Only s3 is served
// unless more schemes are listed. File locators resolve inside FileRoot;
// an empty FileRoot leaves the whole filesystem readable.
type SourceConfig struct {
	Schemes  []string `yaml:"schemes"`
	FileRoot string   `yaml:"file_root"`
}

// Allows reports whether scheme is enabled.
func (c SourceConfig) Allows(scheme string) bool {
	for _, s := range c.Schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// CheckExposed rejects settings unsafe for a process whose locators come
// from remote callers: file locators must be confined to a root.
func (c SourceConfig) CheckExposed() error {
	if c.Allows(SchemeFile) && c.FileRoot == "" {
		return fmt.Errorf("source.file_root is required when file locators are enabled")
	}
	return nil
}

// TriggerConfig holds the S3 notification queue consumer settings
type TriggerConfig struct {
	QueueURL                 string `yaml:"queue_url"`
	WaitSeconds              int    `yaml:"wait_seconds"`
	MaxMessages              int    `yaml:"max_messages"`
	VisibilityTimeoutSeconds int    `yaml:"visibility_timeout_seconds"`
}

// LockConfig holds the Redis lease settings. Leases are disabled when
// RedisURL is empty.
type LockConfig struct {
	RedisURL   string `yaml:"redis_url"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Run history backends accepted by storage.type.
const (
	StorageMemory   = "memory"
	StorageLocal    = "local"
	StorageDynamoDB = "dynamodb"
)

// StorageConfig holds the run history settings
type StorageConfig struct {
	Type      string `yaml:"type"`
	LocalPath string `yaml:"local_path"`
	TableName string `yaml:"table_name"`
	TTLDays   int    `yaml:"ttl_days"`
}

func (c StorageConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Publish.Bus == "" {
		cfg.Publish.Bus = BusEventBridge
	}
	if cfg.Publish.BusName == "" {
		cfg.Publish.BusName = "default"
	}
	if cfg.Publish.BatchSize == 0 {
		cfg.Publish.BatchSize = 10
	}
	if cfg.Publish.Source == "" {
		cfg.Publish.Source = "com.challenge.ingestion"
	}
	if cfg.Publish.DetailType == "" {
		cfg.Publish.DetailType = "ProductIngested"
	}
	// Fetch: 3 attempts, 1s base, 60s cap
	if cfg.Retry.Fetch.MaxAttempts == 0 {
		cfg.Retry.Fetch.MaxAttempts = 3
	}
	if cfg.Retry.Fetch.BaseDelayMS == 0 {
		cfg.Retry.Fetch.BaseDelayMS = 1000
	}
	if cfg.Retry.Fetch.MaxDelayMS == 0 {
		cfg.Retry.Fetch.MaxDelayMS = 60000
	}
	// Publish: 3 attempts, 0.5s base, 10s cap
	if cfg.Retry.Publish.MaxAttempts == 0 {
		cfg.Retry.Publish.MaxAttempts = 3
	}
	if cfg.Retry.Publish.BaseDelayMS == 0 {
		cfg.Retry.Publish.BaseDelayMS = 500
	}
	if cfg.Retry.Publish.MaxDelayMS == 0 {
		cfg.Retry.Publish.MaxDelayMS = 10000
	}
	for _, p := range []*PolicyConfig{&cfg.Retry.Fetch, &cfg.Retry.Publish} {
		if p.ExponentialBase == 0 {
			p.ExponentialBase = 2
		}
		if p.JitterMin == 0 && p.JitterMax == 0 {
			p.JitterMin, p.JitterMax = 0.5, 1.5
		}
	}
	if cfg.Ingest.Source == "" {
		cfg.Ingest.Source = "shein"
	}
	if cfg.Ingest.Currency == "" {
		cfg.Ingest.Currency = "SAR"
	}
	if cfg.Ingest.SKUPrefix == "" {
		cfg.Ingest.SKUPrefix = "SHEIN"
	}
	if len(cfg.Source.Schemes) == 0 {
		cfg.Source.Schemes = []string{SchemeS3}
	}
	if cfg.Trigger.WaitSeconds == 0 {
		cfg.Trigger.WaitSeconds = 20
	}
	if cfg.Trigger.MaxMessages == 0 {
		cfg.Trigger.MaxMessages = 10
	}
	if cfg.Trigger.VisibilityTimeoutSeconds == 0 {
		cfg.Trigger.VisibilityTimeoutSeconds = 300
	}
	if cfg.Lock.TTLSeconds == 0 {
		cfg.Lock.TTLSeconds = 600
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = StorageMemory
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "data/runs"
	}
	if cfg.Storage.TTLDays == 0 {
		cfg.Storage.TTLDays = 90
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
}

// Validate reports settings no component can run with.
func (cfg *Config) Validate() error {
	if cfg.Publish.BatchSize < 1 || cfg.Publish.BatchSize > 10 {
		return fmt.Errorf("publish.batch_size must be between 1 and 10, got %d", cfg.Publish.BatchSize)
	}
	switch cfg.Publish.Bus {
	case BusEventBridge, BusMemory:
	case BusSQS:
		if cfg.Publish.QueueURL == "" {
			return fmt.Errorf("publish.queue_url is required for the sqs bus")
		}
	default:
		return fmt.Errorf("unknown publish.bus %q", cfg.Publish.Bus)
	}
	if cfg.Trigger.MaxMessages < 1 || cfg.Trigger.MaxMessages > 10 {
		return fmt.Errorf("trigger.max_messages must be between 1 and 10, got %d", cfg.Trigger.MaxMessages)
	}
	if cfg.Trigger.WaitSeconds < 0 || cfg.Trigger.WaitSeconds > 20 {
		return fmt.Errorf("trigger.wait_seconds must be between 0 and 20, got %d", cfg.Trigger.WaitSeconds)
	}
	for _, s := range cfg.Source.Schemes {
		switch s {
		case SchemeS3, SchemeHTTP, SchemeHTTPS, SchemeFile:
		default:
			return fmt.Errorf("unknown source scheme %q", s)
		}
	}
	switch cfg.Storage.Type {
	case StorageMemory, StorageLocal:
	case StorageDynamoDB:
		if cfg.Storage.TableName == "" {
			return fmt.Errorf("storage.table_name is required for dynamodb run history")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", cfg.Storage.Type)
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("AWS_ENDPOINT_URL"); v != "" {
		cfg.AWS.EndpointURL = v
	}
	if v := os.Getenv("EVENT_BUS_NAME"); v != "" {
		cfg.Publish.BusName = v
	}
	if v := os.Getenv("PUBLISH_BUS"); v != "" {
		cfg.Publish.Bus = v
	}
	if v := os.Getenv("SQS_EVENTS_QUEUE_URL"); v != "" {
		cfg.Publish.QueueURL = v
	}
	if v := os.Getenv("SQS_TRIGGER_QUEUE_URL"); v != "" {
		cfg.Trigger.QueueURL = v
	}
	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("BATCH_SIZE: %w", err)
		}
		cfg.Publish.BatchSize = n
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Lock.RedisURL = v
	}
	if v := os.Getenv("STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("RUNS_TABLE"); v != "" {
		cfg.Storage.TableName = v
	}
	if v := os.Getenv("SOURCE_SCHEMES"); v != "" {
		cfg.Source.Schemes = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Source.Schemes = append(cfg.Source.Schemes, strings.ToLower(s))
			}
		}
	}
	if v := os.Getenv("SOURCE_FILE_ROOT"); v != "" {
		cfg.Source.FileRoot = v
	}
	if v := os.Getenv("PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("PORT: %w", err)
		}
		cfg.Server.Port = n
	}

	return cfg, nil
}
