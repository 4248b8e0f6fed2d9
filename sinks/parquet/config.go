package parquet

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	envEndpoint       = "S3_ENDPOINT"
	envRegion         = "S3_REGION"
	envBucket         = "S3_BUCKET"
	envAccessKey      = "S3_ACCESS_KEY"
	envSecretKey      = "S3_SECRET_KEY"
	envPathStyle      = "S3_FORCE_PATH_STYLE"
	envPrefix         = "PARQUET_PREFIX"
	envFlushIntervalS = "PARQUET_FLUSH_INTERVAL_S"
	envBatchRows      = "PARQUET_BATCH_ROWS"

	envNATSURL       = "PARQUET_NATS_URL"
	envStream        = "PARQUET_NATS_STREAM"
	envSubjectRoot   = "PARQUET_SUBJECT_ROOT"
	envConsumer      = "PARQUET_CONSUMER"
	envPullBatch     = "PARQUET_PULL_BATCH"
	envPullTimeoutMS = "PARQUET_PULL_TIMEOUT_MS"
)

// S3Config locates the bucket archives are uploaded to. Any S3-compatible
// store works; MinIO needs path-style addressing.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
}

func (c S3Config) complete() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds parameters for the Parquet writer.
type Config struct {
	S3 S3Config
	// Prefix is prepended to every object key.
	Prefix        string
	FlushInterval time.Duration
	// BatchRows flushes as soon as one program/date partition holds this
	// many rows.
	BatchRows int
}

func DefaultConfig() Config {
	return Config{
		S3: S3Config{
			Region:    "us-east-1",
			PathStyle: true,
		},
		Prefix:        "decoded/",
		FlushInterval: 15 * time.Minute,
		BatchRows:     5000,
	}
}

func (c Config) Validate() error {
	switch {
	case c.S3.Endpoint == "":
		return fmt.Errorf("S3 endpoint is required")
	case c.S3.Bucket == "":
		return fmt.Errorf("S3 bucket is required")
	case c.S3.AccessKey == "" || c.S3.SecretKey == "":
		return fmt.Errorf("S3 credentials are required")
	case c.S3.Region == "":
		return fmt.Errorf("S3 region must be set")
	case c.Prefix == "":
		return fmt.Errorf("object prefix cannot be empty")
	case c.FlushInterval <= 0:
		return fmt.Errorf("flush interval must be positive")
	case c.BatchRows <= 0:
		return fmt.Errorf("batch rows must be positive")
	}
	return nil
}

// FromEnv overlays S3_* and PARQUET_* variables on DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	for env, dst := range map[string]*string{
		envEndpoint:  &cfg.S3.Endpoint,
		envRegion:    &cfg.S3.Region,
		envBucket:    &cfg.S3.Bucket,
		envAccessKey: &cfg.S3.AccessKey,
		envSecretKey: &cfg.S3.SecretKey,
		envPrefix:    &cfg.Prefix,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv(envPathStyle); v != "" {
		pathStyle, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPathStyle, err)
		}
		cfg.S3.PathStyle = pathStyle
	}
	if v := os.Getenv(envFlushIntervalS); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envFlushIntervalS, err)
		}
		cfg.FlushInterval = time.Duration(seconds) * time.Second
	}
	if v := os.Getenv(envBatchRows); v != "" {
		rows, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envBatchRows, err)
		}
		cfg.BatchRows = rows
	}
	return cfg, cfg.Validate()
}

// ServiceConfig binds the writer to the JetStream consumer feeding it.
type ServiceConfig struct {
	NATSURL     string
	Stream      string
	SubjectRoot string
	Consumer    string
	PullBatch   int
	PullTimeout time.Duration
	Writer      Config
}

func (c ServiceConfig) Validate() error {
	switch {
	case c.NATSURL == "":
		return fmt.Errorf("nats url is required")
	case c.Stream == "":
		return fmt.Errorf("nats stream is required")
	case c.SubjectRoot == "":
		return fmt.Errorf("subject root is required")
	case c.Consumer == "":
		return fmt.Errorf("consumer name is required")
	case c.PullBatch <= 0:
		return fmt.Errorf("pull batch must be positive")
	case c.PullTimeout <= 0:
		return fmt.Errorf("pull timeout must be positive")
	}
	return c.Writer.Validate()
}

func ServiceConfigFromEnv() (ServiceConfig, error) {
	cfg := ServiceConfig{
		NATSURL:     valueOrDefault(os.Getenv(envNATSURL), "nats://127.0.0.1:4222"),
		Stream:      valueOrDefault(os.Getenv(envStream), "DEX"),
		SubjectRoot: valueOrDefault(os.Getenv(envSubjectRoot), "dex.sol"),
		Consumer:    valueOrDefault(os.Getenv(envConsumer), "parquet-sink"),
		PullBatch:   256,
		PullTimeout: 500 * time.Millisecond,
	}

	if v := os.Getenv(envPullBatch); v != "" {
		batch, err := strconv.Atoi(v)
		if err != nil || batch <= 0 {
			return ServiceConfig{}, fmt.Errorf("invalid %s: %q", envPullBatch, v)
		}
		cfg.PullBatch = batch
	}
	if v := os.Getenv(envPullTimeoutMS); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return ServiceConfig{}, fmt.Errorf("invalid %s: %q", envPullTimeoutMS, v)
		}
		cfg.PullTimeout = time.Duration(ms) * time.Millisecond
	}

	writerCfg, err := FromEnv()
	if err != nil {
		return ServiceConfig{}, err
	}
	cfg.Writer = writerCfg
	return cfg, cfg.Validate()
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
