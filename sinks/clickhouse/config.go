package clickhouse

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	envSinkNATSURL         = "CH_SINK_NATS_URL"
	envSinkStream          = "CH_SINK_NATS_STREAM"
	envSinkSubjectRoot     = "CH_SINK_SUBJECT_ROOT"
	envSinkConsumer        = "CH_SINK_CONSUMER"
	envSinkPullBatch       = "CH_SINK_PULL_BATCH"
	envSinkPullTimeoutMS   = "CH_SINK_PULL_TIMEOUT_MS"
	envSinkFlushIntervalMS = "CH_SINK_FLUSH_INTERVAL_MS"

	envSinkDSN             = "CH_SINK_DSN"
	envSinkDatabase        = "CH_SINK_DATABASE"
	envSinkInstrTable      = "CH_SINK_INSTRUCTIONS_TABLE"
	envSinkBlocksTable     = "CH_SINK_BLOCKS_TABLE"
	envSinkBatchSize       = "CH_SINK_BATCH_SIZE"
	envSinkMaxRetries      = "CH_SINK_MAX_RETRIES"
	envSinkRetryBackoffMS  = "CH_SINK_RETRY_BACKOFF_MS"
	envSinkRetryBackoffMax = "CH_SINK_RETRY_BACKOFF_MAX_MS"
)

// ServiceConfig ties a JetStream pull consumer to a ClickHouse writer.
type ServiceConfig struct {
	NATSURL     string
	Stream      string
	SubjectRoot string
	Consumer    string
	PullBatch   int
	PullTimeout time.Duration
	Writer      Config
}

// DefaultServiceConfig targets a local NATS and ClickHouse pair.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		NATSURL:     "nats://127.0.0.1:4222",
		Stream:      "DEX",
		SubjectRoot: "dex.sol",
		Consumer:    "clickhouse-sink",
		PullBatch:   256,
		PullTimeout: 500 * time.Millisecond,
		Writer: Config{
			DSN:               "clickhouse://localhost:9000",
			Database:          "dex",
			InstructionsTable: "decoded_instructions",
			BlocksTable:       "block_heads",
			BatchSize:         512,
			FlushInterval:     time.Second,
			MaxRetries:        3,
			RetryBackoffBase:  200 * time.Millisecond,
			RetryBackoffMax:   5 * time.Second,
		},
	}
}

func (c ServiceConfig) Validate() error {
	switch {
	case c.NATSURL == "":
		return errors.New("nats url is required")
	case c.Stream == "":
		return errors.New("nats stream is required")
	case c.SubjectRoot == "":
		return errors.New("subject root is required")
	case c.Consumer == "":
		return errors.New("consumer name is required")
	case c.PullBatch <= 0:
		return errors.New("pull batch must be positive")
	case c.PullTimeout <= 0:
		return errors.New("pull timeout must be positive")
	}
	return validateConfig(c.Writer)
}

// ServiceConfigFromEnv overlays CH_SINK_* variables on DefaultServiceConfig.
func ServiceConfigFromEnv() (ServiceConfig, error) {
	cfg := DefaultServiceConfig()

	for env, dst := range map[string]*string{
		envSinkNATSURL:     &cfg.NATSURL,
		envSinkStream:      &cfg.Stream,
		envSinkSubjectRoot: &cfg.SubjectRoot,
		envSinkConsumer:    &cfg.Consumer,
		envSinkDSN:         &cfg.Writer.DSN,
		envSinkDatabase:    &cfg.Writer.Database,
		envSinkInstrTable:  &cfg.Writer.InstructionsTable,
		envSinkBlocksTable: &cfg.Writer.BlocksTable,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	counts := []struct {
		env      string
		dst      *int
		minValue int
	}{
		{envSinkPullBatch, &cfg.PullBatch, 1},
		{envSinkBatchSize, &cfg.Writer.BatchSize, 1},
		{envSinkMaxRetries, &cfg.Writer.MaxRetries, 0},
	}
	for _, c := range counts {
		n, ok, err := intEnv(c.env, c.minValue)
		if err != nil {
			return ServiceConfig{}, err
		}
		if ok {
			*c.dst = n
		}
	}

	millis := []struct {
		env      string
		dst      *time.Duration
		minValue int
	}{
		{envSinkPullTimeoutMS, &cfg.PullTimeout, 1},
		{envSinkFlushIntervalMS, &cfg.Writer.FlushInterval, 1},
		{envSinkRetryBackoffMS, &cfg.Writer.RetryBackoffBase, 0},
		{envSinkRetryBackoffMax, &cfg.Writer.RetryBackoffMax, 0},
	}
	for _, m := range millis {
		n, ok, err := intEnv(m.env, m.minValue)
		if err != nil {
			return ServiceConfig{}, err
		}
		if ok {
			*m.dst = time.Duration(n) * time.Millisecond
		}
	}

	return cfg, cfg.Validate()
}

// intEnv reads an integer variable; ok is false when it is unset.
func intEnv(env string, minValue int) (n int, ok bool, err error) {
	raw := os.Getenv(env)
	if raw == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(raw)
	if err != nil || n < minValue {
		return 0, false, fmt.Errorf("invalid %s: %q", env, raw)
	}
	return n, true, nil
}
