package natsx

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	envNATSURL         = "NATS_URL"
	envNATSStream      = "NATS_STREAM"
	envNATSSubjectRoot = "NATS_SUBJECT_ROOT"
	envPublishTimeout  = "NATS_PUBLISH_TIMEOUT_MS"
	envEnsureStream    = "NATS_ENSURE_STREAM"
	envDedupWindow     = "NATS_DEDUP_WINDOW"
)

// Config describes where decoded events are published.
type Config struct {
	URL            string
	Stream         string
	SubjectRoot    string
	PublishTimeout time.Duration
	// EnsureStream creates the stream on <SubjectRoot>.> when missing.
	EnsureStream bool
	// DedupWindow is the Nats-Msg-Id window used when creating the stream.
	DedupWindow time.Duration
}

// DefaultConfig leaves URL and Stream empty; callers must supply both.
func DefaultConfig() Config {
	return Config{
		SubjectRoot:    "dex.sol",
		PublishTimeout: 5 * time.Second,
		DedupWindow:    10 * time.Minute,
	}
}

func (c Config) Validate() error {
	switch {
	case c.URL == "":
		return errors.New("NATS URL is required")
	case c.Stream == "":
		return errors.New("NATS stream is required")
	case c.SubjectRoot == "":
		return errors.New("subject root cannot be empty")
	case c.PublishTimeout <= 0:
		return errors.New("publish timeout must be positive")
	case c.DedupWindow < 0:
		return errors.New("dedup window cannot be negative")
	}
	return nil
}

// FromEnv overlays NATS_* variables on DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for env, dst := range map[string]*string{
		envNATSURL:         &cfg.URL,
		envNATSStream:      &cfg.Stream,
		envNATSSubjectRoot: &cfg.SubjectRoot,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	parsers := map[string]func(string) error{
		envPublishTimeout: func(v string) error {
			ms, err := strconv.Atoi(v)
			cfg.PublishTimeout = time.Duration(ms) * time.Millisecond
			return err
		},
		envEnsureStream: func(v string) (err error) {
			cfg.EnsureStream, err = strconv.ParseBool(v)
			return err
		},
		envDedupWindow: func(v string) (err error) {
			cfg.DedupWindow, err = time.ParseDuration(v)
			return err
		},
	}
	for env, parse := range parsers {
		v := os.Getenv(env)
		if v == "" {
			continue
		}
		if err := parse(v); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", env, err)
		}
	}

	return cfg, cfg.Validate()
}
