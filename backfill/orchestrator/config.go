package orchestrator

import (
	"fmt"
	"os"
	"strconv"
)

const (
	envStartSlot   = "BACKFILL_START_SLOT"
	envEndSlot     = "BACKFILL_END_SLOT"
	envBatchSize   = "BACKFILL_BATCH_SIZE"
	envConcurrency = "BACKFILL_CONCURRENCY"
)

// Config describes the slot span to backfill and how wide to fan out.
// EndSlot is exclusive; zero means the caller resolves it before Run, and an
// orchestrator left with zero walks until the uint64 range is exhausted.
type Config struct {
	StartSlot   uint64
	EndSlot     uint64
	BatchSize   uint64
	Concurrency int
}

// DefaultConfig sizes ranges for JSON-RPC block fetching, where every slot
// is one request.
func DefaultConfig() Config {
	return Config{
		BatchSize:   1_000,
		Concurrency: 4,
	}
}

func (c Config) Validate() error {
	if c.EndSlot != 0 && c.StartSlot >= c.EndSlot {
		return fmt.Errorf("start slot must be less than end slot")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	return nil
}

// FromEnv builds a Config from BACKFILL_* variables on top of DefaultConfig.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, field := range []struct {
		env string
		dst *uint64
	}{
		{envStartSlot, &cfg.StartSlot},
		{envEndSlot, &cfg.EndSlot},
		{envBatchSize, &cfg.BatchSize},
	} {
		v := os.Getenv(field.env)
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", field.env, err)
		}
		*field.dst = n
	}

	if v := os.Getenv(envConcurrency); v != "" {
		conc, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envConcurrency, err)
		}
		cfg.Concurrency = conc
	}

	return cfg, cfg.Validate()
}
