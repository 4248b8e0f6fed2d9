package blocks

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
)

const (
	envRPCURL       = "BACKFILL_RPC_URL"
	envCommitment   = "BACKFILL_COMMITMENT"
	envMaxRetries   = "BACKFILL_MAX_RETRIES"
	envRetryBackoff = "BACKFILL_RETRY_BACKOFF_MS"
)

// Config controls how blocks are fetched from JSON-RPC.
type Config struct {
	RPCURL string
	// Commitment is "finalized" or "confirmed". Block heads are published
	// with the matching status.
	Commitment   rpc.CommitmentType
	MaxRetries   int
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		RPCURL:       rpc.MainNetBeta_RPC,
		Commitment:   rpc.CommitmentFinalized,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Commitment != rpc.CommitmentFinalized && c.Commitment != rpc.CommitmentConfirmed {
		return fmt.Errorf("commitment must be finalized or confirmed, got %q", c.Commitment)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must be non-negative")
	}
	return nil
}

func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if v := os.Getenv(envRPCURL); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv(envCommitment); v != "" {
		cfg.Commitment = rpc.CommitmentType(v)
	}
	if v := os.Getenv(envMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envMaxRetries, err)
		}
		cfg.MaxRetries = n
	}
	if v := os.Getenv(envRetryBackoff); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envRetryBackoff, err)
		}
		cfg.RetryBackoff = time.Duration(ms) * time.Millisecond
	}
	return cfg, cfg.Validate()
}

func (c Config) headStatus() string {
	if c.Commitment == rpc.CommitmentConfirmed {
		return "confirmed"
	}
	return "finalized"
}
