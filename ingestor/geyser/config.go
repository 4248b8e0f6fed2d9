package geyser

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const (
	envEndpoint         = "GEYSER_ENDPOINT"
	envAPIKey           = "GEYSER_API_KEY"
	envFallbackEndpoint = "GEYSER_FALLBACK_ENDPOINT"
	envFallbackAPIKey   = "GEYSER_FALLBACK_API_KEY"

	// PrimarySource labels the primary endpoint in logs and metrics.
	PrimarySource = "geyser"
	// FallbackSource labels the fallback endpoint.
	FallbackSource = "geyser-fallback"
)

// Config holds Geyser client configuration
type Config struct {
	// Name labels the endpoint in logs and metrics.
	Name string `yaml:"name"`

	// Endpoint is the Geyser gRPC endpoint (e.g., "grpc.chainstack.com:443")
	Endpoint string `yaml:"endpoint"`

	// APIKey is the authentication key for the Geyser endpoint
	APIKey string `yaml:"api_key"`

	// ProgramFilters maps program names to the ids whose transactions are streamed.
	ProgramFilters map[string]string `yaml:"program_filters"`
}

// LoadConfig reads the primary endpoint from the environment and streams
// transactions for the given programs (see registry.Filters).
func LoadConfig(filters map[string]string) (*Config, error) {
	cfg := &Config{
		Name:           PrimarySource,
		Endpoint:       os.Getenv(envEndpoint),
		APIKey:         os.Getenv(envAPIKey),
		ProgramFilters: copyFilters(filters),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFallbackConfig reads GEYSER_FALLBACK_*. It returns nil when no fallback
// endpoint is configured. The API key defaults to the primary one.
func LoadFallbackConfig(primary *Config) (*Config, error) {
	endpoint := os.Getenv(envFallbackEndpoint)
	if endpoint == "" {
		return nil, nil
	}
	cfg := &Config{
		Name:     FallbackSource,
		Endpoint: endpoint,
		APIKey:   os.Getenv(envFallbackAPIKey),
	}
	if primary != nil {
		if cfg.APIKey == "" {
			cfg.APIKey = primary.APIKey
		}
		cfg.ProgramFilters = copyFilters(primary.ProgramFilters)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return cfg, nil
}

func copyFilters(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Validate checks that required configuration fields are set
func (c *Config) Validate() error {
	var errs []string

	if c.Endpoint == "" {
		errs = append(errs, "endpoint is required")
	}

	if c.APIKey == "" {
		errs = append(errs, "api key is required")
	}

	if len(c.ProgramFilters) == 0 {
		errs = append(errs, "at least one program filter is required")
	}

	for _, name := range c.programNames() {
		programID := c.ProgramFilters[name]
		if programID == "" {
			errs = append(errs, fmt.Sprintf("program filter '%s' has empty program ID", name))
			continue
		}
		if _, err := solana.PublicKeyFromBase58(programID); err != nil {
			errs = append(errs, fmt.Sprintf("program filter '%s' has invalid program ID: %s", name, programID))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func (c *Config) programNames() []string {
	names := make([]string, 0, len(c.ProgramFilters))
	for name := range c.ProgramFilters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String returns a sanitized string representation of the config
func (c *Config) String() string {
	maskedKey := c.APIKey
	if len(maskedKey) > 8 {
		maskedKey = maskedKey[:4] + "****" + maskedKey[len(maskedKey)-4:]
	} else if maskedKey != "" {
		maskedKey = "****"
	}

	programs := make([]string, 0, len(c.ProgramFilters))
	for _, name := range c.programNames() {
		programs = append(programs, fmt.Sprintf("%s=%s", name, c.ProgramFilters[name]))
	}

	return fmt.Sprintf("Config{Name=%s, Endpoint=%s, APIKey=%s, Programs=[%s]}",
		c.Name, c.Endpoint, maskedKey, strings.Join(programs, ", "))
}
