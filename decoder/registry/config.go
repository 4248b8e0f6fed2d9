package registry

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	envPrograms     = "DECODER_PROGRAMS"
	envProgramsFile = "DECODER_PROGRAMS_FILE"
)

// Config selects which programs the registry decodes.
type Config struct {
	Programs []Program
}

// DefaultConfig matches NewDefault.
func DefaultConfig() Config {
	return Config{Programs: []Program{ProgramRaydiumAMM}}
}

// FromEnv reads DECODER_PROGRAMS_FILE (a programs.yaml) or a comma-separated
// DECODER_PROGRAMS list of names or addresses. The file wins when both are set.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv(envProgramsFile); path != "" {
		programs, err := LoadProgramsFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Programs = programs
		return cfg, cfg.Validate()
	}
	if v := os.Getenv(envPrograms); v != "" {
		programs, err := ParsePrograms(strings.Split(v, ","))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPrograms, err)
		}
		cfg.Programs = programs
	}
	return cfg, cfg.Validate()
}

// Validate ensures at least one program is selected.
func (c Config) Validate() error {
	if len(c.Programs) == 0 {
		return fmt.Errorf("at least one program is required")
	}
	return nil
}

// Build constructs the registry described by the config.
func (c Config) Build() (*Registry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return ForPrograms(c.Programs...)
}

// ParsePrograms parses names or addresses, skipping blanks.
func ParsePrograms(values []string) ([]Program, error) {
	var out []Program
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		p, err := ParseProgram(v)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadProgramsFile reads a programs.yaml of the form
//
//	programs:
//	  raydium_amm_v4: 675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8
//
// Each entry must name a known program; the address, when given, must match.
func LoadProgramsFile(path string) ([]Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read programs file: %w", err)
	}

	var file struct {
		Programs map[string]string `yaml:"programs"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse programs YAML: %w", err)
	}

	out := make([]Program, 0, len(file.Programs))
	for name, id := range file.Programs {
		p, err := ParseProgram(name)
		if err != nil {
			return nil, err
		}
		if id != "" && id != p.ID().String() {
			return nil, fmt.Errorf("program %s: address %s does not match %s", name, id, p.ID())
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Filters maps program names to addresses, the shape stream subscriptions use.
func (r *Registry) Filters() map[string]string {
	out := make(map[string]string, len(r.matchers))
	for _, p := range r.Programs() {
		out[p.String()] = p.ID().String()
	}
	return out
}
