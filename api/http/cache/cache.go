package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rexbrahh/ix-decoder/api/http/types"
	"github.com/rexbrahh/ix-decoder/decoder/common"
)

// ErrDisabled indicates the cache layer is disabled via configuration.
var ErrDisabled = errors.New("redis cache disabled")

// Config represents Redis client configuration options.
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// LoadConfigFromEnv constructs a Config from environment variables.
//
// Recognized variables:
//   - API_REDIS_ADDR (required to enable the cache)
//   - API_REDIS_PASSWORD (optional)
//   - API_REDIS_DB (defaults to 0)
//   - API_REDIS_TTL (parseable duration, defaults to 1h)
func LoadConfigFromEnv() (Config, error) {
	addr := os.Getenv("API_REDIS_ADDR")
	if addr == "" {
		return Config{Enabled: false, TTL: time.Hour}, nil
	}

	db := 0
	if rawDB := os.Getenv("API_REDIS_DB"); rawDB != "" {
		parsed, err := strconv.Atoi(rawDB)
		if err != nil {
			return Config{}, fmt.Errorf("invalid API_REDIS_DB: %w", err)
		}
		db = parsed
	}

	// Decoded output is a pure function of the instruction, so entries only
	// expire to bound memory.
	ttl := time.Hour
	if rawTTL := os.Getenv("API_REDIS_TTL"); rawTTL != "" {
		parsed, err := time.ParseDuration(rawTTL)
		if err != nil {
			return Config{}, fmt.Errorf("invalid API_REDIS_TTL: %w", err)
		}
		ttl = parsed
	}

	return Config{
		Enabled:  true,
		Addr:     addr,
		Password: os.Getenv("API_REDIS_PASSWORD"),
		DB:       db,
		TTL:      ttl,
	}, nil
}

// Cache stores rendered instructions in Redis.
type Cache struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Cache from the provided configuration.
func New(cfg Config) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{cfg: cfg}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &Cache{
		client: client,
		cfg:    cfg,
	}, nil
}

// Key derives the cache key for an instruction decoded by program.
func Key(program string, ix common.Instruction) string {
	return fmt.Sprintf("decoded:%s:%s", program, ix.Fingerprint())
}

// Enabled reports whether a Redis client is configured.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// GetDecoded returns types.ErrNotFound on a miss.
func (c *Cache) GetDecoded(ctx context.Context, key string) (*common.DecodedInstruction, error) {
	if !c.Enabled() {
		return nil, ErrDisabled
	}

	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// UseNumber keeps u64 amounts above 2^53 exact.
	var decoded common.DecodedInstruction
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	return &decoded, nil
}

// SetDecoded stores a rendered instruction under key.
func (c *Cache) SetDecoded(ctx context.Context, key string, decoded *common.DecodedInstruction) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	payload, err := json.Marshal(decoded)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.cfg.TTL).Err()
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
