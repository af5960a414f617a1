// Package redis stores run traces in Redis. Each record is a JSON value under
// <prefix>run:<run id>; <prefix>fp:<fingerprint> points at the latest run.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperr "github.com/sweetpotato0/hybrid-analyst/errors"
	"github.com/sweetpotato0/hybrid-analyst/tracestore"
)

// Client is the subset of the go-redis client the store uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Time-to-live for keys (0 means no expiration)
}

// DefaultConfig returns local defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "localhost:6379",
		Prefix: "hybrid-analyst:trace:",
	}
}

// Store implements tracestore.Store on Redis.
type Store struct {
	client Client
	prefix string
	ttl    time.Duration
}

var _ tracestore.Store = (*Store)(nil)

// New connects to Redis.
func New(cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewWithClient(client, cfg.Prefix, cfg.TTL)
}

// NewWithClient wraps an existing client.
func NewWithClient(client Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) runKey(runID string) string { return s.prefix + "run:" + runID }

func (s *Store) fingerprintKey(fp string) string { return s.prefix + "fp:" + fp }

// Save writes the record and moves the fingerprint pointer to it.
func (s *Store) Save(ctx context.Context, record *tracestore.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal trace record: %w", err)
	}
	if err := s.client.Set(ctx, s.runKey(record.RunID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save trace record: %w", err)
	}
	if record.Fingerprint == "" {
		return nil
	}
	if err := s.client.Set(ctx, s.fingerprintKey(record.Fingerprint), record.RunID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to index trace fingerprint: %w", err)
	}
	return nil
}

// Get loads the record for a run.
func (s *Store) Get(ctx context.Context, runID string) (*tracestore.Record, error) {
	raw, err := s.client.Get(ctx, s.runKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: run %s", apperr.ErrNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load trace record: %w", err)
	}
	var rec tracestore.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace record: %w", err)
	}
	return &rec, nil
}

// FindByFingerprint follows the fingerprint pointer.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*tracestore.Record, error) {
	runID, err := s.client.Get(ctx, s.fingerprintKey(fingerprint)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: fingerprint %s", apperr.ErrNotFound, fingerprint)
		}
		return nil, fmt.Errorf("failed to load trace fingerprint: %w", err)
	}
	return s.Get(ctx, runID)
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
