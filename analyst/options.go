package analyst

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/hybrid-analyst/graph"
)

// Config controls the answering workflow.
type Config struct {
	Name        string        // Logical name for logging
	TopK        int           // Passages requested from the retriever
	RepairLimit int           // Repair attempts before synthesis is forced
	StepTimeout time.Duration // Per collaborator call; 0 disables
	Schema      string        // Table/column description handed to the query generator

	logger   *slog.Logger
	observer graph.Observer
}

// Option customises the workflow configuration.
type Option func(*Config)

// WithName sets the logical workflow name used in logs.
func WithName(name string) Option {
	return func(cfg *Config) {
		if name != "" {
			cfg.Name = name
		}
	}
}

// WithTopK overrides how many passages the retriever returns.
func WithTopK(k int) Option {
	return func(cfg *Config) {
		if k > 0 {
			cfg.TopK = k
		}
	}
}

// WithRepairLimit sets how many repair attempts run before the workflow
// proceeds to synthesis with an unresolved failure.
func WithRepairLimit(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.RepairLimit = n
		}
	}
}

// WithStepTimeout bounds every collaborator call. A timeout is handled like
// any other failure of that call.
func WithStepTimeout(d time.Duration) Option {
	return func(cfg *Config) {
		if d >= 0 {
			cfg.StepTimeout = d
		}
	}
}

// WithSchema sets the schema description given to the query generator.
func WithSchema(schema string) Option {
	return func(cfg *Config) {
		cfg.Schema = schema
	}
}

// WithLogger overrides the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithObserver installs a hook notified after every workflow step.
func WithObserver(o graph.Observer) Option {
	return func(cfg *Config) {
		cfg.observer = o
	}
}

func defaultConfig() *Config {
	return &Config{
		Name:        "hybrid",
		TopK:        3,
		RepairLimit: 3,
		StepTimeout: 60 * time.Second,
	}
}

func applyOptions(opts []Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}
