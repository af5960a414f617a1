// Package config loads process configuration from defaults, an optional YAML
// file and HYBRIDQA_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Process modes.
const (
	ModeBatch = "batch"
	ModeMCP   = "mcp"
)

// Corpus chunkers.
const (
	ChunkerParagraph = "paragraph"
	ChunkerMarkdown  = "markdown"
)

// Trace store backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

// Config is the full process configuration.
type Config struct {
	Mode       string           `yaml:"mode"`
	LLM        LLMConfig        `yaml:"llm"`
	Database   DatabaseConfig   `yaml:"database"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Batch      BatchConfig      `yaml:"batch"`
	TraceStore TraceStoreConfig `yaml:"tracestore"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DatabaseConfig describes the tabular store. DSN wins over the host parts.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxRows  int    `yaml:"max_rows"`
}

// CorpusConfig locates the document corpus.
type CorpusConfig struct {
	Dir      string   `yaml:"dir"`
	Patterns []string `yaml:"patterns"`
	TopK     int      `yaml:"top_k"`
	// Chunker is "paragraph" or "markdown" (split by heading).
	Chunker string `yaml:"chunker"`
}

// WorkflowConfig tunes the answering workflow.
type WorkflowConfig struct {
	Name          string        `yaml:"name"`
	RepairLimit   int           `yaml:"repair_limit"`
	StepTimeout   time.Duration `yaml:"step_timeout"`
	ContextBudget int           `yaml:"context_token_budget"`
	MaxResultRows int           `yaml:"max_result_rows"`
	Tokenizer     string        `yaml:"tokenizer"` // simple or a tiktoken encoding/model name
}

// BatchConfig tunes batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// TraceStoreConfig selects where run traces go.
type TraceStoreConfig struct {
	Backend string      `yaml:"backend"`
	Cache   bool        `yaml:"cache"`
	Redis   RedisConfig `yaml:"redis"`
	Mongo   MongoConfig `yaml:"mongo"`
}

// RedisConfig holds Redis settings.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// MongoConfig holds MongoDB settings.
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	Disable     bool   `yaml:"disable"`
	ServiceName string `yaml:"service_name"`
	Endpoint    string `yaml:"endpoint"`
	// SampleRatio is the fraction of runs traced; 0 traces every run.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Mode: ModeBatch,
		LLM: LLMConfig{
			Provider:  "openai",
			MaxTokens: 1024,
		},
		Database: DatabaseConfig{
			Driver:  "sqlite3",
			DSN:     "data/northwind.sqlite",
			Port:    5432,
			SSLMode: "disable",
			MaxRows: 200,
		},
		Corpus: CorpusConfig{
			Dir:      "docs",
			Patterns: []string{"**/*.md"},
			TopK:     3,
			Chunker:  ChunkerParagraph,
		},
		Workflow: WorkflowConfig{
			Name:          "hybrid-analyst",
			RepairLimit:   3,
			StepTimeout:   60 * time.Second,
			ContextBudget: 3000,
			MaxResultRows: 50,
			Tokenizer:     "simple",
		},
		Batch: BatchConfig{Concurrency: 4},
		TraceStore: TraceStoreConfig{
			Backend: BackendNone,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "hybrid-analyst:trace:",
			},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "hybrid_analyst",
				Collection: "traces",
			},
		},
		Telemetry: TelemetryConfig{ServiceName: "hybrid-analyst"},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decodeYAML(raw); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// env reads typed overrides and collects parse failures.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (e *env) setList(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *env) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (e *env) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = f
	}
}

func (e *env) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (e *env) setDuration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := &env{lookup: lookup}

	e.setString("HYBRIDQA_MODE", &c.Mode)

	e.setString("HYBRIDQA_LLM_PROVIDER", &c.LLM.Provider)
	e.setString("HYBRIDQA_LLM_MODEL", &c.LLM.Model)
	e.setString("HYBRIDQA_LLM_API_KEY", &c.LLM.APIKey)
	e.setString("HYBRIDQA_LLM_BASE_URL", &c.LLM.BaseURL)
	e.setFloat("HYBRIDQA_LLM_TEMPERATURE", &c.LLM.Temperature)
	e.setInt("HYBRIDQA_LLM_MAX_TOKENS", &c.LLM.MaxTokens)
	if c.LLM.APIKey == "" {
		e.setString(providerKeyEnv(c.LLM.Provider), &c.LLM.APIKey)
	}

	e.setString("HYBRIDQA_DB_DRIVER", &c.Database.Driver)
	e.setString("HYBRIDQA_DB_DSN", &c.Database.DSN)
	e.setString("HYBRIDQA_DB_HOST", &c.Database.Host)
	e.setInt("HYBRIDQA_DB_PORT", &c.Database.Port)
	e.setString("HYBRIDQA_DB_USER", &c.Database.User)
	e.setString("HYBRIDQA_DB_PASSWORD", &c.Database.Password)
	e.setString("HYBRIDQA_DB_NAME", &c.Database.DBName)
	e.setString("HYBRIDQA_DB_SSLMODE", &c.Database.SSLMode)
	e.setInt("HYBRIDQA_DB_MAX_ROWS", &c.Database.MaxRows)

	e.setString("HYBRIDQA_CORPUS_DIR", &c.Corpus.Dir)
	e.setList("HYBRIDQA_CORPUS_PATTERNS", &c.Corpus.Patterns)
	e.setInt("HYBRIDQA_TOP_K", &c.Corpus.TopK)
	e.setString("HYBRIDQA_CORPUS_CHUNKER", &c.Corpus.Chunker)

	e.setString("HYBRIDQA_WORKFLOW_NAME", &c.Workflow.Name)
	e.setInt("HYBRIDQA_REPAIR_LIMIT", &c.Workflow.RepairLimit)
	e.setDuration("HYBRIDQA_STEP_TIMEOUT", &c.Workflow.StepTimeout)
	e.setInt("HYBRIDQA_CONTEXT_BUDGET", &c.Workflow.ContextBudget)
	e.setInt("HYBRIDQA_MAX_RESULT_ROWS", &c.Workflow.MaxResultRows)
	e.setString("HYBRIDQA_TOKENIZER", &c.Workflow.Tokenizer)

	e.setInt("HYBRIDQA_BATCH_CONCURRENCY", &c.Batch.Concurrency)

	e.setString("HYBRIDQA_TRACESTORE", &c.TraceStore.Backend)
	e.setBool("HYBRIDQA_CACHE", &c.TraceStore.Cache)
	e.setString("HYBRIDQA_REDIS_ADDR", &c.TraceStore.Redis.Addr)
	e.setString("HYBRIDQA_REDIS_PASSWORD", &c.TraceStore.Redis.Password)
	e.setInt("HYBRIDQA_REDIS_DB", &c.TraceStore.Redis.DB)
	e.setString("HYBRIDQA_REDIS_PREFIX", &c.TraceStore.Redis.Prefix)
	e.setDuration("HYBRIDQA_REDIS_TTL", &c.TraceStore.Redis.TTL)
	e.setString("HYBRIDQA_MONGO_URI", &c.TraceStore.Mongo.URI)
	e.setString("HYBRIDQA_MONGO_DB", &c.TraceStore.Mongo.Database)
	e.setString("HYBRIDQA_MONGO_COLLECTION", &c.TraceStore.Mongo.Collection)

	e.setBool("HYBRIDQA_TELEMETRY_DISABLE", &c.Telemetry.Disable)
	e.setString("HYBRIDQA_SERVICE_NAME", &c.Telemetry.ServiceName)
	e.setString("HYBRIDQA_OTLP_ENDPOINT", &c.Telemetry.Endpoint)
	e.setFloat("HYBRIDQA_TRACE_SAMPLE_RATIO", &c.Telemetry.SampleRatio)

	e.setString("HYBRIDQA_METRICS_ADDR", &c.Metrics.Addr)

	if len(e.errs) > 0 {
		return fmt.Errorf("invalid environment: %w", errors.Join(e.errs...))
	}
	return nil
}

// providerKeyEnv names the conventional API key variable for a provider.
func providerKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "claude", "anthropic":
		return "ANTHROPIC_API_KEY"
	case "gemini":
		return "GEMINI_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateOneOf("mode", c.Mode, ModeBatch, ModeMCP)

	v.ValidateOneOf("llm.provider", strings.ToLower(c.LLM.Provider), "openai", "claude", "anthropic", "gemini")
	v.RequireNonEmpty("llm.api_key", c.LLM.APIKey)
	v.ValidateFloatRange("llm.temperature", c.LLM.Temperature, 0.0, 2.0)
	v.RequirePositive("llm.max_tokens", c.LLM.MaxTokens)

	v.ValidateOneOf("database.driver", c.Database.Driver, "sqlite3", "postgres")
	switch {
	case c.Database.DSN != "":
	case c.Database.Driver == "postgres":
		v.RequireNonEmpty("database.host", c.Database.Host)
		v.ValidatePort("database.port", c.Database.Port)
		v.RequireNonEmpty("database.user", c.Database.User)
		v.RequireNonEmpty("database.dbname", c.Database.DBName)
		v.ValidateOneOf("database.sslmode", c.Database.SSLMode, "disable", "require", "verify-ca", "verify-full")
	default:
		v.RequireNonEmpty("database.dsn", c.Database.DSN)
	}
	v.ValidateRange("database.max_rows", c.Database.MaxRows, 0, 1_000_000)

	v.RequireNonEmpty("corpus.dir", c.Corpus.Dir)
	v.RequireAny("corpus.patterns", c.Corpus.Patterns)
	v.RequirePositive("corpus.top_k", c.Corpus.TopK)
	v.ValidateOneOf("corpus.chunker", c.Corpus.Chunker, ChunkerParagraph, ChunkerMarkdown)

	v.RequireNonEmpty("workflow.name", c.Workflow.Name)
	v.ValidateRange("workflow.repair_limit", c.Workflow.RepairLimit, 1, 10)
	v.RequirePositiveDuration("workflow.step_timeout", c.Workflow.StepTimeout)
	v.RequirePositive("workflow.context_token_budget", c.Workflow.ContextBudget)
	v.RequirePositive("workflow.max_result_rows", c.Workflow.MaxResultRows)
	v.RequireNonEmpty("workflow.tokenizer", c.Workflow.Tokenizer)

	v.RequirePositive("batch.concurrency", c.Batch.Concurrency)

	ts := c.TraceStore
	v.ValidateOneOf("tracestore.backend", ts.Backend, BackendNone, BackendMemory, BackendRedis, BackendMongo)
	switch ts.Backend {
	case BackendRedis:
		v.RequireNonEmpty("tracestore.redis.addr", ts.Redis.Addr)
		v.ValidateDBNumber("tracestore.redis.db", ts.Redis.DB)
		v.RequireNonEmpty("tracestore.redis.prefix", ts.Redis.Prefix)
	case BackendMongo:
		v.RequireNonEmpty("tracestore.mongo.uri", ts.Mongo.URI)
		v.RequireNonEmpty("tracestore.mongo.database", ts.Mongo.Database)
		v.RequireNonEmpty("tracestore.mongo.collection", ts.Mongo.Collection)
	}

	if !c.Telemetry.Disable {
		v.RequireNonEmpty("telemetry.service_name", c.Telemetry.ServiceName)
		v.ValidateFloatRange("telemetry.sample_ratio", c.Telemetry.SampleRatio, 0, 1)
	}

	return v.Error()
}
