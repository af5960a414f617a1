// Command hybrid-analyst answers questions over a document corpus and a
// relational database. By default it reads JSONL requests on stdin and writes
// JSONL answers on stdout; with HYBRIDQA_MODE=mcp it serves the same workflow
// as an MCP tool over stdio. Settings come from HYBRIDQA_* variables, a .env
// file, and the YAML file named by HYBRIDQA_CONFIG.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/sweetpotato0/hybrid-analyst/analyst"
	"github.com/sweetpotato0/hybrid-analyst/batch"
	"github.com/sweetpotato0/hybrid-analyst/config"
	"github.com/sweetpotato0/hybrid-analyst/contrib/chunking/markdown"
	"github.com/sweetpotato0/hybrid-analyst/contrib/collaborator/llm"
	"github.com/sweetpotato0/hybrid-analyst/contrib/provider"
	"github.com/sweetpotato0/hybrid-analyst/contrib/tokenizer/tiktoken"
	mongostore "github.com/sweetpotato0/hybrid-analyst/contrib/tracestore/mongo"
	redisstore "github.com/sweetpotato0/hybrid-analyst/contrib/tracestore/redis"
	"github.com/sweetpotato0/hybrid-analyst/mcpserver"
	"github.com/sweetpotato0/hybrid-analyst/pkg/logging"
	"github.com/sweetpotato0/hybrid-analyst/pkg/metrics"
	"github.com/sweetpotato0/hybrid-analyst/pkg/telemetry"
	"github.com/sweetpotato0/hybrid-analyst/rag/loader"
	"github.com/sweetpotato0/hybrid-analyst/rag/retriever"
	"github.com/sweetpotato0/hybrid-analyst/rag/tokenizer"
	"github.com/sweetpotato0/hybrid-analyst/sqlstore"
	"github.com/sweetpotato0/hybrid-analyst/tracestore"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logging.Logger().Error("hybrid-analyst failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := logging.WithComponent("main")

	cfg, err := config.Load(os.Getenv("HYBRIDQA_CONFIG"))
	if err != nil {
		return err
	}

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Disable:        cfg.Telemetry.Disable,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer flush(shutdownTracing)

	if cfg.Metrics.Addr != "" {
		stopMetrics := serveMetrics(cfg.Metrics.Addr)
		defer stopMetrics()
	}

	ret, err := buildRetriever(ctx, cfg.Corpus)
	if err != nil {
		return err
	}

	store, err := sqlstore.Open(ctx, &sqlstore.Config{
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxRows:  cfg.Database.MaxRows,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	schema, err := store.Schema(ctx)
	if err != nil {
		return fmt.Errorf("describe schema: %w", err)
	}

	client, closeClient, err := provider.New(ctx, provider.Config{
		Name:        cfg.LLM.Provider,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   int64(cfg.LLM.MaxTokens),
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return err
	}
	defer closeClient()

	tok, err := buildTokenizer(cfg.Workflow.Tokenizer)
	if err != nil {
		return err
	}

	collab := llm.Collaborators(client, ret, store,
		llm.WithTemperature(cfg.LLM.Temperature),
		llm.WithMaxTokens(int64(cfg.LLM.MaxTokens)),
		llm.WithContextBudget(cfg.Workflow.ContextBudget),
		llm.WithMaxResultRows(cfg.Workflow.MaxResultRows),
		llm.WithTokenizer(tok),
	)
	workflow, err := analyst.New(collab,
		analyst.WithName(cfg.Workflow.Name),
		analyst.WithTopK(cfg.Corpus.TopK),
		analyst.WithRepairLimit(cfg.Workflow.RepairLimit),
		analyst.WithStepTimeout(cfg.Workflow.StepTimeout),
		analyst.WithSchema(schema),
	)
	if err != nil {
		return err
	}

	traces, closeTraces, err := openTraceStore(ctx, cfg.TraceStore)
	if err != nil {
		return err
	}
	defer closeTraces()

	opts := []batch.Option{batch.WithConcurrency(cfg.Batch.Concurrency)}
	if traces != nil {
		opts = append(opts, batch.WithTraceStore(traces, ret.Digest()), batch.WithCache(cfg.TraceStore.Cache))
	}
	runner := batch.New(workflow, opts...)

	logger.Info("ready",
		"mode", cfg.Mode,
		"provider", cfg.LLM.Provider,
		"documents", ret.Count(),
		"corpus_digest", ret.Digest(),
		"tracestore", cfg.TraceStore.Backend,
	)

	if cfg.Mode == config.ModeMCP {
		server := mcpserver.NewServer("hybrid-analyst", version, runner, workflow)
		return mcpserver.Serve(ctx, server)
	}

	summary, err := runner.Run(ctx, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		logger.Warn("some records failed", "failed", summary.Failed, "total", summary.Total)
	}
	return nil
}

func buildRetriever(ctx context.Context, cfg config.CorpusConfig) (*retriever.Retriever, error) {
	l, err := loader.New(cfg.Dir, cfg.Patterns...)
	if err != nil {
		return nil, err
	}
	docs, err := l.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load corpus: %w", err)
	}
	var opts []retriever.Option
	if cfg.Chunker == config.ChunkerMarkdown {
		opts = append(opts, retriever.WithChunker(markdown.New()))
	}
	ret := retriever.New(opts...)
	if err := ret.IndexDocuments(ctx, docs...); err != nil {
		return nil, fmt.Errorf("index corpus: %w", err)
	}
	return ret, nil
}

func buildTokenizer(name string) (tokenizer.Tokenizer, error) {
	if name == "" || name == "simple" {
		return tokenizer.NewSimpleTokenizer(), nil
	}
	tok, err := tiktoken.NewTiktokenTokenizer(name)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", name, err)
	}
	return tok, nil
}

// openTraceStore returns a nil store for the "none" backend. The close
// function is never nil.
func openTraceStore(ctx context.Context, cfg config.TraceStoreConfig) (tracestore.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendMemory:
		return tracestore.NewInMemoryStore(), noop, nil
	case config.BackendRedis:
		s := redisstore.New(&redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		return s, func() { _ = s.Close() }, nil
	case config.BackendMongo:
		s, err := mongostore.New(ctx, &mongostore.Config{
			URI:        cfg.Mongo.URI,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.Close(closeCtx)
		}, nil
	default:
		return nil, noop, nil
	}
}

func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	logger := logging.WithComponent("metrics")
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func flush(shutdown func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logging.Logger().Warn("telemetry shutdown failed", "error", err)
	}
}
