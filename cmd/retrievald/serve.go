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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/aggregate"
	"github.com/fyrsmithlabs/retrievald/internal/analyzer"
	"github.com/fyrsmithlabs/retrievald/internal/budget"
	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/embeddings"
	"github.com/fyrsmithlabs/retrievald/internal/invalidation"
	"github.com/fyrsmithlabs/retrievald/internal/llm"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/orchestrator"
	"github.com/fyrsmithlabs/retrievald/internal/retriever"
	"github.com/fyrsmithlabs/retrievald/internal/scope"
	"github.com/fyrsmithlabs/retrievald/internal/server"
	"github.com/fyrsmithlabs/retrievald/internal/stats"
	"github.com/fyrsmithlabs/retrievald/internal/telemetry"
	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the retrievald daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return run(ctx)
	},
}

// run initializes all dependencies and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logger.Sync()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Observability, version)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown failed", zap.Error(err))
		}
	}()

	cfgStore := config.NewStore(cfg, configPath, logger)
	if err := cfgStore.Watch(ctx); err != nil {
		return fmt.Errorf("watching config: %w", err)
	}

	// Invalidation bus; NATS feeds it when enabled, caches subscribe.
	bus := invalidation.NewBus()
	if cfg.Invalidation.Enabled {
		consumer, err := invalidation.NewConsumer(cfg.Invalidation.URL, cfg.Invalidation.Subject, bus, logger)
		if err != nil {
			return fmt.Errorf("starting invalidation consumer: %w", err)
		}
		defer consumer.Close()
	}

	apiKey := cfg.Embedding.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embedding.BaseURL,
		Model:   cfg.Embedding.Model,
		APIKey:  apiKey,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	store, err := vectorstore.NewStore(cfg.VectorStore, embedder, logger)
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	defer store.Close()

	model, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("creating llm client: %w", err)
	}

	resolver := scope.NewResolver(cfgStore, bus, logger)
	probe := stats.NewProbe(store, nil, cfgStore, bus, logger)
	planner := budget.NewPlanner(cfgStore)
	queryAnalyzer := analyzer.New(model, cfgStore, logger)
	counter := aggregate.NewCounter(store, nil, logger)

	var ret retriever.Retriever = retriever.NewLocal(store, cfgStore, logger)
	if cfg.Federation.Enabled {
		nodes := make([]retriever.NodeClient, 0, len(cfg.Federation.Nodes))
		for _, nodeCfg := range cfg.Federation.Nodes {
			nodes = append(nodes, retriever.NewHTTPNodeClient(nodeCfg, cfg.Federation.RequestTimeout))
		}
		federated := retriever.NewFederated(ret, nodes, cfgStore, logger)
		go federated.RunHealthChecks(ctx)
		ret = federated
	}

	orch := orchestrator.New(queryAnalyzer, resolver, probe, planner, ret, counter, model, cfgStore, logger)

	srv, err := server.NewServer(orch, store, nil, cfgStore, logger)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info(ctx, "retrievald started",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vector_store", cfg.VectorStore.Provider),
		zap.Bool("federation", cfg.Federation.Enabled),
	)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	logger.Info(context.Background(), "shutdown complete")
	return nil
}
