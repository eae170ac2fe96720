package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/quanhua92/buildscale-ai-sub000/internal/agent"
	"github.com/quanhua92/buildscale-ai-sub000/internal/auth"
	"github.com/quanhua92/buildscale-ai-sub000/internal/blob"
	"github.com/quanhua92/buildscale-ai-sub000/internal/cache"
	"github.com/quanhua92/buildscale-ai-sub000/internal/chat"
	"github.com/quanhua92/buildscale-ai-sub000/internal/config"
	"github.com/quanhua92/buildscale-ai-sub000/internal/gateway"
	"github.com/quanhua92/buildscale-ai-sub000/internal/identity"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm"
	"github.com/quanhua92/buildscale-ai-sub000/internal/llm/providers"
	"github.com/quanhua92/buildscale-ai-sub000/internal/maintenance"
	"github.com/quanhua92/buildscale-ai-sub000/internal/observability"
	"github.com/quanhua92/buildscale-ai-sub000/internal/prompt"
	"github.com/quanhua92/buildscale-ai-sub000/internal/sessions"
	"github.com/quanhua92/buildscale-ai-sub000/internal/storage"
	"github.com/quanhua92/buildscale-ai-sub000/internal/tools"
	"github.com/quanhua92/buildscale-ai-sub000/internal/vfs"
)

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe implements the serve command logic. It wires every backend
// together, starts the HTTP server and keeps running until a shutdown
// signal arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	slog.Info("starting BuildScale",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	// Load and validate configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	_, stopTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "buildscale",
		ServiceVersion: version,
		Environment:    cfg.Observability.Environment,
		Endpoint:       cfg.Observability.TraceEndpoint,
		SamplingRate:   cfg.Observability.SampleRate,
		EnableInsecure: cfg.Observability.TraceInsecure,
	})
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopTracer(flushCtx); err != nil {
			logger.Warn(flushCtx, "tracer shutdown failed", "error", err)
		}
	}()

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := storage.NewMigrator(db)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}
	if _, pending, err := migrator.Status(ctx); err != nil {
		logger.Warn(ctx, "could not check migration status", "error", err)
	} else if len(pending) > 0 {
		logger.Warn(ctx, "database schema is behind, run \"buildscale migrate up\"",
			"pending", len(pending))
	}

	blobs, err := buildBlobStore(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	defer blobs.Close()

	// Stores and services. Everything downstream shares these instances.
	identitySvc := identity.NewService(identity.NewPostgresStore(db), logger)
	authSvc := auth.NewService(cfg.Auth, auth.NewPostgresTokenStore(db), identitySvc, logger)
	files := vfs.NewService(vfs.NewPostgresStore(db), blobs, logger)
	messages := chat.NewPostgresStore(db)
	sessionStore := sessions.NewPostgresStore(db)

	provs, err := providers.Build(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to build llm providers: %w", err)
	}
	modelGateway, err := llm.NewGateway(cfg.LLM, provs, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize llm gateway: %w", err)
	}

	catalog := tools.NewCatalog(files)
	registry := agent.NewRegistry(agent.Deps{
		Sessions:  sessionStore,
		Messages:  messages,
		Assembler: prompt.NewAssembler(messages, files, logger),
		Gateway:   modelGateway,
		Catalog:   catalog,
		Logger:    logger,
		Metrics:   metrics,
		Config:    cfg.Agent,
	})

	cacheStore := cache.New(cache.Options{
		CleanupInterval: cfg.Cache.CleanupInterval,
		Metrics:         metrics,
	})
	defer cacheStore.Stop()

	sweeper, err := maintenance.New(cfg.Maintenance, cfg.Agent, maintenance.Deps{
		Sessions: sessionStore,
		Registry: registry,
		Tokens:   authSvc,
		Files:    files,
		Cache:    cacheStore,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize maintenance sweeper: %w", err)
	}

	server := gateway.NewServer(gateway.Deps{
		Identity: identitySvc,
		Auth:     authSvc,
		Files:    files,
		Messages: messages,
		Sessions: sessionStore,
		Catalog:  catalog,
		Agents:   registry,
		Cache:    cacheStore,
		Logger:   logger,
		Metrics:  metrics,
		Config:   cfg,
	})

	// Reloading the config file adjusts the log level without a restart.
	watcher := config.NewWatcher(configPath, func(next *config.Config) {
		logger.SetLevel(next.Logging.Level)
	}, logger.Slog())

	// Create a context that cancels on shutdown signals.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweeper.Start(ctx)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn(ctx, "config watcher unavailable", "error", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	logger.Info(ctx, "BuildScale started",
		"addr", server.Addr(),
		"env", cfg.Server.Env,
		"blob_backend", cfg.Blob.Backend,
		"llm_provider", cfg.LLM.DefaultProvider,
	)

	// Wait for a shutdown signal.
	<-ctx.Done()
	logger.Info(context.Background(), "shutdown signal received, initiating graceful shutdown")

	// Create a timeout context for graceful shutdown. Shutting the server
	// down also drains the agent registry, so running turns get a chance
	// to finish before the deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if err := sweeper.Stop(shutdownCtx); err != nil && shutdownErr == nil {
		shutdownErr = fmt.Errorf("sweeper shutdown: %w", err)
	}
	watcher.Stop()
	if shutdownErr != nil {
		return fmt.Errorf("shutdown failed: %w", shutdownErr)
	}

	logger.Info(shutdownCtx, "BuildScale stopped gracefully")
	return nil
}

// buildBlobStore constructs the content store named by the config. Validate
// has already constrained the backend to a known value.
func buildBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			Prefix:          cfg.S3.Prefix,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
	default:
		return blob.NewFSStore(cfg.BaseDir)
	}
}
