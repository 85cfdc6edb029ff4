package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/querypilot/querypilot/internal/api"
	"github.com/querypilot/querypilot/internal/artifacts"
	"github.com/querypilot/querypilot/internal/audit"
	"github.com/querypilot/querypilot/internal/chat"
	"github.com/querypilot/querypilot/internal/config"
	"github.com/querypilot/querypilot/internal/executor"
	"github.com/querypilot/querypilot/internal/nl2sql"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/schema"
	schemapostgres "github.com/querypilot/querypilot/internal/schema/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("querypilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	db, err := schemapostgres.Open(context.Background(), schemapostgres.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	introspector := schemapostgres.NewIntrospector(db)
	schemaCache := schema.NewCache(introspector, cfg.Schema.RefreshInterval, logger)

	recorder := audit.NewPostgresRecorder(db)
	if err := recorder.EnsureSchema(context.Background()); err != nil {
		logger.Error("failed to prepare audit table", slog.Any("error", err))
		os.Exit(1)
	}

	oracle, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
		BaseURL:     cfg.Oracle.BaseURL,
		APIKey:      cfg.Oracle.APIKey,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		MaxTokens:   cfg.Oracle.MaxTokens,
		Timeout:     cfg.Oracle.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize oracle client", slog.Any("error", err))
		os.Exit(1)
	}

	executorClient, err := executor.NewClient(executor.Config{
		URL:            cfg.Executor.URL,
		ExecuteTimeout: cfg.Executor.ExecuteTimeout,
		ProbeTimeout:   cfg.Executor.ProbeTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize executor client", slog.Any("error", err))
		os.Exit(1)
	}

	artifactStore, err := newArtifactStore(cfg)
	if err != nil {
		logger.Error("failed to initialize artifact store", slog.Any("error", err))
		os.Exit(1)
	}

	chatService, err := chat.NewService(chat.Config{
		Schemas:    schemaCache,
		Generator:  nl2sql.NewGenerator(oracle),
		Summarizer: nl2sql.NewSummarizer(oracle),
		Executor:   executorClient,
		Recorder:   recorder,
		Artifacts:  artifactStore,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to build chat service", slog.Any("error", err))
		os.Exit(1)
	}

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:   logger,
		Chat:     chatService,
		Schemas:  schemaCache,
		Executor: executorClient,
		Readiness: api.CombineReadinessChecks(
			introspector.HealthCheck,
			executorClient.Probe,
			api.CheckOracleConfig(cfg),
		),
		DependencyTimeout: cfg.Executor.ProbeTimeout,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func newArtifactStore(cfg config.Config) (artifacts.Store, error) {
	switch cfg.Artifacts.Backend {
	case "local":
		return artifacts.NewLocalStore(cfg.Artifacts.Dir)
	case "s3":
		return artifacts.NewS3Store(artifacts.S3Config{
			Endpoint:        cfg.Artifacts.Endpoint,
			Region:          cfg.Artifacts.Region,
			Bucket:          cfg.Artifacts.Bucket,
			AccessKeyID:     cfg.Artifacts.AccessKeyID,
			SecretAccessKey: cfg.Artifacts.SecretAccessKey,
			UseSSL:          cfg.Artifacts.UseSSL,
			Prefix:          cfg.Artifacts.Prefix,
		})
	default:
		return nil, nil
	}
}
