package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/api"
	"github.com/rehabflow-backend/internal/config"
	"github.com/rehabflow-backend/internal/database"
	"github.com/rehabflow-backend/internal/domain"
	"github.com/rehabflow-backend/internal/middleware"
	"github.com/rehabflow-backend/internal/progress"
	"github.com/rehabflow-backend/internal/repository"
	"github.com/rehabflow-backend/internal/service"
	"github.com/rehabflow-backend/pkg/external"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
	}).Info("Starting RehabFlow backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := database.NewConnection(ctx, database.NewConfig(cfg.Database), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := runMigrations(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}

	// Redis
	cache, err := external.NewCacheClient(cfg.Cache)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer cache.Close()

	// Repositories
	assessments := repository.NewAssessmentRepository(db.Pool, logger)
	analyses := repository.NewAnalysisRepository(db.Pool, logger)
	profiles := repository.NewProfileRepository(db.Pool, logger)

	// External clients
	storage := external.NewStorageClient(cfg.Storage, logger)
	inference := external.NewInferenceClient(cfg.Inference, logger)
	translator := external.NewTranslationClient(cfg.Translation, logger)
	youtube := external.NewYouTubeClient(cfg.YouTube, logger)
	videoSearch := external.NewResilientVideoClient(youtube, logger)

	// Services
	aggregator := service.NewAggregatorService(assessments, storage, logger)
	normalizer := service.NewNormalizerService(logger)
	pipeline := service.NewPipelineService(
		aggregator, inference, normalizer, analyses, cfg.Inference.ModelVersion, logger)
	reader := service.NewAnalysisReader(
		assessments, analyses, profiles, translator, cache, logger)

	videos, err := service.NewCachedVideoResolver(service.VideoResolverConfig{}, videoSearch, cache, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create video resolver")
	}

	progressStore, err := newProgressStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open progress store")
	}
	defer progressStore.Close()

	auth := middleware.NewAuthenticator(cfg.Auth, logger)

	server := api.NewServer(cfg, logger, api.Deps{
		Pipeline: pipeline,
		Analyses: reader,
		Videos:   videos,
		Progress: progressStore,
		Auth:     auth.Middleware(),
		Probes: map[string]api.HealthProbe{
			"database": db.Health,
			"redis":    cache.Ping,
		},
	})

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	logger.Info("Server stopped")
}

func newLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

func runMigrations(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(
		database.NewConfig(cfg.Database).URL(), cfg.Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	return runner.Up(ctx)
}

// newProgressStore opens the configured progress backend. The Postgres
// backend reuses the primary database when no separate DSN is set.
func newProgressStore(cfg *domain.Config, logger *logrus.Logger) (progress.Store, error) {
	switch cfg.Progress.Backend {
	case "sqlite":
		logger.WithField("path", cfg.Progress.SQLitePath).Info("Using SQLite progress store")
		return progress.NewSQLiteStore(cfg.Progress.SQLitePath)
	default:
		dsn := cfg.Progress.PostgresDSN
		if dsn == "" {
			dsn = database.NewConfig(cfg.Database).URL()
		}
		logger.Info("Using PostgreSQL progress store")
		return progress.NewPostgresStoreFromURL(dsn)
	}
}
