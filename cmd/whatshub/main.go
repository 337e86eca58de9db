package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatshub/internal/config"
	"whatshub/internal/constants"
	"whatshub/internal/database"
	"whatshub/internal/events"
	"whatshub/internal/metrics"
	"whatshub/internal/queue"
	"whatshub/internal/ratelimit"
	"whatshub/internal/retry"
	"whatshub/internal/service"
	"whatshub/internal/tracing"
	"whatshub/pkg/media"
	"whatshub/pkg/whatsapp"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("WhatsHub %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	// Optional .env for local development; real deployments set env directly.
	_ = godotenv.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting WhatsHub")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	limiter := ratelimit.New(rdb, time.Duration(cfg.RateLimit.WindowSec)*time.Second)
	publisher := events.NewPublisher(rdb)
	registry := metrics.NewRegistry()

	waClient := whatsapp.NewClient(
		time.Duration(constants.DefaultHTTPTimeoutSec)*time.Second,
		time.Duration(cfg.Media.DownloadTimeoutSec)*time.Second,
	)

	mediaHandler, err := media.NewHandler(
		cfg.Media.Dir,
		waClient,
		db,
		logger,
		registry,
		time.Duration(cfg.Media.MetadataTimeoutSec)*time.Second,
		time.Duration(cfg.Media.DownloadTimeoutSec)*time.Second,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize media handler: %w", err)
	}

	q := queue.New(cfg.Queue.ShortWorkers, cfg.Queue.LongWorkers, logger)
	q.Start(ctx)
	defer q.Stop()

	sender := service.NewSender(db, waClient, limiter, cfg.RateLimit.PerMinute, registry, logger)
	campaignEngine := service.NewCampaignEngine(db, sender, cfg.Campaign.BatchSize, registry, logger)
	dispatcher := service.NewDispatcher(db, mediaHandler, q, publisher, registry, logger)
	gateway := service.NewGateway(db, q, dispatcher, registry, logger)

	scheduler := service.NewScheduler(
		db, sender.Send, campaignEngine,
		time.Duration(cfg.Scheduler.SweepIntervalSec)*time.Second,
		registry, logger,
	)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(cfg, gateway, scheduler, campaignEngine, limiter, registry, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
