package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/jobpipe/internal/config"
	"github.com/cuongbtq/jobpipe/internal/database"
	"github.com/cuongbtq/jobpipe/internal/events"
	"github.com/cuongbtq/jobpipe/internal/worker"
	"github.com/cuongbtq/jobpipe/internal/worker/storage"
	"github.com/cuongbtq/jobpipe/shared/logger"
	"github.com/cuongbtq/jobpipe/shared/postgresql"
	"github.com/cuongbtq/jobpipe/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid worker config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only PostgreSQL is needed to archive events
	pgOnly := cfg.Database
	pgOnly.Redis.Enabled = false
	pgOnly.Mongo.Enabled = false

	dbManager := database.NewManager(appLogger.Logger, database.FromConfig(pgOnly, appLogger.Logger)...)
	if err := dbManager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := dbManager.Shutdown(context.Background()); err != nil {
			appLogger.Error("Database shutdown failed", slog.Any("error", err))
		}
	}()

	store, err := initStorage(ctx, dbManager.Connections().Postgres(), appLogger.Logger)
	if err != nil {
		return err
	}

	rabbitClient, err := rabbitmq.NewClient(ctx, events.BrokerConfig(cfg.RabbitMQ), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close(context.Background())

	appLogger.Info("RabbitMQ connection established")

	hostname, _ := os.Hostname()
	workerInstance, err := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		Consumer:      rabbitClient,
		Store:         store,
		WorkerID:      fmt.Sprintf("%s-%s-%d", cfg.App.Name, hostname, os.Getpid()),
		QueueName:     cfg.RabbitMQ.Queue.Name,
		Concurrency:   cfg.Worker.Concurrency,
		PrefetchCount: cfg.Worker.PrefetchCount,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// Start worker in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	select {
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
			return err
		}
		return errors.New("worker stopped: delivery channel closed")
	}

	workerInstance.Stop()

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.Config) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		App:          cfg.App.Name,
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initStorage prepares the job_events archive table
func initStorage(ctx context.Context, db *postgresql.Client, logger *slog.Logger) (*storage.Storage, error) {
	if db == nil {
		return nil, errors.New("postgres connection is not available")
	}

	store := storage.NewStorage(db.GetDB(), logger)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}
