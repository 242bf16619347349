package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/jobpipe/internal/api/handler"
	"github.com/cuongbtq/jobpipe/internal/api/router"
	"github.com/cuongbtq/jobpipe/internal/config"
	"github.com/cuongbtq/jobpipe/internal/container"
	"github.com/cuongbtq/jobpipe/internal/database"
	"github.com/cuongbtq/jobpipe/internal/events"
	"github.com/cuongbtq/jobpipe/internal/job"
	"github.com/cuongbtq/jobpipe/internal/modules"
	"github.com/cuongbtq/jobpipe/internal/report"
	"github.com/cuongbtq/jobpipe/internal/validation"
	"github.com/cuongbtq/jobpipe/shared/logger"
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
	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
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

	// Initialize logger
	appLogger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reporter, flush, err := initReporter(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize error reporting: %w", err)
	}
	defer flush()

	// Connect every enabled backend before accepting traffic
	dbManager := database.NewManager(appLogger.Logger, database.FromConfig(cfg.Database, appLogger.Logger)...)
	if err := dbManager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := dbManager.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Database shutdown failed", slog.Any("error", err))
		}
	}()

	validator := validation.NewService()
	deps := container.New(cfg, dbManager, validator, appLogger.Logger)

	var subscribers []job.Subscriber
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := rabbitmq.NewClient(ctx, events.BrokerConfig(cfg.RabbitMQ), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close(context.Background())
		publisher := events.NewPublisher(rabbitClient, cfg.RabbitMQ.Publish.Timeout, appLogger.Logger)
		subscribers = append(subscribers, publisher.Subscriber())
		appLogger.Info("RabbitMQ connection established")
	}

	registry, err := modules.Registry(validator)
	if err != nil {
		return fmt.Errorf("failed to register use cases: %w", err)
	}

	r, err := initRouter(cfg, &handler.Dependencies{
		Container:   deps,
		Registry:    registry,
		Reporter:    reporter,
		Subscribers: subscribers,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Any("databases", dbManager.Connections().Names()),
	)

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serveErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		runErr = err
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		runErr = errors.Join(runErr, err)
	}

	appLogger.Info("Server shutdown complete")
	return runErr
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

// initReporter picks Sentry when a DSN is configured and falls back to
// logging the reports otherwise.
func initReporter(cfg *config.Config, logger *slog.Logger) (report.Reporter, func(), error) {
	if cfg.Sentry.DSN == "" {
		logger.Info("Sentry DSN not set, fault reports go to the log")
		return report.Logging{Logger: logger}, func() {}, nil
	}

	s, err := report.NewSentry(report.SentryOptions{
		DSN:              cfg.Sentry.DSN,
		Environment:      cfg.App.Environment,
		Release:          cfg.App.Version,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		FlushTimeout:     cfg.Sentry.FlushTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Flush() }, nil
}

// initRouter initializes the Gin router with all routes and middleware
func initRouter(cfg *config.Config, deps *handler.Dependencies) (*gin.Engine, error) {
	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	return router.SetupRouter(deps)
}
