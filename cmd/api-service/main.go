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
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/chat-relay/internal/api/handler"
	"github.com/cuongbtq/chat-relay/internal/api/router"
	"github.com/cuongbtq/chat-relay/internal/cache"
	"github.com/cuongbtq/chat-relay/internal/config"
	"github.com/cuongbtq/chat-relay/internal/dispatcher"
	"github.com/cuongbtq/chat-relay/internal/queue"
	"github.com/cuongbtq/chat-relay/internal/storage"
	"github.com/cuongbtq/chat-relay/internal/webhook"
	"github.com/cuongbtq/chat-relay/shared/logger"
	"github.com/cuongbtq/chat-relay/shared/postgresql"
	"github.com/cuongbtq/chat-relay/shared/rabbitmq"
	"github.com/cuongbtq/chat-relay/shared/redis"
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

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("delivery_backend", cfg.Delivery.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := postgresql.NewClient(cfg.Database.PostgreSQLConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if cfg.Database.SchemaPath != "" {
		if err := dbClient.ApplySchemaFile(ctx, cfg.Database.SchemaPath); err != nil {
			return err
		}
	}

	jobStore := storage.NewJobStore(dbClient)
	subscriptions, closeRedis, err := initSubscriptions(ctx, cfg, dbClient, appLogger.Logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	notifier := webhook.NewNotifier(subscriptions, webhook.Config{
		Timeout:     cfg.Webhook.Timeout,
		Concurrency: cfg.Webhook.Concurrency,
		UserAgent:   cfg.Webhook.UserAgent,
	}, appLogger.Logger)

	backend, closeBackend, err := initBackend(cfg, appLogger.Logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	disp := dispatcher.New(cfg.Delivery.Timeout, appLogger.Logger)
	dispatcher.RegisterSendHandlers(disp, backend)
	if err := disp.MustCover(); err != nil {
		return fmt.Errorf("invalid dispatcher setup: %w", err)
	}

	jobQueue := queue.New(queue.Config{
		MinDelay:     cfg.Queue.MinDelay,
		MaxDelay:     cfg.Queue.MaxDelay,
		BaseBackoff:  cfg.Queue.BaseBackoff,
		MaxBackoff:   cfg.Queue.MaxBackoff,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		PollInterval: cfg.Queue.PollInterval,
		MinInterval:  cfg.Queue.MinInterval,
	}, jobStore, disp, appLogger.Logger)

	jobQueue.Subscribe(func(ev queue.Event) {
		notifier.NotifyAsync(ev.Name, ev.Payload())
	})

	requeued, err := jobQueue.Reconcile(ctx)
	if err != nil {
		appLogger.Error("Failed to reconcile persisted jobs", slog.Any("error", err))
	} else {
		appLogger.Info("Persisted jobs reconciled", slog.Int("requeued", requeued))
	}

	var workerWG sync.WaitGroup
	workerWG.Add(1)
	go func() {
		defer workerWG.Done()
		jobQueue.Run(ctx)
	}()

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	r := router.SetupRouter(&handler.Dependencies{
		Logger:        appLogger.Logger,
		Queue:         jobQueue,
		Jobs:          jobStore,
		Subscriptions: subscriptions,
		Deliverer:     notifier,
		ServiceName:   cfg.App.Name,
	}, router.Config{
		APIKeys:     cfg.Auth.APIKeys,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case err := <-serverErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
	}

	// the worker finishes its in-flight delivery before returning
	workerWG.Wait()

	if err := notifier.Wait(shutdownCtx); err != nil {
		appLogger.Warn("Pending webhook notifications abandoned", slog.Any("error", err))
	}

	appLogger.Info("API service shutdown complete")
	return nil
}

// initSubscriptions returns the subscription repository, wrapped in the Redis
// cache when redis.addr is set.
func initSubscriptions(ctx context.Context, cfg *config.Config, db *postgresql.Client, logger *slog.Logger) (handler.SubscriptionRepository, func(), error) {
	store := storage.NewSubscriptionStore(db)
	if cfg.Redis.Addr == "" {
		logger.Info("Redis not configured, subscription cache disabled")
		return store, func() {}, nil
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.RedisClientConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Error("Failed to close redis client", slog.Any("error", err))
		}
	}
	return cache.NewSubscriptionCache(store, rdb, cfg.Redis.CacheTTL, logger), closeFn, nil
}

// initBackend builds the delivery backend named by delivery.backend.
func initBackend(cfg *config.Config, logger *slog.Logger) (dispatcher.Backend, func(), error) {
	switch cfg.Delivery.Backend {
	case config.BackendHTTP:
		return dispatcher.NewHTTPBackend(cfg.Delivery.BaseURL, cfg.Delivery.APIKey, cfg.Delivery.Timeout), func() {}, nil

	case config.BackendRabbitMQ:
		rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(true), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		closeFn := func() {
			if err := rabbitClient.Close(); err != nil {
				logger.Error("Failed to close RabbitMQ client", slog.Any("error", err))
			}
		}
		return dispatcher.NewRabbitBackend(rabbitClient, cfg.Delivery.RoutingKey), closeFn, nil

	default:
		return dispatcher.NewLogBackend(logger), func() {}, nil
	}
}
