package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/chat-relay/internal/cache"
	"github.com/cuongbtq/chat-relay/internal/config"
	"github.com/cuongbtq/chat-relay/internal/inbound"
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

	defaultConfigPath := os.Getenv("INBOUND_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/inbound-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateInbound(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting inbound service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := postgresql.NewClient(cfg.Database.PostgreSQLConfig(), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	var source webhook.SubscriptionSource = storage.NewSubscriptionStore(dbClient)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.RedisClientConfig(), appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		defer rdb.Close()
		source = cache.NewSubscriptionCache(storage.NewSubscriptionStore(dbClient), rdb, cfg.Redis.CacheTTL, appLogger.Logger)
	}

	notifier := webhook.NewNotifier(source, webhook.Config{
		Timeout:     cfg.Webhook.Timeout,
		Concurrency: cfg.Webhook.Concurrency,
		UserAgent:   cfg.Webhook.UserAgent,
	}, appLogger.Logger)

	rabbitClient, err := rabbitmq.NewClient(cfg.RabbitMQ.ClientConfig(false), appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	consumer := inbound.NewConsumer(rabbitClient, notifier, inbound.Config{
		ConsumerTag: cfg.RabbitMQ.Consumer.Tag,
		Concurrency: cfg.Inbound.Concurrency,
	}, appLogger.Logger)

	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received")
	case err := <-done:
		// the delivery channel closed underneath us
		if err != nil {
			return err
		}
		appLogger.Warn("Inbound consumer exited before shutdown")
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Inbound.ShutdownTimeout)
	defer cancel()

	select {
	case err := <-done:
		if err != nil {
			appLogger.Error("Inbound consumer error", slog.Any("error", err))
		}
		appLogger.Info("Inbound consumer stopped gracefully")
	case <-shutdownCtx.Done():
		appLogger.Warn("Inbound shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Inbound service shutdown complete")
	return nil
}
