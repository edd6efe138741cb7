package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient connects to Redis and verifies the connection with PING.
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*goredis.Client, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("invalid redis address: %q", config.Addr)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unexpected error while pinging redis: %w", err)
	}

	logger.Info("Redis connection established",
		slog.String("addr", config.Addr),
		slog.Int("db", config.DB),
	)
	return client, nil
}
