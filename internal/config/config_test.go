package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			assert.Equal(t, 8080, cfg.Server.Port)
			assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
			assert.Equal(t, "chat_relay", cfg.Database.Database)
			assert.Equal(t, "inbound_events", cfg.RabbitMQ.Queue.Name)
			assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
			assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
			assert.Equal(t, 500*time.Millisecond, cfg.Queue.MinDelay)
			assert.Equal(t, 1500*time.Millisecond, cfg.Queue.MaxDelay)
			assert.Equal(t, 5, cfg.Queue.MaxAttempts)
			assert.Equal(t, time.Second, cfg.Queue.MinInterval)
			assert.Equal(t, BackendHTTP, cfg.Delivery.Backend)
			assert.Equal(t, 20*time.Second, cfg.Delivery.Timeout)
			assert.Equal(t, map[string]string{"dashboard": "dash-key"}, cfg.Auth.APIKeys)
			assert.Equal(t, "chat-relay-api", cfg.App.Name)

			// unset values fall back to defaults
			assert.Equal(t, 2*time.Second, cfg.Queue.BaseBackoff)
			assert.Equal(t, 30*time.Second, cfg.Queue.MaxBackoff)
			assert.Equal(t, 250*time.Millisecond, cfg.Queue.PollInterval)
			assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
			assert.Equal(t, 4, cfg.Webhook.Concurrency)
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHATRELAY_DATABASE_PASSWORD", "from-env")
	t.Setenv("CHATRELAY_QUEUE_MAX_ATTEMPTS", "7")
	t.Setenv("CHATRELAY_QUEUE_MIN_INTERVAL", "2s")
	t.Setenv("CHATRELAY_DELIVERY_BACKEND", "LOG")
	t.Setenv("CHATRELAY_AUTH_API_KEYS", "ops:ops-key")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, 7, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.MinInterval)
	assert.Equal(t, BackendLog, cfg.Delivery.Backend)
	assert.Equal(t, map[string]string{"ops": "ops-key"}, cfg.Auth.APIKeys)

	// untouched by env
	assert.Equal(t, "relay", cfg.Database.User)
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, time.Second, cfg.Queue.MinDelay)
	assert.Equal(t, 3*time.Second, cfg.Queue.MaxDelay)
	assert.Equal(t, 2*time.Second, cfg.Queue.BaseBackoff)
	assert.Equal(t, 30*time.Second, cfg.Queue.MaxBackoff)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.PollInterval)
	assert.Zero(t, cfg.Queue.MinInterval)
	assert.Equal(t, BackendLog, cfg.Delivery.Backend)
	assert.Equal(t, 30*time.Second, cfg.Delivery.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, 8, cfg.Webhook.Concurrency)
	assert.Equal(t, 4, cfg.Inbound.Concurrency)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
}

func validAPIConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "chat_relay",
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			Exchange: ExchangeConfig{Name: "chat_relay"},
			Queue:    QueueConfig{Name: "inbound_events"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			errString: "invalid server port",
		},
		{
			name:      "missing database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			errString: "database host is required",
		},
		{
			name:      "invalid database port",
			mutate:    func(c *Config) { c.Database.Port = -1 },
			errString: "invalid database port",
		},
		{
			name:      "missing database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			errString: "database name is required",
		},
		{
			name: "min delay above max delay",
			mutate: func(c *Config) {
				c.Queue.MinDelay = 5 * time.Second
				c.Queue.MaxDelay = time.Second
			},
			errString: "exceeds max_delay",
		},
		{
			name:      "negative max attempts",
			mutate:    func(c *Config) { c.Queue.MaxAttempts = -1 },
			errString: "max_attempts must be greater than 0",
		},
		{
			name:      "backoff base above cap",
			mutate:    func(c *Config) { c.Queue.BaseBackoff = time.Minute },
			errString: "base_backoff",
		},
		{
			name:      "negative min interval",
			mutate:    func(c *Config) { c.Queue.MinInterval = -time.Second },
			errString: "min_interval must not be negative",
		},
		{
			name:      "unknown backend",
			mutate:    func(c *Config) { c.Delivery.Backend = "smtp" },
			errString: "unknown delivery backend",
		},
		{
			name:      "http backend without base url",
			mutate:    func(c *Config) { c.Delivery.Backend = BackendHTTP },
			errString: "base_url is required",
		},
		{
			name: "http backend with base url",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendHTTP
				c.Delivery.BaseURL = "http://bridge:3100"
			},
		},
		{
			name: "rabbitmq backend without host",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendRabbitMQ
				c.RabbitMQ.Host = ""
			},
			errString: "rabbitmq host is required",
		},
		{
			name: "rabbitmq backend without exchange",
			mutate: func(c *Config) {
				c.Delivery.Backend = BackendRabbitMQ
				c.RabbitMQ.Exchange.Name = ""
			},
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty api key",
			mutate:    func(c *Config) { c.Auth.APIKeys = map[string]string{"dashboard": ""} },
			errString: `api key "dashboard" is empty`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateInbound(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		errString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:      "missing rabbitmq exchange",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "missing rabbitmq queue",
			mutate:    func(c *Config) { c.RabbitMQ.Queue.Name = "" },
			errString: "rabbitmq queue name is required",
		},
		{
			name:      "invalid rabbitmq port",
			mutate:    func(c *Config) { c.RabbitMQ.Port = 0 },
			errString: "invalid rabbitmq port",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Inbound.Concurrency = -2 },
			errString: "inbound concurrency must be greater than 0",
		},
		{
			name: "server port is not required",
			mutate: func(c *Config) {
				c.Server.Port = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAPIConfig()
			tt.mutate(cfg)

			err := cfg.ValidateInbound()
			if tt.errString != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		require.NoError(t, cfg.Validate())
		require.NoError(t, cfg.ValidateInbound())
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestClientConfigs(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	consumer := cfg.RabbitMQ.ClientConfig(false)
	assert.Equal(t, "inbound_events", consumer.QueueName)
	assert.Equal(t, "chat_relay", consumer.ExchangeName)
	assert.Equal(t, "inbound", consumer.RoutingKey)

	publisher := cfg.RabbitMQ.ClientConfig(true)
	assert.Empty(t, publisher.QueueName)
	assert.Equal(t, "chat_relay", publisher.ExchangeName)

	pg := cfg.Database.PostgreSQLConfig()
	assert.Equal(t, "chat_relay", pg.Database)
	assert.Equal(t, 10, pg.MaxOpenConns)

	assert.Equal(t, "localhost:6379", cfg.Redis.RedisClientConfig().Addr)
	assert.Equal(t, "json", cfg.Logging.LoggerConfig().Format)
}
