package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvPrefix prefixes every environment override, e.g. CHATRELAY_DATABASE_PASSWORD.
	EnvPrefix = "CHATRELAY"
)

// Delivery backends
const (
	BackendHTTP     = "http"
	BackendRabbitMQ = "rabbitmq"
	BackendLog      = "log"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Queue    JobQueueConfig `yaml:"queue"`
	Delivery DeliveryConfig `yaml:"delivery"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Auth     AuthConfig     `yaml:"auth"`
	Inbound  InboundConfig  `yaml:"inbound"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	CORSOrigins     []string      `yaml:"cors_origins" split_words:"true"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" split_words:"true"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" split_words:"true"`
	// SchemaPath, when set, is applied on startup.
	SchemaPath string `yaml:"schema_path" split_words:"true"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key" split_words:"true"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete" split_words:"true"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete" split_words:"true"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" split_words:"true"`
	RetryInterval     time.Duration `yaml:"retry_interval" split_words:"true"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout" split_words:"true"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts" split_words:"true"`
	RetryInterval     time.Duration `yaml:"retry_interval" split_words:"true"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" split_words:"true"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	Tag           string `yaml:"tag"`
	PrefetchCount int    `yaml:"prefetch_count" split_words:"true"`
}

// RedisConfig configures the subscription cache. An empty Addr disables it.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout" split_words:"true"`
	ReadTimeout  time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout time.Duration `yaml:"write_timeout" split_words:"true"`
	CacheTTL     time.Duration `yaml:"cache_ttl" split_words:"true"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller" split_words:"true"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// JobQueueConfig holds the outbound job queue timing.
type JobQueueConfig struct {
	MinDelay     time.Duration `yaml:"min_delay" split_words:"true"`
	MaxDelay     time.Duration `yaml:"max_delay" split_words:"true"`
	BaseBackoff  time.Duration `yaml:"base_backoff" split_words:"true"`
	MaxBackoff   time.Duration `yaml:"max_backoff" split_words:"true"`
	MaxAttempts  int           `yaml:"max_attempts" split_words:"true"`
	PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
	MinInterval  time.Duration `yaml:"min_interval" split_words:"true"`
}

// DeliveryConfig selects and configures the delivery backend.
type DeliveryConfig struct {
	Backend    string        `yaml:"backend"`
	Timeout    time.Duration `yaml:"timeout"`
	BaseURL    string        `yaml:"base_url" split_words:"true"`
	APIKey     string        `yaml:"api_key" split_words:"true"`
	RoutingKey string        `yaml:"routing_key" split_words:"true"`
}

// WebhookConfig configures outgoing webhook requests.
type WebhookConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency"`
	UserAgent   string        `yaml:"user_agent" split_words:"true"`
}

// AuthConfig maps key names to API keys. No keys means auth is off.
type AuthConfig struct {
	APIKeys map[string]string `yaml:"api_keys" split_words:"true"`
}

// InboundConfig holds inbound-service configuration
type InboundConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
}

// Load reads the configuration file, applies CHATRELAY_* environment
// overrides and fills defaults.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, fmt.Errorf("failed to process env overrides: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	setDuration(&c.Server.ReadTimeout, 10*time.Second)
	setDuration(&c.Server.WriteTimeout, 40*time.Second)
	setDuration(&c.Server.IdleTimeout, 60*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 15*time.Second)

	setDuration(&c.Queue.MinDelay, time.Second)
	setDuration(&c.Queue.MaxDelay, 3*time.Second)
	setDuration(&c.Queue.BaseBackoff, 2*time.Second)
	setDuration(&c.Queue.MaxBackoff, 30*time.Second)
	setDuration(&c.Queue.PollInterval, 250*time.Millisecond)
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}

	if c.Delivery.Backend == "" {
		c.Delivery.Backend = BackendLog
	}
	c.Delivery.Backend = strings.ToLower(c.Delivery.Backend)
	setDuration(&c.Delivery.Timeout, 30*time.Second)

	setDuration(&c.Webhook.Timeout, 10*time.Second)
	if c.Webhook.Concurrency == 0 {
		c.Webhook.Concurrency = 8
	}

	setDuration(&c.Redis.CacheTTL, time.Minute)

	if c.Inbound.Concurrency == 0 {
		c.Inbound.Concurrency = 4
	}
	setDuration(&c.Inbound.ShutdownTimeout, 15*time.Second)

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// Validate checks the api-service configuration.
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateQueue(); err != nil {
		return err
	}

	switch c.Delivery.Backend {
	case BackendHTTP:
		if c.Delivery.BaseURL == "" {
			return fmt.Errorf("delivery base_url is required for the http backend")
		}
	case BackendRabbitMQ:
		if err := c.validateRabbitMQ(); err != nil {
			return err
		}
		if c.RabbitMQ.Exchange.Name == "" {
			return fmt.Errorf("rabbitmq exchange name is required")
		}
	case BackendLog:
	default:
		return fmt.Errorf("unknown delivery backend: %q (must be %s, %s or %s)", c.Delivery.Backend, BackendHTTP, BackendRabbitMQ, BackendLog)
	}

	if c.Delivery.Timeout <= 0 {
		return fmt.Errorf("delivery timeout must be greater than 0")
	}

	if c.Webhook.Concurrency <= 0 {
		return fmt.Errorf("webhook concurrency must be greater than 0")
	}

	for name, key := range c.Auth.APIKeys {
		if key == "" {
			return fmt.Errorf("api key %q is empty", name)
		}
	}

	return nil
}

// ValidateInbound checks the inbound-service configuration.
func (c *Config) ValidateInbound() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.Inbound.Concurrency <= 0 {
		return fmt.Errorf("inbound concurrency must be greater than 0")
	}

	if c.Webhook.Concurrency <= 0 {
		return fmt.Errorf("webhook concurrency must be greater than 0")
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	return nil
}

func (c *Config) validateQueue() error {
	q := c.Queue
	if q.MinDelay < 0 || q.MaxDelay < 0 {
		return fmt.Errorf("queue delays must not be negative")
	}

	if q.MinDelay > q.MaxDelay {
		return fmt.Errorf("queue min_delay %s exceeds max_delay %s", q.MinDelay, q.MaxDelay)
	}

	if q.MaxAttempts <= 0 {
		return fmt.Errorf("queue max_attempts must be greater than 0")
	}

	if q.BaseBackoff < 0 || q.BaseBackoff > q.MaxBackoff {
		return fmt.Errorf("queue base_backoff %s must be between 0 and max_backoff %s", q.BaseBackoff, q.MaxBackoff)
	}

	if q.MinInterval < 0 {
		return fmt.Errorf("queue min_interval must not be negative")
	}

	return nil
}
