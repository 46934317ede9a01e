package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded, when present, before the environment is parsed
var DefaultEnvFiles = []string{".env", ".env.local"}

type MongoOptions struct {
	URI            string        `env:"MONGO_URI" envDefault:"mongodb://mongodb:27017/repairdb?replicaSet=rs0"`
	Database       string        `env:"MONGO_DATABASE" envDefault:"repairdb"`
	ConnectRetries int           `env:"MONGO_CONNECT_RETRIES" envDefault:"5"`
	RetryDelay     time.Duration `env:"MONGO_RETRY_DELAY" envDefault:"2s"`
}

type OpenTelemetryOptions struct {
	Enabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	Endpoint string `env:"OTEL_ENDPOINT" envDefault:"jaeger:4318"`
	URLPath  string `env:"OTEL_URL_PATH" envDefault:"/v1/traces"`
}

type ConsulOptions struct {
	Enabled bool   `env:"CONSUL_ENABLED" envDefault:"false"`
	Address string `env:"CONSUL_ADDRESS" envDefault:"consul:8500"`
	// ServiceAddress is the host other services use to reach this one
	ServiceAddress string `env:"SERVICE_ADDRESS" envDefault:"repair-service"`
}

type KafkaOptions struct {
	Enabled           bool          `env:"KAFKA_ENABLED" envDefault:"false"`
	BootstrapServers  string        `env:"KAFKA_BOOTSTRAP_SERVERS" envDefault:"kafka:9092"`
	SchemaRegistryURL string        `env:"SCHEMA_REGISTRY_URL" envDefault:"http://schema-registry:8081"`
	Topic             string        `env:"KAFKA_TOPIC" envDefault:"repair-events"`
	PollInterval      time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
}

type RateLimitOptions struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	// Rate uses the limiter format <limit>-<period>, e.g. 300-M
	Rate string `env:"RATE_LIMIT_RATE" envDefault:"300-M"`
}

type LogOptions struct {
	// Path enables JSON file logging when not empty
	Path  string `env:"LOG_PATH" envDefault:""`
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

type Config struct {
	Mongo         MongoOptions
	OpenTelemetry OpenTelemetryOptions
	Consul        ConsulOptions
	Kafka         KafkaOptions
	RateLimit     RateLimitOptions
	Log           LogOptions

	ServiceName   string        `env:"SERVICE_NAME" envDefault:"repair-service"`
	ServicePort   int           `env:"SERVICE_PORT" envDefault:"8083"`
	GRPCPort      int           `env:"GRPC_PORT" envDefault:"50051"`
	SessionSecret string        `env:"SESSION_SECRET,required"`
	CORSOrigins   []string      `env:"CORS_ORIGIN" envSeparator:","`
	MetricsPath   string        `env:"METRICS_PATH" envDefault:"/metrics"`
	NotifyTimeout time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`
}

// LoadEnv loads the env files that exist and reports how many were found.
// Variables already present in the environment win.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files and parses the environment into a Config
func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the struct tags cannot express
func (c *Config) Validate() error {
	var errs []error
	if len(c.SessionSecret) < 16 {
		errs = append(errs, errors.New("SESSION_SECRET must be at least 16 bytes"))
	}
	if c.ServicePort <= 0 || c.ServicePort > 65535 {
		errs = append(errs, fmt.Errorf("SERVICE_PORT out of range: %d", c.ServicePort))
	}
	if c.GRPCPort <= 0 || c.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("GRPC_PORT out of range: %d", c.GRPCPort))
	}
	if c.Mongo.ConnectRetries < 1 {
		errs = append(errs, fmt.Errorf("MONGO_CONNECT_RETRIES must be positive, got %d", c.Mongo.ConnectRetries))
	}
	if c.Kafka.Enabled && c.Kafka.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %s", c.Kafka.PollInterval))
	}
	if c.NotifyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_TIMEOUT must be positive, got %s", c.NotifyTimeout))
	}
	return errors.Join(errs...)
}

// RateLimitRate returns the limiter rate, or "" when limiting is off
func (c *Config) RateLimitRate() string {
	if !c.RateLimit.Enabled {
		return ""
	}
	return c.RateLimit.Rate
}

// HTTPAddr is the listen address of the HTTP API
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.ServicePort)
}

// GRPCAddr is the listen address of the gRPC health server
func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%d", c.GRPCPort)
}
