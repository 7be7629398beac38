package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	MongoDB   MongoDBConfig   `json:"mongodb" yaml:"mongodb"`
	Auth      AuthConfig      `json:"auth" yaml:"auth"`
	RPC       RPCConfig       `json:"rpc" yaml:"rpc"`
	Faucet    FaucetConfig    `json:"faucet" yaml:"faucet"`
	Session   SessionConfig   `json:"session" yaml:"session"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `json:"port" yaml:"port"`
	Host         string        `json:"host" yaml:"host"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// MongoDBConfig holds MongoDB connection configuration for the API key store
type MongoDBConfig struct {
	URI              string        `json:"uri" yaml:"uri"`
	Database         string        `json:"database" yaml:"database"`
	APIKeyCollection string        `json:"api_key_collection" yaml:"api_key_collection"`
	ConnectTimeout   time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
	MaxPoolSize      uint64        `json:"max_pool_size" yaml:"max_pool_size"`
}

// AuthConfig toggles API key authentication on the HTTP API
type AuthConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// RPCConfig holds Solana RPC configuration
type RPCConfig struct {
	// Endpoints are tried in order; the first one answering the liveness probe wins
	Endpoints       []string      `json:"endpoints" yaml:"endpoints"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout"`
	ProbeTimeout    time.Duration `json:"probe_timeout" yaml:"probe_timeout"`
	PollInterval    time.Duration `json:"poll_interval" yaml:"poll_interval"`
	StickyTTL       time.Duration `json:"sticky_ttl" yaml:"sticky_ttl"`
	HealthCheckWait time.Duration `json:"health_check_wait" yaml:"health_check_wait"`
}

// FaucetConfig holds the disbursement policy
type FaucetConfig struct {
	MaxAmount           decimal.Decimal `json:"max_amount" yaml:"max_amount"`
	Cooldown            time.Duration   `json:"cooldown" yaml:"cooldown"`
	ConfirmationTimeout time.Duration   `json:"confirmation_timeout" yaml:"confirmation_timeout"`
	LamportsPerUnit     uint64          `json:"lamports_per_unit" yaml:"lamports_per_unit"`
	UnitSymbol          string          `json:"unit_symbol" yaml:"unit_symbol"`
}

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	IdleTTL         time.Duration `json:"idle_ttl" yaml:"idle_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	FeedSize        int           `json:"feed_size" yaml:"feed_size"`
}

// RateLimitConfig holds HTTP rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `json:"burst" yaml:"burst"`
	IdleTTL           time.Duration `json:"idle_ttl" yaml:"idle_ttl"`
	CleanupInterval   time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string   `json:"level" yaml:"level"`
	Environment string   `json:"environment" yaml:"environment"`
	OutputPaths []string `json:"output_paths" yaml:"output_paths"`
}

const (
	defaultMaxAmount       = "2"
	defaultLamportsPerUnit = 1_000_000_000
)

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "0.0.0.0",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:              "mongodb://localhost:27017",
			Database:         "dripx",
			APIKeyCollection: "api_keys",
			ConnectTimeout:   10 * time.Second,
			MaxPoolSize:      20,
		},
		RPC: RPCConfig{
			Endpoints:       []string{rpc.DevNet_RPC},
			Timeout:         15 * time.Second,
			ProbeTimeout:    5 * time.Second,
			PollInterval:    time.Second,
			HealthCheckWait: 5 * time.Second,
		},
		Faucet: FaucetConfig{
			MaxAmount:           decimal.RequireFromString(defaultMaxAmount),
			Cooldown:            10 * time.Second,
			ConfirmationTimeout: 30 * time.Second,
			LamportsPerUnit:     defaultLamportsPerUnit,
			UnitSymbol:          "SOL",
		},
		Session: SessionConfig{
			IdleTTL:         30 * time.Minute,
			CleanupInterval: time.Minute,
			FeedSize:        64,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             10,
			IdleTTL:           10 * time.Minute,
			CleanupInterval:   5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Environment: "development",
			OutputPaths: []string{"stdout"},
		},
	}
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() *Config {
	cfg := Defaults()
	ApplyEnvOverrides(cfg)
	return cfg
}

// Load reads the YAML file at path over the defaults and then applies the
// environment. An empty path falls back to DRIPX_CONFIG and then to no file.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DRIPX_CONFIG")
	}

	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// ApplyEnvOverrides replaces values for every environment variable that is set
func ApplyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnv("SERVER_PORT", cfg.Server.Port)
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.ReadTimeout = getDurationEnv("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDurationEnv("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getDurationEnv("SERVER_IDLE_TIMEOUT", cfg.Server.IdleTimeout)

	cfg.MongoDB.URI = getEnv("MONGODB_URI", cfg.MongoDB.URI)
	cfg.MongoDB.Database = getEnv("MONGODB_DATABASE", cfg.MongoDB.Database)
	cfg.MongoDB.APIKeyCollection = getEnv("MONGODB_APIKEY_COLLECTION", cfg.MongoDB.APIKeyCollection)
	cfg.MongoDB.ConnectTimeout = getDurationEnv("MONGODB_CONNECT_TIMEOUT", cfg.MongoDB.ConnectTimeout)
	cfg.MongoDB.MaxPoolSize = getUint64Env("MONGODB_MAX_POOL_SIZE", cfg.MongoDB.MaxPoolSize)

	cfg.Auth.Enabled = getBoolEnv("AUTH_ENABLED", cfg.Auth.Enabled)

	cfg.RPC.Endpoints = getStringSliceEnv("SOLANA_RPC_ENDPOINTS", cfg.RPC.Endpoints)
	cfg.RPC.Timeout = getDurationEnv("SOLANA_RPC_TIMEOUT", cfg.RPC.Timeout)
	cfg.RPC.ProbeTimeout = getDurationEnv("SOLANA_RPC_PROBE_TIMEOUT", cfg.RPC.ProbeTimeout)
	cfg.RPC.PollInterval = getDurationEnv("SOLANA_CONFIRM_POLL_INTERVAL", cfg.RPC.PollInterval)
	cfg.RPC.StickyTTL = getDurationEnv("SOLANA_RPC_STICKY_TTL", cfg.RPC.StickyTTL)
	cfg.RPC.HealthCheckWait = getDurationEnv("SOLANA_RPC_HEALTH_TIMEOUT", cfg.RPC.HealthCheckWait)

	cfg.Faucet.MaxAmount = getDecimalEnv("FAUCET_MAX_AMOUNT", cfg.Faucet.MaxAmount)
	cfg.Faucet.Cooldown = getDurationEnv("FAUCET_COOLDOWN", cfg.Faucet.Cooldown)
	cfg.Faucet.ConfirmationTimeout = getDurationEnv("FAUCET_CONFIRMATION_TIMEOUT", cfg.Faucet.ConfirmationTimeout)
	cfg.Faucet.LamportsPerUnit = getUint64Env("FAUCET_LAMPORTS_PER_UNIT", cfg.Faucet.LamportsPerUnit)
	cfg.Faucet.UnitSymbol = getEnv("FAUCET_UNIT_SYMBOL", cfg.Faucet.UnitSymbol)

	cfg.Session.IdleTTL = getDurationEnv("SESSION_IDLE_TTL", cfg.Session.IdleTTL)
	cfg.Session.CleanupInterval = getDurationEnv("SESSION_CLEANUP_INTERVAL", cfg.Session.CleanupInterval)
	cfg.Session.FeedSize = getIntEnv("SESSION_FEED_SIZE", cfg.Session.FeedSize)

	cfg.RateLimit.RequestsPerMinute = getIntEnv("RATE_LIMIT_REQUESTS_PER_MINUTE", cfg.RateLimit.RequestsPerMinute)
	cfg.RateLimit.Burst = getIntEnv("RATE_LIMIT_BURST", cfg.RateLimit.Burst)
	cfg.RateLimit.IdleTTL = getDurationEnv("RATE_LIMIT_IDLE_TTL", cfg.RateLimit.IdleTTL)
	cfg.RateLimit.CleanupInterval = getDurationEnv("RATE_LIMIT_CLEANUP_INTERVAL", cfg.RateLimit.CleanupInterval)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Environment = getEnv("LOG_ENVIRONMENT", cfg.Logging.Environment)
	cfg.Logging.OutputPaths = getStringSliceEnv("LOG_OUTPUT_PATHS", cfg.Logging.OutputPaths)
}

// Validate checks the values the faucet core cannot run without
func (c *Config) Validate() error {
	var errs []error

	if len(c.RPC.Endpoints) == 0 {
		errs = append(errs, errors.New("at least one RPC endpoint is required"))
	}
	for i, endpoint := range c.RPC.Endpoints {
		if strings.TrimSpace(endpoint) == "" {
			errs = append(errs, fmt.Errorf("RPC endpoint %d is empty", i))
		}
	}
	if !c.Faucet.MaxAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("faucet max amount must be positive, got %s", c.Faucet.MaxAmount))
	}
	if c.Faucet.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("faucet cooldown must not be negative, got %s", c.Faucet.Cooldown))
	}
	if c.Faucet.ConfirmationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("confirmation timeout must be positive, got %s", c.Faucet.ConfirmationTimeout))
	}
	if c.Faucet.LamportsPerUnit == 0 {
		errs = append(errs, errors.New("lamports per unit must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit requests per minute and burst must be positive"))
	}

	return errors.Join(errs...)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getUint64Env(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if uint64Value, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uint64Value
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
