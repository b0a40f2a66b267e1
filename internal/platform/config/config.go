// Package config loads server configuration from the environment, optionally
// layered over a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	pstrings "truconn/pkg/platform/strings"
)

// EnvConfigFile names the optional YAML file applied before env overrides.
const EnvConfigFile = "TRUCONN_CONFIG_FILE"

// Config is the full server configuration.
type Config struct {
	LogLevel   string     `yaml:"log_level"`
	Server     Server     `yaml:"server"`
	Database   Database   `yaml:"database"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	Auth       Auth       `yaml:"auth"`
	Compliance Compliance `yaml:"compliance"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Database struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Redis is optional; an empty URL disables the report cache.
type Redis struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Kafka is optional; without brokers outbox rows accumulate unrelayed.
type Kafka struct {
	Brokers           []string      `yaml:"brokers"`
	Topic             string        `yaml:"topic"`
	Partitions        int32         `yaml:"partitions"`
	ReplicationFactor int16         `yaml:"replication_factor"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	BatchSize         int           `yaml:"batch_size"`
}

type Auth struct {
	JWTSigningKey string `yaml:"jwt_signing_key"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	// OperatorToken enables the X-Operator-Token header when set.
	OperatorToken string `yaml:"operator_token"`
}

type Compliance struct {
	DedupWindow    time.Duration `yaml:"dedup_window"`
	ReportCacheTTL time.Duration `yaml:"report_cache_ttl"`
	TxTimeout      time.Duration `yaml:"tx_timeout"`
	// ScanSchedule is a cron expression; empty disables scheduled scans.
	ScanSchedule    string `yaml:"scan_schedule"`
	ScanConcurrency int    `yaml:"scan_concurrency"`
	OrgCacheSize    int    `yaml:"org_cache_size"`
}

// RateLimit holds per-user budgets per endpoint class. Buckets live in Redis
// when it is configured and in process memory otherwise.
type RateLimit struct {
	Enabled      bool          `yaml:"enabled"`
	Window       time.Duration `yaml:"window"`
	ScanPerUser  int           `yaml:"scan_per_user"`
	WritePerUser int           `yaml:"write_per_user"`
	ReadPerUser  int           `yaml:"read_per_user"`
}

// Default returns the configuration used before any file or env override.
func Default() Config {
	return Config{
		LogLevel: "info",
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Database: Database{
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: Redis{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Kafka: Kafka{
			Topic:             "compliance.events",
			Partitions:        3,
			ReplicationFactor: 1,
			PollInterval:      2 * time.Second,
			BatchSize:         100,
		},
		Compliance: Compliance{
			DedupWindow:     30 * 24 * time.Hour,
			ReportCacheTTL:  2 * time.Minute,
			TxTimeout:       5 * time.Second,
			ScanConcurrency: 4,
			OrgCacheSize:    1024,
		},
		RateLimit: RateLimit{
			Enabled:      true,
			Window:       time.Minute,
			ScanPerUser:  10,
			WritePerUser: 60,
			ReadPerUser:  300,
		},
	}
}

// FromEnv builds the configuration: defaults, then the YAML file named by
// TRUCONN_CONFIG_FILE, then environment variables. The result is validated.
func FromEnv() (Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &c.LogLevel)

	str("TRUCONN_ADDR", &c.Server.Addr)
	dur("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	dur("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	str("DATABASE_URL", &c.Database.URL)
	num("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	num("DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)

	str("REDIS_URL", &c.Redis.URL)
	num("REDIS_POOL_SIZE", &c.Redis.PoolSize)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Kafka.Brokers = pstrings.DedupeAndTrim(c.Kafka.Brokers)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	dur("OUTBOX_POLL_INTERVAL", &c.Kafka.PollInterval)

	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("JWT_ISSUER", &c.Auth.JWTIssuer)
	str("OPERATOR_TOKEN", &c.Auth.OperatorToken)

	dur("COMPLIANCE_DEDUP_WINDOW", &c.Compliance.DedupWindow)
	dur("COMPLIANCE_REPORT_CACHE_TTL", &c.Compliance.ReportCacheTTL)
	dur("COMPLIANCE_TX_TIMEOUT", &c.Compliance.TxTimeout)
	str("COMPLIANCE_SCAN_SCHEDULE", &c.Compliance.ScanSchedule)
	num("COMPLIANCE_SCAN_CONCURRENCY", &c.Compliance.ScanConcurrency)

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_ENABLED: %w", err))
		} else {
			c.RateLimit.Enabled = enabled
		}
	}
	dur("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
	num("RATE_LIMIT_SCAN_PER_USER", &c.RateLimit.ScanPerUser)
	num("RATE_LIMIT_WRITE_PER_USER", &c.RateLimit.WritePerUser)
	num("RATE_LIMIT_READ_PER_USER", &c.RateLimit.ReadPerUser)

	return errors.Join(errs...)
}

const minSigningKeyLen = 32

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if len(c.Auth.JWTSigningKey) < minSigningKeyLen {
		errs = append(errs, fmt.Errorf("JWT signing key must be at least %d bytes", minSigningKeyLen))
	}
	if c.Compliance.DedupWindow <= 0 {
		errs = append(errs, errors.New("compliance dedup window must be positive"))
	}
	if c.Compliance.TxTimeout <= 0 {
		errs = append(errs, errors.New("compliance tx timeout must be positive"))
	}
	if c.Compliance.ScanConcurrency < 1 {
		errs = append(errs, errors.New("compliance scan concurrency must be at least 1"))
	}
	if c.Compliance.ScanSchedule != "" {
		if _, err := cron.ParseStandard(c.Compliance.ScanSchedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid scan schedule %q: %w", c.Compliance.ScanSchedule, err))
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.Window <= 0 || c.RateLimit.ScanPerUser < 1 || c.RateLimit.WritePerUser < 1 || c.RateLimit.ReadPerUser < 1) {
		errs = append(errs, errors.New("rate limit window and per-user budgets must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}
