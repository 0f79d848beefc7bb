// Package config loads the service configuration from YAML, then applies
// overrides from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gartstein/worklog/internal/worklog/db"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "internal/worklog/config/config.yaml"

const envPrefix = "WORKLOG_"

// Config struct for YAML configuration
type Config struct {
	GRPCPort int    `yaml:"GRPC_PORT"`
	HTTPPort int    `yaml:"HTTP_PORT"`
	LogLevel string `yaml:"LOG_LEVEL"`

	DBDriver   string `yaml:"DB_DRIVER"`
	DBHost     string `yaml:"DB_HOST"`
	DBPort     int    `yaml:"DB_PORT"`
	DBUser     string `yaml:"DB_USER"`
	DBPassword string `yaml:"DB_PASSWORD"`
	DBName     string `yaml:"DB_NAME"`
	DBSSLMode  string `yaml:"DB_SSLMODE"`
	// DBPath is the SQLite file, or ":memory:".
	DBPath string `yaml:"DB_PATH"`

	KafkaBrokers  []string `yaml:"KAFKA_BROKERS"`
	Topic         string   `yaml:"TOPIC"`
	ConsumerGroup string   `yaml:"CONSUMER_GROUP"`

	JWTSecret            string        `yaml:"JWT_SECRET"`
	SessionTTL           time.Duration `yaml:"SESSION_TTL"`
	SessionSweepInterval time.Duration `yaml:"SESSION_SWEEP_INTERVAL"`

	RequireWorkerConfirmation bool `yaml:"REQUIRE_WORKER_CONFIRMATION"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		GRPCPort:                  50051,
		HTTPPort:                  8080,
		LogLevel:                  "info",
		DBDriver:                  db.DriverPostgres,
		DBPort:                    5432,
		DBSSLMode:                 "disable",
		Topic:                     "worklog.events",
		ConsumerGroup:             "worklog-watch",
		SessionTTL:                7 * 24 * time.Hour,
		SessionSweepInterval:      10 * time.Minute,
		RequireWorkerConfirmation: true,
	}
}

// Load reads the YAML file at path on top of Default, loads .env when
// present and applies WORKLOG_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		if v, ok := lookup(envPrefix + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = n
		}
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		if v, ok := lookup(envPrefix + key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", envPrefix, key, err)
			}
			*dst = d
		}
		return nil
	}

	str("LOG_LEVEL", &c.LogLevel)
	str("DB_DRIVER", &c.DBDriver)
	str("DB_HOST", &c.DBHost)
	str("DB_USER", &c.DBUser)
	str("DB_PASSWORD", &c.DBPassword)
	str("DB_NAME", &c.DBName)
	str("DB_SSLMODE", &c.DBSSLMode)
	str("DB_PATH", &c.DBPath)
	str("TOPIC", &c.Topic)
	str("CONSUMER_GROUP", &c.ConsumerGroup)
	str("JWT_SECRET", &c.JWTSecret)
	if v, ok := lookup(envPrefix + "KAFKA_BROKERS"); ok {
		c.KafkaBrokers = splitList(v)
	}
	if v, ok := lookup(envPrefix + "REQUIRE_WORKER_CONFIRMATION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sREQUIRE_WORKER_CONFIRMATION: %w", envPrefix, err)
		}
		c.RequireWorkerConfirmation = b
	}

	for _, err := range []error{
		num("GRPC_PORT", &c.GRPCPort),
		num("HTTP_PORT", &c.HTTPPort),
		num("DB_PORT", &c.DBPort),
		dur("SESSION_TTL", &c.SessionTTL),
		dur("SESSION_SWEEP_INTERVAL", &c.SessionSweepInterval),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first setting that prevents the service from starting.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case db.DriverPostgres:
		if c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("postgres requires DB_HOST and DB_NAME")
		}
	case db.DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("sqlite requires DB_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if c.GRPCPort <= 0 || c.HTTPPort <= 0 {
		return fmt.Errorf("GRPC_PORT and HTTP_PORT must be positive")
	}
	if c.SessionTTL <= 0 || c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_TTL and SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// Database returns the repository settings.
func (c *Config) Database() *db.Config {
	return &db.Config{
		Driver:   c.DBDriver,
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		DBName:   c.DBName,
		SSLMode:  c.DBSSLMode,
		Path:     c.DBPath,
	}
}

// KafkaEnabled reports whether events go to Kafka rather than the log.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
