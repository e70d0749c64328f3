// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Engine, Snippet, Corpora, Postgres, Kafka, Redis, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Snippet  SnippetConfig  `yaml:"snippet"`
	Corpora  []CorpusConfig `yaml:"corpora"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// EngineConfig controls index construction slicing and the bounded caches
// of each engine instance.
type EngineConfig struct {
	BatchSize          int           `yaml:"batchSize"`
	TickInterval       time.Duration `yaml:"tickInterval"`
	FuzzyCacheSize     int           `yaml:"fuzzyCacheSize"`
	FuzzyMaxResults    int           `yaml:"fuzzyMaxResults"`
	FuzzyMinScore      float64       `yaml:"fuzzyMinScore"`
	ResultCacheSize    int           `yaml:"resultCacheSize"`
	MaxHighlightBlocks int           `yaml:"maxHighlightBlocks"`
}

// SnippetConfig controls snippet window sizing.
type SnippetConfig struct {
	Lead          int    `yaml:"lead"`
	Trail         int    `yaml:"trail"`
	MaxChars      int    `yaml:"maxChars"`
	BoundaryChars string `yaml:"boundaryChars"`
}

// CorpusConfig names a corpus and where its blocks come from. Exactly one
// of File or Postgres must be set.
type CorpusConfig struct {
	Name     string `yaml:"name"`
	File     string `yaml:"file"`
	Postgres bool   `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Reindex         string `yaml:"reindex"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and shared result cache parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with local development defaults. The engine
// values match the documented cache capacities and caps.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Engine: DefaultEngine(),
		Snippet: SnippetConfig{
			Lead:          80,
			Trail:         160,
			MaxChars:      360,
			BoundaryChars: " \t\n\r.,;:!?",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "blocksearch",
			User:            "blocksearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "blocksearch-group",
			Topics: KafkaTopics{
				Reindex:         "corpus-reindex",
				AnalyticsEvents: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// DefaultEngine returns the engine defaults on their own, for callers that
// embed an engine without a full service config.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		BatchSize:          200,
		TickInterval:       time.Millisecond,
		FuzzyCacheSize:     64,
		FuzzyMaxResults:    50,
		FuzzyMinScore:      3,
		ResultCacheSize:    32,
		MaxHighlightBlocks: 600,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	e := c.Engine
	if e.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("engine.batchSize must be positive, got %d", e.BatchSize))
	}
	if e.FuzzyCacheSize <= 0 || e.ResultCacheSize <= 0 {
		errs = append(errs, errors.New("engine cache sizes must be positive"))
	}
	if e.FuzzyMaxResults <= 0 {
		errs = append(errs, fmt.Errorf("engine.fuzzyMaxResults must be positive, got %d", e.FuzzyMaxResults))
	}
	if c.Snippet.MaxChars <= 0 {
		errs = append(errs, fmt.Errorf("snippet.maxChars must be positive, got %d", c.Snippet.MaxChars))
	}
	seen := make(map[string]struct{}, len(c.Corpora))
	for _, corpus := range c.Corpora {
		if corpus.Name == "" {
			errs = append(errs, errors.New("corpus without a name"))
			continue
		}
		if _, dup := seen[corpus.Name]; dup {
			errs = append(errs, fmt.Errorf("corpus %q declared twice", corpus.Name))
		}
		seen[corpus.Name] = struct{}{}
		if (corpus.File == "") == !corpus.Postgres {
			errs = append(errs, fmt.Errorf("corpus %q needs exactly one of file or postgres", corpus.Name))
		}
	}
	return errors.Join(errs...)
}

// applyEnvOverrides reads BS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BS_ENGINE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.BatchSize = n
		}
	}
	if v := os.Getenv("BS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("BS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("BS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("BS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("BS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("BS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("BS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("BS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("BS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
