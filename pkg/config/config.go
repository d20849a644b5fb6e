// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Index, Matcher, Batch, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Company-Domain-Matcher/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Batch     BatchConfig     `yaml:"batch"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	MaxBatchSize    int           `yaml:"maxBatchSize"`
	// RateLimit is the per-client budget of requests per RateWindow; 0
	// disables limiting.
	RateLimit  int           `yaml:"rateLimit"`
	RateWindow time.Duration `yaml:"rateWindow"`
}

// IndexConfig describes the search index endpoint and how the retriever
// talks to it.
type IndexConfig struct {
	// Backend is "meilisearch" or "memory".
	Backend           string        `yaml:"backend"`
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"apiKey"`
	Name              string        `yaml:"name"`
	Timeout           time.Duration `yaml:"timeout"`
	RetryCount        int           `yaml:"retryCount"`
	RetryBackoff      time.Duration `yaml:"retryBackoff"`
	BreakerThreshold  int           `yaml:"breakerThreshold"`
	BreakerReset      time.Duration `yaml:"breakerReset"`
	UploadBatchSize   int           `yaml:"uploadBatchSize"`
	UploadConcurrency int           `yaml:"uploadConcurrency"`
	SettingsVersion   int           `yaml:"settingsVersion"`
	TaskPollInterval  time.Duration `yaml:"taskPollInterval"`
}

// MatcherConfig holds the scoring weights and decision thresholds.
type MatcherConfig struct {
	TopK            int                `yaml:"topK"`
	Weights         map[string]float64 `yaml:"weights"`
	HighThreshold   float64            `yaml:"highThreshold"`
	LowThreshold    float64            `yaml:"lowThreshold"`
	MinContribution float64            `yaml:"minContribution"`
	LegalSuffixes   []string           `yaml:"legalSuffixes"`
}

// BatchConfig controls the batch orchestrator's pool, deadline and outage
// detection.
type BatchConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	Deadline         time.Duration `yaml:"deadline"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
	AlertFailureRate float64       `yaml:"alertFailureRate"`
	AlertMinSamples  int           `yaml:"alertMinSamples"`
	OutageWindow     int           `yaml:"outageWindow"`
}

// IngestConfig controls bulk loading of company records.
type IngestConfig struct {
	CSVPath     string `yaml:"csvPath"`
	SkipInvalid bool   `yaml:"skipInvalid"`
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	MatchRequests  string `yaml:"matchRequests"`
	MatchVerdicts  string `yaml:"matchVerdicts"`
	MatchAnalytics string `yaml:"matchAnalytics"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// CacheConfig controls the candidate cache in front of the index.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls per-query span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// AnalyticsConfig controls verdict analytics: events are buffered and
// published to the analytics topic, aggregated by the API service and
// snapshotted to PostgreSQL.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
}

// DefaultLegalSuffixes are stripped from the end of company names during
// normalization.
var DefaultLegalSuffixes = []string{
	"inc", "incorporated", "corp", "corporation", "co", "company", "llc", "llp",
	"lp", "ltd", "limited", "plc", "gmbh", "ag", "sa", "sas", "sarl", "srl",
	"spa", "bv", "nv", "pty", "pte", "oy", "ab", "as", "kk", "kg", "holdings",
	"group",
}

// DefaultWeights are the signal weights used when the config file names none.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"token_jaccard": 0.30,
		"edit_ratio":    0.25,
		"domain":        0.20,
		"phonetic":      0.15,
		"alias":         0.10,
	}
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		// yaml.v3 merges into a non-nil map; a file naming weights replaces them.
		cfg.Matcher.Weights = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		if len(cfg.Matcher.Weights) == 0 {
			cfg.Matcher.Weights = DefaultWeights()
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    3 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  150 * time.Second,
			MaxBatchSize:    10000,
			RateWindow:      time.Minute,
		},
		Index: IndexConfig{
			Backend:           "meilisearch",
			Endpoint:          "http://localhost:7700",
			Name:              "companies",
			Timeout:           500 * time.Millisecond,
			RetryCount:        1,
			RetryBackoff:      50 * time.Millisecond,
			BreakerThreshold:  20,
			BreakerReset:      5 * time.Second,
			UploadBatchSize:   5000,
			UploadConcurrency: 4,
			SettingsVersion:   1,
			TaskPollInterval:  100 * time.Millisecond,
		},
		Matcher: MatcherConfig{
			TopK:            20,
			Weights:         DefaultWeights(),
			HighThreshold:   0.80,
			LowThreshold:    0.50,
			MinContribution: 0.05,
			LegalSuffixes:   append([]string(nil), DefaultLegalSuffixes...),
		},
		Batch: BatchConfig{
			Concurrency:      8 * runtime.NumCPU(),
			Deadline:         2 * time.Minute,
			ProgressInterval: 5 * time.Second,
			AlertFailureRate: 0.05,
			AlertMinSamples:  100,
			OutageWindow:     200,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "matcher",
			User:            "matcher",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "matcher-group",
			Topics: KafkaTopics{
				MatchRequests:  "match-requests",
				MatchVerdicts:  "match-verdicts",
				MatchAnalytics: "match-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			SampleRate: 0.01,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Analytics: AnalyticsConfig{
			BatchSize:        200,
			FlushInterval:    5 * time.Second,
			SnapshotInterval: time.Minute,
		},
	}
}

// Validate checks the fields the matching pipeline cannot run without.
func (c *Config) Validate() error {
	m := c.Matcher
	if m.TopK < 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "matcher.topK must be >= 1, got %d", m.TopK)
	}
	if m.LowThreshold < 0 || m.HighThreshold > 1 || m.LowThreshold >= m.HighThreshold {
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0,
			"thresholds must satisfy 0 <= low < high <= 1, got low=%.4f high=%.4f", m.LowThreshold, m.HighThreshold)
	}
	var sum float64
	for name, w := range m.Weights {
		if w < 0 {
			return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "weight %q is negative", name)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "weights must sum to 1.0, got %.6f", sum)
	}
	if c.Index.RetryCount < 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "index.retryCount must be >= 0")
	}
	if c.Index.Timeout <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "index.timeout must be positive")
	}
	switch c.Index.Backend {
	case "meilisearch", "memory":
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "unknown index backend %q", c.Index.Backend)
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateWindow <= 0) {
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "server.rateLimit needs a positive server.rateWindow")
	}
	if c.Batch.AlertFailureRate < 0 || c.Batch.AlertFailureRate > 1 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, 0, "batch.alertFailureRate must be within [0,1]")
	}
	return nil
}

// applyEnvOverrides reads CDM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CDM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("CDM_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("CDM_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("CDM_INDEX_ENDPOINT"); v != "" {
		cfg.Index.Endpoint = v
	}
	if v := os.Getenv("CDM_INDEX_API_KEY"); v != "" {
		cfg.Index.APIKey = v
	}
	if v := os.Getenv("CDM_INDEX_NAME"); v != "" {
		cfg.Index.Name = v
	}
	if v := os.Getenv("CDM_INDEX_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Index.Timeout = d
		}
	}
	if v := os.Getenv("CDM_INDEX_RETRY_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Index.RetryCount = n
		}
	}
	if v := os.Getenv("CDM_MATCHER_HIGH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.HighThreshold = f
		}
	}
	if v := os.Getenv("CDM_MATCHER_LOW_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.LowThreshold = f
		}
	}
	if v := os.Getenv("CDM_BATCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Batch.Concurrency = n
		}
	}
	if v := os.Getenv("CDM_BATCH_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Batch.Deadline = d
		}
	}
	if v := os.Getenv("CDM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("CDM_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("CDM_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("CDM_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("CDM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("CDM_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("CDM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CDM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("CDM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("CDM_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}
	if v := os.Getenv("CDM_ANALYTICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analytics.Enabled = b
		}
	}
	if v := os.Getenv("CDM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CDM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
