// Package config loads and validates the lookup server configuration from
// YAML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, Corpus, TLS, Admission, Redis, Kafka, etc.).
package config

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/linematch/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	TLS       TLSConfig       `yaml:"tls"`
	Admission AdmissionConfig `yaml:"admission"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds TCP listener and per-connection settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	RequestBufferSize int           `yaml:"requestBufferSize"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
	MaxConnections    int64         `yaml:"maxConnections"`

	// StripLineTerminator accepts newline-terminated queries such as
	// those sent by nc or telnet. Off by default.
	StripLineTerminator bool `yaml:"stripLineTerminator"`
}

// Addr returns the host:port the server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CorpusConfig points at the line-oriented file and selects the
// cache-coherence mode.
type CorpusConfig struct {
	Path          string `yaml:"path"`
	RereadOnQuery bool   `yaml:"rereadOnQuery"`
	Watch         bool   `yaml:"watch"`
}

// TLSConfig controls optional transport security on the listener.
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"certFile"`
	KeyFile    string `yaml:"keyFile"`
	MinVersion string `yaml:"minVersion"`
}

// TLSMinVersion maps MinVersion ("1.2", "1.3") to a crypto/tls constant.
func (t TLSConfig) TLSMinVersion() uint16 {
	switch t.MinVersion {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// AdmissionConfig controls the per-client connection rate limit.
type AdmissionConfig struct {
	Enabled bool          `yaml:"enabled"`
	Backend string        `yaml:"backend"`
	Limit   int           `yaml:"limit"`
	Window  time.Duration `yaml:"window"`
}

// RedisConfig holds Redis connection parameters for the shared limiter.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	QueryEvents string `yaml:"queryEvents"`
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

// AnalyticsConfig controls query-event publishing and aggregation.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
	Port             int           `yaml:"port"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults. The result is not validated;
// call Validate before using it to start a server.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
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
	return cfg, nil
}

// Validate checks the keys the server cannot start without.
func (c *Config) Validate() error {
	if c.Corpus.Path == "" {
		return apperrors.New(apperrors.ErrConfigMissingKey, "config", "corpus.path")
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return apperrors.New(apperrors.ErrConfigMissingKey, "config", "tls.certFile")
		}
		if c.TLS.KeyFile == "" {
			return apperrors.New(apperrors.ErrConfigMissingKey, "config", "tls.keyFile")
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "config", "server.port %d out of range", c.Server.Port)
	}
	if c.Server.RequestBufferSize <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "config", "server.requestBufferSize must be positive, got %d", c.Server.RequestBufferSize)
	}
	if c.Server.MaxConnections <= 0 {
		return apperrors.Newf(apperrors.ErrInvalidConfig, "config", "server.maxConnections must be positive, got %d", c.Server.MaxConnections)
	}
	if c.Admission.Enabled {
		switch c.Admission.Backend {
		case "memory", "redis":
		default:
			return apperrors.Newf(apperrors.ErrInvalidConfig, "config", "unknown admission.backend %q", c.Admission.Backend)
		}
		if c.Admission.Limit <= 0 || c.Admission.Window <= 0 {
			return apperrors.New(apperrors.ErrInvalidConfig, "config", "admission.limit and admission.window must be positive")
		}
	}
	return nil
}

// defaultConfig returns a Config with defaults suitable for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              56747,
			RequestBufferSize: 1024,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      5 * time.Second,
			ShutdownTimeout:   15 * time.Second,
			MaxConnections:    1024,
		},
		TLS: TLSConfig{
			MinVersion: "1.2",
		},
		Admission: AdmissionConfig{
			Backend: "memory",
			Limit:   100,
			Window:  time.Second,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "linematch:admission:",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "linematch-analytics",
			Topics: KafkaTopics{
				QueryEvents: "linematch-query-events",
			},
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "linematch",
			User:            "linematch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Analytics: AnalyticsConfig{
			BufferSize:       10000,
			BatchSize:        100,
			FlushInterval:    2 * time.Second,
			SnapshotInterval: time.Minute,
			Port:             8090,
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

// applyEnvOverrides reads LM_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LM_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("LM_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LM_SERVER_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Server.MaxConnections = n
		}
	}
	if v, ok := envBool("LM_SERVER_STRIP_LINE_TERMINATOR"); ok {
		cfg.Server.StripLineTerminator = v
	}
	if v := os.Getenv("LM_CORPUS_PATH"); v != "" {
		cfg.Corpus.Path = v
	}
	if v, ok := envBool("LM_CORPUS_REREAD_ON_QUERY"); ok {
		cfg.Corpus.RereadOnQuery = v
	}
	if v, ok := envBool("LM_CORPUS_WATCH"); ok {
		cfg.Corpus.Watch = v
	}
	if v, ok := envBool("LM_TLS_ENABLED"); ok {
		cfg.TLS.Enabled = v
	}
	if v := os.Getenv("LM_TLS_CERT_FILE"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("LM_TLS_KEY_FILE"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v, ok := envBool("LM_ADMISSION_ENABLED"); ok {
		cfg.Admission.Enabled = v
	}
	if v := os.Getenv("LM_ADMISSION_BACKEND"); v != "" {
		cfg.Admission.Backend = v
	}
	if v := os.Getenv("LM_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("LM_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LM_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("LM_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("LM_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v, ok := envBool("LM_ANALYTICS_ENABLED"); ok {
		cfg.Analytics.Enabled = v
	}
	if v := os.Getenv("LM_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LM_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("LM_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v)))
	if err != nil {
		return false, false
	}
	return b, true
}
