// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Redis, Queue, Elasticsearch, Analytics, Postgres, etc.).
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
	Server        ServerConfig        `yaml:"server"`
	Redis         RedisConfig         `yaml:"redis"`
	Queue         QueueConfig         `yaml:"queue"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Analytics     AnalyticsConfig     `yaml:"analytics"`
	Postgres      PostgresConfig      `yaml:"postgres"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Snapshot      SnapshotConfig      `yaml:"snapshot"`
	Logging       LoggingConfig       `yaml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	CORS          CORSConfig          `yaml:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is the number of analytics requests each client may make
	// per RateLimitWindow. Zero disables limiting.
	RateLimit       int           `yaml:"rateLimit"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow"`
	// TrustProxy takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxy bool `yaml:"trustProxy"`
}

// RedisConfig holds Redis connection parameters. When Sentinels is non-empty
// the client connects through Redis Sentinel to MasterName.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"poolSize"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	Sentinels   []string      `yaml:"sentinels"`
	MasterName  string        `yaml:"masterName"`
}

// QueueConfig controls the job queue and the ingestion worker pool.
type QueueConfig struct {
	Name          string        `yaml:"name"`
	JobName       string        `yaml:"jobName"`
	KeyPrefix     string        `yaml:"keyPrefix"`
	Concurrency   int           `yaml:"concurrency"`
	MaxAttempts   int           `yaml:"maxAttempts"`
	InitialDelay  time.Duration `yaml:"initialDelay"`
	MaxDelay      time.Duration `yaml:"maxDelay"`
	Multiplier    float64       `yaml:"multiplier"`
	PollTimeout   time.Duration `yaml:"pollTimeout"`
	// LeaseDuration is how long a reserved job may run before Reclaim hands
	// it out again. Leases are not renewed; it must exceed WriteTimeout.
	LeaseDuration time.Duration `yaml:"leaseDuration"`
	ReclaimEvery  time.Duration `yaml:"reclaimEvery"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"`
}

// ElasticsearchConfig holds document store connection and partition settings.
type ElasticsearchConfig struct {
	Addresses       []string      `yaml:"addresses"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	IndexPrefix     string        `yaml:"indexPrefix"`
	Shards          int           `yaml:"shards"`
	Replicas        int           `yaml:"replicas"`
	LifecyclePolicy string        `yaml:"lifecyclePolicy"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	BreakerFailures int           `yaml:"breakerFailures"`
	BreakerReset    time.Duration `yaml:"breakerReset"`
}

// AnalyticsConfig bounds aggregation requests.
type AnalyticsConfig struct {
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxLimit        int           `yaml:"maxLimit"`
	DefaultInterval string        `yaml:"defaultInterval"`
	MaxBuckets      int           `yaml:"maxBuckets"`
	QueryTimeout    time.Duration `yaml:"queryTimeout"`
	CacheTTL        time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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

// KafkaConfig holds the brokers and topic for dead-letter notifications.
// An empty DeadLetterTopic disables the sink.
type KafkaConfig struct {
	Brokers         []string `yaml:"brokers"`
	DeadLetterTopic string   `yaml:"deadLetterTopic"`
}

// SnapshotConfig controls the periodic stats snapshot job.
type SnapshotConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"`
	Window   time.Duration `yaml:"window"`
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

// CORSConfig lists the origins allowed to call the HTTP API.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allowOrigins"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values, or an error if the result fails validation.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            3001,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  20 * time.Second,
			RateLimit:       120,
			RateLimitWindow: time.Minute,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
			MasterName:  "mymaster",
		},
		Queue: QueueConfig{
			Name:          "search-metrics",
			JobName:       "search-metric",
			KeyPrefix:     "bull",
			Concurrency:   4,
			MaxAttempts:   5,
			InitialDelay:  time.Second,
			MaxDelay:      time.Minute,
			Multiplier:    2.0,
			PollTimeout:   2 * time.Second,
			LeaseDuration: 30 * time.Second,
			ReclaimEvery:  15 * time.Second,
			WriteTimeout:  10 * time.Second,
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:       []string{"http://localhost:9200"},
			IndexPrefix:     "search-metrics",
			Shards:          1,
			Replicas:        1,
			LifecyclePolicy: "search-metrics-policy",
			RequestTimeout:  10 * time.Second,
			MaxRetries:      0,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			DefaultLimit:    10,
			MaxLimit:        1000,
			DefaultInterval: "1h",
			MaxBuckets:      10000,
			QueryTimeout:    15 * time.Second,
			CacheTTL:        0,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "statsgoblin",
			User:            "statsgoblin",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
		},
		Snapshot: SnapshotConfig{
			Schedule: "5 * * * *",
			Window:   time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Queue.Name == "" {
		errs = append(errs, errors.New("queue.name is required"))
	}
	if c.Queue.Concurrency <= 0 {
		errs = append(errs, errors.New("queue.concurrency must be positive"))
	}
	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, errors.New("queue.maxAttempts must be positive"))
	}
	if c.Queue.LeaseDuration <= c.Queue.WriteTimeout {
		errs = append(errs, errors.New("queue.leaseDuration must exceed queue.writeTimeout"))
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		errs = append(errs, errors.New("elasticsearch.addresses is required"))
	}
	if c.Elasticsearch.IndexPrefix == "" {
		errs = append(errs, errors.New("elasticsearch.indexPrefix is required"))
	}
	if c.Analytics.MaxLimit <= 0 || c.Analytics.DefaultLimit <= 0 || c.Analytics.DefaultLimit > c.Analytics.MaxLimit {
		errs = append(errs, errors.New("analytics.defaultLimit must be in [1, analytics.maxLimit]"))
	}
	if len(c.Redis.Sentinels) > 0 && c.Redis.MasterName == "" {
		errs = append(errs, errors.New("redis.masterName is required with sentinels"))
	}
	if c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("server.rateLimitWindow must be positive when rateLimit is set"))
	}
	if c.Snapshot.Enabled && !c.Postgres.Enabled {
		errs = append(errs, errors.New("snapshot.enabled requires postgres.enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// applyEnvOverrides reads SG_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SG_SERVER_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit = n
		}
	}
	if v := os.Getenv("SG_SERVER_TRUST_PROXY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Server.TrustProxy = b
		}
	}
	if v := os.Getenv("SG_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SG_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SG_REDIS_SENTINELS"); v != "" {
		cfg.Redis.Sentinels = strings.Split(v, ",")
	}
	if v := os.Getenv("SG_REDIS_MASTER_NAME"); v != "" {
		cfg.Redis.MasterName = v
	}
	if v := os.Getenv("SG_QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.Concurrency = n
		}
	}
	if v := os.Getenv("SG_QUEUE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Queue.MaxAttempts = n
		}
	}
	if v := os.Getenv("SG_ELASTICSEARCH_ADDRESSES"); v != "" {
		cfg.Elasticsearch.Addresses = strings.Split(v, ",")
	}
	if v := os.Getenv("SG_ELASTICSEARCH_USERNAME"); v != "" {
		cfg.Elasticsearch.Username = v
	}
	if v := os.Getenv("SG_ELASTICSEARCH_PASSWORD"); v != "" {
		cfg.Elasticsearch.Password = v
	}
	if v := os.Getenv("SG_ELASTICSEARCH_INDEX_PREFIX"); v != "" {
		cfg.Elasticsearch.IndexPrefix = v
	}
	if v := os.Getenv("SG_ANALYTICS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analytics.CacheTTL = d
		}
	}
	if v := os.Getenv("SG_POSTGRES_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Postgres.Enabled = b
		}
	}
	if v := os.Getenv("SG_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SG_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SG_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SG_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SG_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SG_KAFKA_DEAD_LETTER_TOPIC"); v != "" {
		cfg.Kafka.DeadLetterTopic = v
	}
	if v := os.Getenv("SG_SNAPSHOT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Snapshot.Enabled = b
		}
	}
	if v := os.Getenv("SG_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SG_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SG_CORS_ORIGINS"); v != "" {
		cfg.CORS.AllowOrigins = strings.Split(v, ",")
	}
}
