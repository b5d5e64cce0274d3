// Package config provides configuration management for the recommendation service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the recommendation service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains the interaction-event consumer settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Recommender contains scoring weights, thresholds and section limits.
	Recommender RecommenderConfig `mapstructure:"recommender"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// InteractionRateLimit is the per-user sustained rate for interaction
	// writes, in requests per second.
	InteractionRateLimit float64 `mapstructure:"interaction_rate_limit"`
	// InteractionRateBurst is the per-user burst size for interaction writes.
	InteractionRateBurst int `mapstructure:"interaction_rate_burst"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool.
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open.
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
}

// KafkaConfig holds the interaction-event consumer settings.
type KafkaConfig struct {
	// Enabled controls whether the Kafka consumer is active.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic carrying platform interaction events.
	Topic string `mapstructure:"topic"`
	// GroupID is the consumer group ID.
	GroupID string `mapstructure:"group_id"`
}

// RecommenderConfig holds every tunable constant of the scoring engine.
// Keeping the weight tables in configuration rather than literals makes
// alternative weight sets reproducible in tests and tuning runs.
type RecommenderConfig struct {
	// Weights blends the signal scores into the final personalized score.
	Weights SignalWeights `mapstructure:"weights"`
	// CollaborativeWeights is the rebalanced blend used by the full feed,
	// which adds the collaborative signal.
	CollaborativeWeights SignalWeights `mapstructure:"collaborative_weights"`
	// ReasonThresholds gates reason-string attachment per signal.
	ReasonThresholds ReasonThresholds `mapstructure:"reason_thresholds"`

	// DecayHalfLifeDays is the half-life of the shared temporal decay.
	DecayHalfLifeDays float64 `mapstructure:"decay_half_life_days"`
	// DecayFloor is the minimum decay multiplier; stale preferences never
	// vanish entirely.
	DecayFloor float64 `mapstructure:"decay_floor"`

	// DiversityFactor scales the greedy genre-diversity penalty.
	DiversityFactor float64 `mapstructure:"diversity_factor"`
	// ExplorationQuota is the fraction of the result reserved for
	// unfamiliar-genre exploration slots.
	ExplorationQuota float64 `mapstructure:"exploration_quota"`
	// ExplorationMinQuality filters exploration candidates by quality score.
	ExplorationMinQuality float64 `mapstructure:"exploration_min_quality"`

	// MinUserSimilarity discards user-user similarities below this value.
	MinUserSimilarity float64 `mapstructure:"min_user_similarity"`
	// SimilarUsersLimit is the top-k cut for user-user similarity.
	SimilarUsersLimit int `mapstructure:"similar_users_limit"`

	// FeedLimit is the default personalized-recommendation section size.
	FeedLimit int `mapstructure:"feed_limit"`
	// TrendingLimit is the trending section size.
	TrendingLimit int `mapstructure:"trending_limit"`
	// NewReleasesLimit is the new-releases section size.
	NewReleasesLimit int `mapstructure:"new_releases_limit"`
	// NewReleasesWindowDays is the publication window for new releases.
	NewReleasesWindowDays int `mapstructure:"new_releases_window_days"`
	// NewReleasesMinQuality filters scored new releases by quality.
	NewReleasesMinQuality float64 `mapstructure:"new_releases_min_quality"`
	// ContinueWritingLimit is the continue-writing section size.
	ContinueWritingLimit int `mapstructure:"continue_writing_limit"`
	// BecauseYouReadSources is how many recently completed books seed
	// "because you read" clusters.
	BecauseYouReadSources int `mapstructure:"because_you_read_sources"`
	// BecauseYouReadLimit is the per-source cluster size.
	BecauseYouReadLimit int `mapstructure:"because_you_read_limit"`
	// SimilarBooksLimit is the top-N cut for item-item similarity.
	SimilarBooksLimit int `mapstructure:"similar_books_limit"`

	// ScoringWorkers bounds the number of goroutines scoring candidates
	// concurrently within one request.
	ScoringWorkers int `mapstructure:"scoring_workers"`
}

// SignalWeights holds the blend weights of the ranking composer. Weights
// are expected to sum to 1; Validate enforces a small tolerance.
type SignalWeights struct {
	Genre         float64 `mapstructure:"genre"`
	Author        float64 `mapstructure:"author"`
	Quality       float64 `mapstructure:"quality"`
	Collaborative float64 `mapstructure:"collaborative"`
	Popularity    float64 `mapstructure:"popularity"`
	Freshness     float64 `mapstructure:"freshness"`
}

// Sum returns the total of all blend weights.
func (w SignalWeights) Sum() float64 {
	return w.Genre + w.Author + w.Quality + w.Collaborative + w.Popularity + w.Freshness
}

// ReasonThresholds gates human-readable reason attachment: a reason is
// attached only when the corresponding signal exceeds its threshold.
type ReasonThresholds struct {
	Genre      float64 `mapstructure:"genre"`
	Author     float64 `mapstructure:"author"`
	Quality    float64 `mapstructure:"quality"`
	Popularity float64 `mapstructure:"popularity"`
	Freshness  float64 `mapstructure:"freshness"`
}

// DefaultRecommenderConfig returns the reference scoring configuration.
// The viper defaults are seeded from this struct so that tests and the
// service agree on a single source of truth for the weight tables.
func DefaultRecommenderConfig() RecommenderConfig {
	return RecommenderConfig{
		Weights: SignalWeights{
			Genre:      0.35,
			Author:     0.20,
			Quality:    0.25,
			Popularity: 0.10,
			Freshness:  0.10,
		},
		CollaborativeWeights: SignalWeights{
			Genre:         0.30,
			Author:        0.20,
			Quality:       0.20,
			Collaborative: 0.15,
			Popularity:    0.10,
			Freshness:     0.05,
		},
		ReasonThresholds: ReasonThresholds{
			Genre:      0.6,
			Author:     0.5,
			Quality:    0.8,
			Popularity: 0.7,
			Freshness:  0.8,
		},
		DecayHalfLifeDays:     14.0,
		DecayFloor:            0.1,
		DiversityFactor:       0.3,
		ExplorationQuota:      0.1,
		ExplorationMinQuality: 75.0,
		MinUserSimilarity:     0.05,
		SimilarUsersLimit:     10,
		FeedLimit:             12,
		TrendingLimit:         8,
		NewReleasesLimit:      8,
		NewReleasesWindowDays: 30,
		NewReleasesMinQuality: 65.0,
		ContinueWritingLimit:  5,
		BecauseYouReadSources: 3,
		BecauseYouReadLimit:   6,
		SimilarBooksLimit:     10,
		ScoringWorkers:        8,
	}
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("MESTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/recommendation-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. The recommender defaults
// are the reference weight tables of the scoring engine.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.interaction_rate_limit", 10.0)
	v.SetDefault("server.interaction_rate_burst", 30)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "mestory")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "recommendation_service")
	// Default to "require" for production security. Use MESTORY_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.interactions.mestory")
	v.SetDefault("kafka.group_id", "recommendation-service")

	// Recommender defaults: the reference scoring configuration.
	rec := DefaultRecommenderConfig()
	v.SetDefault("recommender.weights.genre", rec.Weights.Genre)
	v.SetDefault("recommender.weights.author", rec.Weights.Author)
	v.SetDefault("recommender.weights.quality", rec.Weights.Quality)
	v.SetDefault("recommender.weights.collaborative", rec.Weights.Collaborative)
	v.SetDefault("recommender.weights.popularity", rec.Weights.Popularity)
	v.SetDefault("recommender.weights.freshness", rec.Weights.Freshness)

	v.SetDefault("recommender.collaborative_weights.genre", rec.CollaborativeWeights.Genre)
	v.SetDefault("recommender.collaborative_weights.author", rec.CollaborativeWeights.Author)
	v.SetDefault("recommender.collaborative_weights.quality", rec.CollaborativeWeights.Quality)
	v.SetDefault("recommender.collaborative_weights.collaborative", rec.CollaborativeWeights.Collaborative)
	v.SetDefault("recommender.collaborative_weights.popularity", rec.CollaborativeWeights.Popularity)
	v.SetDefault("recommender.collaborative_weights.freshness", rec.CollaborativeWeights.Freshness)

	v.SetDefault("recommender.reason_thresholds.genre", rec.ReasonThresholds.Genre)
	v.SetDefault("recommender.reason_thresholds.author", rec.ReasonThresholds.Author)
	v.SetDefault("recommender.reason_thresholds.quality", rec.ReasonThresholds.Quality)
	v.SetDefault("recommender.reason_thresholds.popularity", rec.ReasonThresholds.Popularity)
	v.SetDefault("recommender.reason_thresholds.freshness", rec.ReasonThresholds.Freshness)

	v.SetDefault("recommender.decay_half_life_days", rec.DecayHalfLifeDays)
	v.SetDefault("recommender.decay_floor", rec.DecayFloor)
	v.SetDefault("recommender.diversity_factor", rec.DiversityFactor)
	v.SetDefault("recommender.exploration_quota", rec.ExplorationQuota)
	v.SetDefault("recommender.exploration_min_quality", rec.ExplorationMinQuality)
	v.SetDefault("recommender.min_user_similarity", rec.MinUserSimilarity)
	v.SetDefault("recommender.similar_users_limit", rec.SimilarUsersLimit)
	v.SetDefault("recommender.feed_limit", rec.FeedLimit)
	v.SetDefault("recommender.trending_limit", rec.TrendingLimit)
	v.SetDefault("recommender.new_releases_limit", rec.NewReleasesLimit)
	v.SetDefault("recommender.new_releases_window_days", rec.NewReleasesWindowDays)
	v.SetDefault("recommender.new_releases_min_quality", rec.NewReleasesMinQuality)
	v.SetDefault("recommender.continue_writing_limit", rec.ContinueWritingLimit)
	v.SetDefault("recommender.because_you_read_sources", rec.BecauseYouReadSources)
	v.SetDefault("recommender.because_you_read_limit", rec.BecauseYouReadLimit)
	v.SetDefault("recommender.similar_books_limit", rec.SimilarBooksLimit)
	v.SetDefault("recommender.scoring_workers", rec.ScoringWorkers)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}
	if c.Server.InteractionRateLimit <= 0 {
		return fmt.Errorf("interaction_rate_limit must be positive")
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate Kafka config
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	return c.Recommender.Validate()
}

// Validate validates the recommender configuration.
func (c *RecommenderConfig) Validate() error {
	const tolerance = 0.001

	if s := c.Weights.Sum(); s < 1-tolerance || s > 1+tolerance {
		return fmt.Errorf("recommender weights must sum to 1, got %.3f", s)
	}
	if s := c.CollaborativeWeights.Sum(); s < 1-tolerance || s > 1+tolerance {
		return fmt.Errorf("recommender collaborative weights must sum to 1, got %.3f", s)
	}
	if c.DecayHalfLifeDays <= 0 {
		return fmt.Errorf("decay_half_life_days must be positive")
	}
	if c.DecayFloor < 0 || c.DecayFloor >= 1 {
		return fmt.Errorf("decay_floor must be in [0, 1), got %.3f", c.DecayFloor)
	}
	if c.DiversityFactor < 0 {
		return fmt.Errorf("diversity_factor must be non-negative")
	}
	if c.ExplorationQuota < 0 || c.ExplorationQuota > 1 {
		return fmt.Errorf("exploration_quota must be in [0, 1], got %.3f", c.ExplorationQuota)
	}
	if c.MinUserSimilarity < 0 || c.MinUserSimilarity > 1 {
		return fmt.Errorf("min_user_similarity must be in [0, 1], got %.3f", c.MinUserSimilarity)
	}
	if c.FeedLimit <= 0 {
		return fmt.Errorf("feed_limit must be positive")
	}
	if c.ScoringWorkers <= 0 {
		return fmt.Errorf("scoring_workers must be positive")
	}
	return nil
}
