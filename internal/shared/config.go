package shared

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Provider  ProviderConfig  `toml:"provider"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Executor  ExecutorConfig  `toml:"executor"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Notify    NotifyConfig    `toml:"notify"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string        `toml:"path"`
	MaxOpenConns int           `toml:"max_open_conns"`
	MaxIdleConns int           `toml:"max_idle_conns"`
	BusyTimeout  time.Duration `toml:"busy_timeout"`
}

// ProviderConfig contains settings for the external data provider (actor runs + datasets).
type ProviderConfig struct {
	BaseURL         string            `toml:"base_url"`
	APIToken        string            `toml:"api_token"`
	RequestTimeout  time.Duration     `toml:"request_timeout"`
	RunPollInterval time.Duration     `toml:"run_poll_interval"`
	RunPollAttempts int               `toml:"run_poll_attempts"`
	PageSize        int               `toml:"page_size"`
	PostsLimit      int               `toml:"posts_limit"`
	Actors          map[string]string `toml:"actors"`
	Breaker         BreakerConfig     `toml:"breaker"`
}

// BreakerConfig tunes the circuit breaker wrapped around provider calls.
type BreakerConfig struct {
	MaxRequests      uint32        `toml:"max_requests"`
	Interval         time.Duration `toml:"interval"`
	Timeout          time.Duration `toml:"timeout"`
	FailureThreshold uint32        `toml:"failure_threshold"`
}

// RateLimitConfig configures the token bucket in front of the provider.
//
// Backend is "local" for a single process or "redis" when executors run on several hosts.
type RateLimitConfig struct {
	Backend   string  `toml:"backend"`
	Rate      float64 `toml:"rate"`
	Burst     int     `toml:"burst"`
	RedisAddr string  `toml:"redis_addr"`
	RedisKey  string  `toml:"redis_key"`
}

// ExecutorConfig contains worker pool and retry settings.
type ExecutorConfig struct {
	Workers            int           `toml:"workers"`
	MaxAttempts        int           `toml:"max_attempts"`
	BackoffBase        time.Duration `toml:"backoff_base"`
	BackoffCap         time.Duration `toml:"backoff_cap"`
	QuotaBackoffBase   time.Duration `toml:"quota_backoff_base"`
	PollInterval       time.Duration `toml:"poll_interval"`
	RevokePollInterval time.Duration `toml:"revoke_poll_interval"`
	CallTimeout        time.Duration `toml:"call_timeout"`
	PersistTimeout     time.Duration `toml:"persist_timeout"`
	StaleAfter         time.Duration `toml:"stale_after"` // STARTED tasks older than this are requeued when a pool starts
}

// MetricsConfig holds the windows, reference scales, and weights used by the transformer.
type MetricsConfig struct {
	Window              time.Duration `toml:"window"`
	Lookback            time.Duration `toml:"lookback"`
	HorizonPeriods      int           `toml:"horizon_periods"`
	EngagementReference float64       `toml:"engagement_reference"`
	GrowthReference     float64       `toml:"growth_reference"`
	ReachReference      float64       `toml:"reach_reference"`
	EngagementWeight    float64       `toml:"engagement_weight"`
	GrowthWeight        float64       `toml:"growth_weight"`
	ReachWeight         float64       `toml:"reach_weight"`
}

// SchedulerConfig controls the periodic sync of all active users.
type SchedulerConfig struct {
	Enabled     bool          `toml:"enabled"`
	Interval    time.Duration `toml:"interval"`
	Concurrency int           `toml:"concurrency"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig sets the minimum log level (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level"`
}

// NotifyConfig configures the admin notification sink.
type NotifyConfig struct {
	WebhookURL string `toml:"webhook_url"`
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.RateLimit.Rate <= 0:
		return fmt.Errorf("%w: rate_limit.rate must be positive", ErrInvalidConfig)
	case c.RateLimit.Burst < 1:
		return fmt.Errorf("%w: rate_limit.burst must be at least 1", ErrInvalidConfig)
	case c.RateLimit.Backend != "local" && c.RateLimit.Backend != "redis":
		return fmt.Errorf("%w: unknown rate_limit.backend %q", ErrInvalidConfig, c.RateLimit.Backend)
	case c.Executor.Workers < 1:
		return fmt.Errorf("%w: executor.workers must be at least 1", ErrInvalidConfig)
	case c.Executor.MaxAttempts < 1:
		return fmt.Errorf("%w: executor.max_attempts must be at least 1", ErrInvalidConfig)
	case c.Executor.BackoffBase <= 0 || c.Executor.BackoffCap < c.Executor.BackoffBase:
		return fmt.Errorf("%w: executor backoff must satisfy 0 < base <= cap", ErrInvalidConfig)
	case c.Metrics.HorizonPeriods < 0:
		return fmt.Errorf("%w: metrics.horizon_periods must not be negative", ErrInvalidConfig)
	case c.Metrics.EngagementReference <= 0 || c.Metrics.GrowthReference <= 0 || c.Metrics.ReachReference <= 0:
		return fmt.Errorf("%w: metrics reference scales must be positive", ErrInvalidConfig)
	}

	sum := c.Metrics.EngagementWeight + c.Metrics.GrowthWeight + c.Metrics.ReachWeight
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: metrics weights must sum to 1, got %v", ErrInvalidConfig, sum)
	}

	return nil
}
