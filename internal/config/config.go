// Package config loads application configuration from file and environment.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/import-engine/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Import  ImportConfig  `yaml:"import" mapstructure:"import"`
	Schema  SchemaConfig  `yaml:"schema" mapstructure:"schema"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
	Sweep   SweepConfig   `yaml:"sweep" mapstructure:"sweep"`
	Work    WorkConfig    `yaml:"work" mapstructure:"work"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ImportConfig configures batch processing of datasets.
type ImportConfig struct {
	BatchSize      int     `yaml:"batch_size" mapstructure:"batch_size"`
	SwapThreshold  float64 `yaml:"swap_threshold" mapstructure:"swap_threshold"`
	SwapSampleSize int     `yaml:"swap_sample_size" mapstructure:"swap_sample_size"`
}

// SchemaConfig configures the progressive schema builder.
type SchemaConfig struct {
	ReservoirCap int `yaml:"reservoir_cap" mapstructure:"reservoir_cap"`
	SampleCap    int `yaml:"sample_cap" mapstructure:"sample_cap"`
}

// GeocodeConfig configures the geocoding stage.
type GeocodeConfig struct {
	GoogleAPIKey string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	CacheTTLHours int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`

	// MaxFailureRate fails the job when more than this share of geocode
	// candidates cannot be resolved. 1.0 disables the gate.
	MaxFailureRate float64 `yaml:"max_failure_rate" mapstructure:"max_failure_rate"`

	Retry   RetrySettings   `yaml:"retry" mapstructure:"retry"`
	Breaker BreakerSettings `yaml:"breaker" mapstructure:"breaker"`
}

// RetrySettings holds retry tuning for provider calls.
type RetrySettings struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// BreakerSettings holds circuit breaker tuning for provider calls.
type BreakerSettings struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// SweepConfig configures the stuck-job sweep.
type SweepConfig struct {
	StuckThresholdMins int `yaml:"stuck_threshold_mins" mapstructure:"stuck_threshold_mins"`
}

// WorkConfig configures the multi-job worker.
type WorkConfig struct {
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs" mapstructure:"max_concurrent_jobs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// RetryConfig converts the tuning values to a resilience.RetryConfig.
func (g GeocodeConfig) RetryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(
		g.Retry.MaxAttempts,
		g.Retry.InitialBackoffMs,
		g.Retry.MaxBackoffMs,
		g.Retry.Multiplier,
		g.Retry.JitterFraction,
	)
}

// BreakerConfig converts the tuning values to a resilience.CircuitBreakerConfig.
func (g GeocodeConfig) BreakerConfig() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(g.Breaker.FailureThreshold, g.Breaker.ResetTimeoutSecs)
}

// CacheTTL returns the geocode cache TTL as a duration.
func (g GeocodeConfig) CacheTTL() time.Duration {
	return time.Duration(g.CacheTTLHours) * time.Hour
}

// StuckThreshold returns the sweep threshold as a duration.
func (s SweepConfig) StuckThreshold() time.Duration {
	return time.Duration(s.StuckThresholdMins) * time.Minute
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("IMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "import.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("import.batch_size", 100)
	v.SetDefault("import.swap_threshold", 0.7)
	v.SetDefault("import.swap_sample_size", 100)
	v.SetDefault("schema.reservoir_cap", 256)
	v.SetDefault("schema.sample_cap", 8)
	v.SetDefault("geocode.rate_limit_rps", 50)
	v.SetDefault("geocode.cache_ttl_hours", 24)
	v.SetDefault("geocode.max_failure_rate", 1.0)
	v.SetDefault("geocode.retry.max_attempts", 3)
	v.SetDefault("geocode.retry.initial_backoff_ms", 500)
	v.SetDefault("geocode.retry.max_backoff_ms", 30000)
	v.SetDefault("geocode.retry.multiplier", 2.0)
	v.SetDefault("geocode.retry.jitter_fraction", 0.25)
	v.SetDefault("geocode.breaker.failure_threshold", 5)
	v.SetDefault("geocode.breaker.reset_timeout_secs", 30)
	v.SetDefault("sweep.stuck_threshold_mins", 120)
	v.SetDefault("work.max_concurrent_jobs", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
