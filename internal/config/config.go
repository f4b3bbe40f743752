// Package config loads client settings from a .env file, an optional yaml
// config file and FIELDSYNC_* environment variables (highest priority).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "FIELDSYNC"

// Config groups all client settings.
type Config struct {
	App     AppConfig
	Store   StoreConfig
	API     APIConfig
	Retry   RetryConfig
	Sync    SyncConfig
	Metrics MetricsConfig
}

// AppConfig is process-wide.
type AppConfig struct {
	Env      string // development, production, test
	LogLevel string
	DeviceID string
}

// StoreConfig locates the local SQLite file.
type StoreConfig struct {
	Path string
}

// APIConfig describes the remote service.
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 = unlimited
	TokenSkew time.Duration
}

// RetryConfig controls transport backoff.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Factor       float64
	Jitter       float64
}

// SyncConfig controls background replay.
type SyncConfig struct {
	Schedule string // cron spec; empty disables periodic passes
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Addr string // empty disables it
}

// Load reads configuration. configFile may be empty.
func Load(configFile string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("env"),
			LogLevel: v.GetString("log_level"),
			DeviceID: v.GetString("device_id"),
		},
		Store: StoreConfig{
			Path: v.GetString("db_path"),
		},
		API: APIConfig{
			BaseURL:   v.GetString("api_base_url"),
			Timeout:   v.GetDuration("http_timeout"),
			RateLimit: v.GetFloat64("rate_limit"),
			TokenSkew: v.GetDuration("token_skew"),
		},
		Retry: RetryConfig{
			MaxRetries:   v.GetInt("retry_max"),
			InitialDelay: v.GetDuration("retry_initial"),
			MaxDelay:     v.GetDuration("retry_max_delay"),
			Factor:       v.GetFloat64("retry_factor"),
			Jitter:       v.GetFloat64("retry_jitter"),
		},
		Sync: SyncConfig{
			Schedule: v.GetString("sync_schedule"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics_addr"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("log_level", "info")
	v.SetDefault("device_id", "")
	v.SetDefault("db_path", "fieldsync.db")
	v.SetDefault("api_base_url", "http://localhost:8080")
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("token_skew", 30*time.Second)
	v.SetDefault("retry_max", 3)
	v.SetDefault("retry_initial", 100*time.Millisecond)
	v.SetDefault("retry_max_delay", 5*time.Second)
	v.SetDefault("retry_factor", 2.0)
	v.SetDefault("retry_jitter", 0.1)
	v.SetDefault("sync_schedule", "@every 5m")
	v.SetDefault("metrics_addr", "")
}

// Validate rejects settings the client cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Path == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http_timeout must be positive, got %s", c.API.Timeout))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit must not be negative, got %v", c.API.RateLimit))
	}
	if c.API.TokenSkew < 0 {
		errs = append(errs, fmt.Errorf("token_skew must not be negative, got %s", c.API.TokenSkew))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry_max must not be negative, got %d", c.Retry.MaxRetries))
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay < c.Retry.InitialDelay {
		errs = append(errs, fmt.Errorf("retry delays invalid: initial %s, max %s", c.Retry.InitialDelay, c.Retry.MaxDelay))
	}
	if c.Retry.Factor < 1 {
		errs = append(errs, fmt.Errorf("retry_factor must be >= 1, got %v", c.Retry.Factor))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, fmt.Errorf("retry_jitter must be within [0,1], got %v", c.Retry.Jitter))
	}
	if c.Sync.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("sync_schedule %q: %w", c.Sync.Schedule, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
