// Package config loads shop-insights configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/Sternrassler/shop-insights/pkg/logging"
	"github.com/Sternrassler/shop-insights/pkg/shopify"
)

// Environment keys.
const (
	KeyStoreURL       = "SHOPIFY_STORE_URL"
	KeyAPIVersion     = "SHOPIFY_API_VERSION"
	KeyAPIToken       = "SHOPIFY_API_TOKEN"
	KeyMaxConcurrency = "SHOPIFY_MAX_CONCURRENCY"
	KeyRateLimit      = "SHOPIFY_RATE_LIMIT"
	KeyMaxRetries     = "SHOPIFY_MAX_RETRIES"
	KeyRequestTimeout = "SHOPIFY_REQUEST_TIMEOUT"
	KeyUserAgent      = "USER_AGENT"
	KeyRedisURL       = "REDIS_URL"
	KeyPort           = "PORT"
	KeyLogLevel       = "LOG_LEVEL"
	KeyLogPretty      = "LOG_PRETTY"
)

// configFiles are read from the working directory when present, in order;
// later files and then environment variables override earlier values.
var configFiles = []string{".env", "config.env"}

// Config holds all application configuration.
type Config struct {
	Shopify ShopifyConfig
	Redis   RedisConfig
	HTTP    HTTPConfig
	Log     LogConfig
}

// ShopifyConfig holds the Admin API connection settings.
type ShopifyConfig struct {
	StoreURL       string
	APIVersion     string
	AccessToken    string
	UserAgent      string
	MaxConcurrency int
	RateLimit      float64 // requests per second
	MaxRetries     int     // retries after the first attempt
	RequestTimeout time.Duration
}

// RedisConfig holds the optional Redis connection for shared call-limit state.
type RedisConfig struct {
	URL string
}

// HTTPConfig holds the HTTP server settings.
type HTTPConfig struct {
	Port string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Pretty bool
}

// Load reads configuration from optional .env/config.env files in the
// working directory, overridden by environment variables, and validates it.
func Load() (*Config, error) {
	return load(".")
}

func load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")

	for _, name := range configFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Shopify: ShopifyConfig{
			StoreURL:       strings.TrimSpace(v.GetString(KeyStoreURL)),
			APIVersion:     strings.TrimSpace(v.GetString(KeyAPIVersion)),
			AccessToken:    strings.TrimSpace(v.GetString(KeyAPIToken)),
			UserAgent:      v.GetString(KeyUserAgent),
			MaxConcurrency: v.GetInt(KeyMaxConcurrency),
			RateLimit:      v.GetFloat64(KeyRateLimit),
			MaxRetries:     v.GetInt(KeyMaxRetries),
			RequestTimeout: v.GetDuration(KeyRequestTimeout),
		},
		Redis: RedisConfig{
			URL: strings.TrimSpace(v.GetString(KeyRedisURL)),
		},
		HTTP: HTTPConfig{
			Port: strings.TrimSpace(v.GetString(KeyPort)),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString(KeyLogLevel)),
			Pretty: v.GetBool(KeyLogPretty),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIVersion, "2024-01")
	v.SetDefault(KeyUserAgent, "shop-insights/1.0")
	v.SetDefault(KeyMaxConcurrency, 4)
	v.SetDefault(KeyRateLimit, 2.0)
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyRequestTimeout, "30s")
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogPretty, false)
}

// Validate reports every missing or out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Shopify.StoreURL == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyStoreURL))
	}
	if c.Shopify.AccessToken == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyAPIToken))
	}
	if c.Shopify.APIVersion == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyAPIVersion))
	}
	if c.Shopify.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("%s must be positive (got %d)", KeyMaxConcurrency, c.Shopify.MaxConcurrency))
	}
	if c.Shopify.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive (got %g)", KeyRateLimit, c.Shopify.RateLimit))
	}
	if c.Shopify.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative (got %d)", KeyMaxRetries, c.Shopify.MaxRetries))
	}
	if c.Shopify.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be a positive duration such as 30s", KeyRequestTimeout))
	}
	if port, err := strconv.Atoi(c.HTTP.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be a port number (got %q)", KeyPort, c.HTTP.Port))
	}
	switch logging.LogLevel(c.Log.Level) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		errs = append(errs, fmt.Errorf("%s must be one of debug, info, warn, error (got %q)", KeyLogLevel, c.Log.Level))
	}

	return errors.Join(errs...)
}

// ClientConfig returns the Admin API client configuration.
// redisClient may be nil.
func (c *Config) ClientConfig(redisClient *redis.Client) shopify.Config {
	cfg := shopify.DefaultConfig(c.Shopify.StoreURL, c.Shopify.APIVersion, c.Shopify.AccessToken)
	cfg.UserAgent = c.Shopify.UserAgent
	cfg.Redis = redisClient
	cfg.RateLimit = c.Shopify.RateLimit
	cfg.MaxConcurrency = c.Shopify.MaxConcurrency
	cfg.MaxAttempts = c.Shopify.MaxRetries + 1
	cfg.RequestTimeout = c.Shopify.RequestTimeout
	return cfg
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}

// Options returns the Redis client options, or nil when Redis is not configured.
// Both redis:// URLs and plain host:port addresses are accepted.
func (c RedisConfig) Options() (*redis.Options, error) {
	if c.URL == "" {
		return nil, nil
	}
	if strings.Contains(c.URL, "://") {
		opts, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyRedisURL, err)
		}
		return opts, nil
	}
	return &redis.Options{Addr: c.URL}, nil
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return ":" + c.Port
}
