// Package config provides client configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds client configuration values loaded from file or environment variables.
type Config struct {
	APIBaseURL       string        `mapstructure:"API_BASE_URL"`
	Env              string        `mapstructure:"APP_ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	SearchDebounce   time.Duration `mapstructure:"SEARCH_DEBOUNCE"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	SessionNamespace string        `mapstructure:"SESSION_NAMESPACE"`
	// SessionFile is where the session is kept when REDIS_URL is empty.
	// Empty means <user config dir>/postly/session.json.
	SessionFile        string  `mapstructure:"SESSION_FILE"`
	FeatureFlags       string  `mapstructure:"FEATURE_FLAGS"`
	TracingEnabled     bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter    string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint       string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampleRatio float64 `mapstructure:"TRACING_SAMPLE_RATIO"`
	MetricsAddr        string  `mapstructure:"METRICS_ADDR"`
}

// LoadConfig loads client configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("API_BASE_URL", "http://localhost:4080/api/v1")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REQUEST_TIMEOUT", "15s")
	viper.SetDefault("SEARCH_DEBOUNCE", "300ms")
	viper.SetDefault("REDIS_URL", "")
	viper.SetDefault("SESSION_NAMESPACE", "postly")
	viper.SetDefault("SESSION_FILE", "")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLE_RATIO", 1.0)
	viper.SetDefault("METRICS_ADDR", "")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.Env = strings.ToLower(strings.TrimSpace(config.Env))
	config.APIBaseURL = strings.TrimRight(strings.TrimSpace(config.APIBaseURL), "/")

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and usable.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return errors.New("API_BASE_URL is required")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", c.APIBaseURL)
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.SearchDebounce < 0 {
		return errors.New("SEARCH_DEBOUNCE cannot be negative")
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		return errors.New("TRACING_SAMPLE_RATIO must be between 0 and 1")
	}
	switch c.TracingExporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("TRACING_EXPORTER must be stdout or otlp, got %q", c.TracingExporter)
	}

	if c.IsProduction() {
		if u.Scheme != "https" {
			return errors.New("API_BASE_URL must use https in production")
		}
		if c.RedisURL == "" {
			log.Println("WARNING: REDIS_URL is empty in production. Sessions are kept in a local file and not shared between hosts.")
		}
	}

	return nil
}
