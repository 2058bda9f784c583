/**
 * @description
 * This package handles the configuration management for the economy-service. It uses
 * Viper to read an optional config.yaml plus environment variables, and validates the
 * result once so invalid values are rejected at startup (or at reload) instead of
 * when they are first used.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by storage.backend.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Load-error policies accepted by storage.on_load_error.
const (
	OnLoadErrorFail  = "fail"
	OnLoadErrorEmpty = "empty"
)

// Config holds all the configuration for the economy-service.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Requests RequestsConfig `mapstructure:"requests"`
	Menu     MenuConfig     `mapstructure:"menu"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Events   EventsConfig   `mapstructure:"events"`
}

// StorageConfig selects and configures the ledger store backend.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"`
	Path            string `mapstructure:"path"`
	DatabaseURL     string `mapstructure:"database_url"`
	RedisURL        string `mapstructure:"redis_url"`
	RedisKey        string `mapstructure:"redis_key"`
	AutosaveSeconds int    `mapstructure:"autosave_seconds"`
	OnLoadError     string `mapstructure:"on_load_error"`
}

// RequestsConfig controls charge request expiry.
type RequestsConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	SweepSeconds   int `mapstructure:"sweep_seconds"`
}

// MenuConfig controls interactive pay sessions.
type MenuConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// AuthConfig configures how actors and operators are authenticated.
type AuthConfig struct {
	JWTSecret           string `mapstructure:"jwt_secret"`
	AllowHeaderFallback bool   `mapstructure:"allow_header_fallback"`
	InternalAPIKey      string `mapstructure:"internal_api_key"`
}

type RabbitMQConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type EventsConfig struct {
	Buffer int `mapstructure:"buffer"`
}

var defaults = map[string]interface{}{
	"storage.backend":            BackendFile,
	"storage.path":               "data/balances.json",
	"storage.database_url":       "",
	"storage.redis_url":          "",
	"storage.redis_key":          "economy:balances",
	"storage.autosave_seconds":   60,
	"storage.on_load_error":      OnLoadErrorFail,
	"requests.timeout_seconds":   60,
	"requests.sweep_seconds":     1,
	"menu.timeout_seconds":       120,
	"server.port":                "8080",
	"auth.jwt_secret":            "",
	"auth.allow_header_fallback": false,
	"auth.internal_api_key":      "",
	"rabbitmq.url":               "",
	"rabbitmq.exchange":          "economy.events",
	"events.buffer":              256,
}

// LoadConfig reads config.yaml from the given directory (optional) and overlays
// environment variables. STORAGE_AUTOSAVE_SECONDS overrides storage.autosave_seconds,
// and so on.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}
	// PORT is what most hosting platforms inject.
	_ = v.BindEnv("server.port", "SERVER_PORT", "PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Storage.Path = strings.TrimSpace(c.Storage.Path)
	c.Storage.DatabaseURL = strings.TrimSpace(c.Storage.DatabaseURL)
	c.Storage.RedisURL = strings.TrimSpace(c.Storage.RedisURL)
	c.Storage.RedisKey = strings.TrimSpace(c.Storage.RedisKey)
	c.Storage.OnLoadError = strings.ToLower(strings.TrimSpace(c.Storage.OnLoadError))
	c.Server.Port = strings.TrimSpace(c.Server.Port)
	c.Auth.JWTSecret = strings.TrimSpace(c.Auth.JWTSecret)
	c.Auth.InternalAPIKey = strings.TrimSpace(c.Auth.InternalAPIKey)
	c.RabbitMQ.URL = strings.TrimSpace(c.RabbitMQ.URL)
	c.RabbitMQ.Exchange = strings.TrimSpace(c.RabbitMQ.Exchange)

	if c.Storage.AutosaveSeconds < 0 {
		c.Storage.AutosaveSeconds = 0
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var problems []string

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite:
		if c.Storage.Path == "" {
			problems = append(problems, "storage.path is required for the "+c.Storage.Backend+" backend")
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			problems = append(problems, "storage.database_url is required for the postgres backend")
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			problems = append(problems, "storage.redis_url is required for the redis backend")
		}
		if c.Storage.RedisKey == "" {
			problems = append(problems, "storage.redis_key must not be empty")
		}
	case BackendMemory:
	default:
		problems = append(problems, fmt.Sprintf("storage.backend %q is not supported", c.Storage.Backend))
	}

	if c.Storage.OnLoadError != OnLoadErrorFail && c.Storage.OnLoadError != OnLoadErrorEmpty {
		problems = append(problems, fmt.Sprintf("storage.on_load_error must be %q or %q", OnLoadErrorFail, OnLoadErrorEmpty))
	}
	if c.Requests.TimeoutSeconds <= 0 {
		problems = append(problems, "requests.timeout_seconds must be positive")
	}
	if c.Requests.SweepSeconds <= 0 {
		problems = append(problems, "requests.sweep_seconds must be positive")
	}
	if c.Menu.TimeoutSeconds <= 0 {
		problems = append(problems, "menu.timeout_seconds must be positive")
	}
	if c.Events.Buffer <= 0 {
		problems = append(problems, "events.buffer must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Warnings lists settings that are valid but probably not intended. Callers decide
// whether and where to log them.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Auth.JWTSecret == "" && !c.Auth.AllowHeaderFallback {
		warnings = append(warnings, "no jwt secret and header fallback disabled; actor routes will reject every request")
	}
	if c.Auth.InternalAPIKey == "" {
		warnings = append(warnings, "no internal api key; admin routes are closed")
	}
	return warnings
}

// AutosaveInterval returns zero when autosave is disabled.
func (c Config) AutosaveInterval() time.Duration {
	return time.Duration(c.Storage.AutosaveSeconds) * time.Second
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Requests.TimeoutSeconds) * time.Second
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.Requests.SweepSeconds) * time.Second
}

func (c Config) MenuTimeout() time.Duration {
	return time.Duration(c.Menu.TimeoutSeconds) * time.Second
}
