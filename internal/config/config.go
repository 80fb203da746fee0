package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"envelopes/internal/core"
)

// Application environments. Development and testing reset the ledger on
// start unless told otherwise.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

type Config struct {
	// Ledger storage
	DatabaseMode   string
	DatabaseFile   string
	RemoteDatabase string
	RemoteToken    string

	// Lifecycle
	AppEnv         string
	ResetOnStart   bool
	SyncOnStart    bool
	ConnectTimeout time.Duration
	SyncTimeout    time.Duration

	LogLevel string

	// AMQP sync notifications, disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

func Load() *Config {
	appEnv := strings.ToLower(getEnv("APP_ENV", EnvProduction))

	cfg := &Config{
		DatabaseMode:   strings.ToLower(getEnv("DATABASE_MODE", "local")),
		DatabaseFile:   getEnv("DATABASE_FILE", "./data/budget_app.db"),
		RemoteDatabase: getEnv("MOTHERDUCK_DATABASE", "budget_app"),
		RemoteToken:    getEnv("MOTHERDUCK_TOKEN", ""),

		AppEnv:         appEnv,
		ResetOnStart:   getEnvBool("RESET_DB_ON_START", appEnv == EnvDevelopment || appEnv == EnvTesting),
		SyncOnStart:    getEnvBool("SYNC_ON_START", false),
		ConnectTimeout: getEnvDuration("CONNECT_TIMEOUT", 30*time.Second),
		SyncTimeout:    getEnvDuration("SYNC_TIMEOUT", 2*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "envelopes"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "ledger.sync"),
	}

	return cfg
}

// Validate validates the configuration and returns a ConfigurationError
// listing every problem found.
func (c *Config) Validate() error {
	var errors []string

	validModes := []string{"local", "remote", "cloud", "hybrid"}
	if !contains(validModes, c.DatabaseMode) {
		errors = append(errors, fmt.Sprintf("invalid database mode '%s': must be one of %v", c.DatabaseMode, validModes))
	}

	usesLocal := c.DatabaseMode == "local" || c.DatabaseMode == "hybrid"
	usesRemote := c.DatabaseMode == "remote" || c.DatabaseMode == "cloud" || c.DatabaseMode == "hybrid"

	if usesLocal && c.DatabaseFile == "" {
		errors = append(errors, fmt.Sprintf("DATABASE_FILE cannot be empty in %s mode", c.DatabaseMode))
	}
	if usesRemote {
		if c.RemoteToken == "" {
			errors = append(errors, fmt.Sprintf("MOTHERDUCK_TOKEN is required in %s mode", c.DatabaseMode))
		}
		if c.RemoteDatabase == "" {
			errors = append(errors, fmt.Sprintf("MOTHERDUCK_DATABASE cannot be empty in %s mode", c.DatabaseMode))
		}
	}

	validEnvs := []string{EnvDevelopment, EnvTesting, EnvProduction}
	if !contains(validEnvs, c.AppEnv) {
		errors = append(errors, fmt.Sprintf("invalid APP_ENV '%s': must be one of %v", c.AppEnv, validEnvs))
	}

	if c.ConnectTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid connect timeout %v: must be positive", c.ConnectTimeout))
	}
	if c.SyncTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid sync timeout %v: must be positive", c.SyncTimeout))
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if len(errors) > 0 {
		return core.Errorf(core.KindConfiguration, "configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// IsHybrid reports whether both local and remote stores are in use.
func (c *Config) IsHybrid() bool {
	return c.DatabaseMode == "hybrid"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
