package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"signalwatch/internal/secrets"
)

// Config holds all application configuration
type Config struct {
	// Environment
	Environment string

	// Scoring rules document (weights/thresholds/timers/retention/tiers)
	RulesPath string

	// Store backend; empty RedisURL selects the in-memory store
	RedisURL      string
	RedisPassword string

	// Journal
	JournalPath    string
	JournalBackups int

	// Live pricing lookups
	PricingEnabled bool
	PricingBaseURL string
	PricingRPS     float64
	PricingTimeout time.Duration

	// Pipeline
	IngestBuffer int
	DrainGrace   time.Duration

	// Alerts
	AlertMode string // log

	// Logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// Metrics/Health
	HealthPort int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:    getEnv("ENVIRONMENT", "production"),
		RulesPath:      getEnv("RULES_PATH", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		RedisPassword:  secrets.GetOptionalSecret("REDIS_PASSWORD", ""),
		JournalPath:    getEnv("JOURNAL_PATH", "alert_journal.json"),
		JournalBackups: getEnvInt("JOURNAL_BACKUPS", 5),
		PricingEnabled: getEnvBool("PRICING_ENABLED", true),
		PricingBaseURL: getEnv("PRICING_BASE_URL", "https://api.dexscreener.com"),
		PricingRPS:     getEnvFloat("PRICING_RPS", 3.0),
		PricingTimeout: time.Duration(getEnvInt("PRICING_TIMEOUT_SEC", 10)) * time.Second,
		IngestBuffer:   getEnvInt("INGEST_BUFFER", 1024),
		DrainGrace:     time.Duration(getEnvInt("DRAIN_GRACE_SEC", 15)) * time.Second,
		AlertMode:      getEnv("ALERT_MODE", "log"),
		LogFile:        getEnv("LOG_FILE", ""),
		LogMaxSizeMB:   getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups:  getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAgeDays:  getEnvInt("LOG_MAX_AGE_DAYS", 28),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.JournalPath == "" {
		return fmt.Errorf("JOURNAL_PATH is required")
	}

	if c.JournalBackups < 0 {
		return fmt.Errorf("JOURNAL_BACKUPS must be >= 0, got %d", c.JournalBackups)
	}

	if c.IngestBuffer <= 0 {
		return fmt.Errorf("INGEST_BUFFER must be > 0, got %d", c.IngestBuffer)
	}

	if c.PricingEnabled && c.PricingBaseURL == "" {
		return fmt.Errorf("PRICING_BASE_URL is required when PRICING_ENABLED is true")
	}

	switch c.AlertMode {
	case "log":
	default:
		return fmt.Errorf("invalid ALERT_MODE value: %s (valid values: log)", c.AlertMode)
	}

	if c.HealthPort == 0 {
		c.HealthPort = getEnvInt("HEALTH_PORT", 8080)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
