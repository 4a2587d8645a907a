// Package config loads and validates the engine's tunables from the
// environment, following the range checks the original Python settings
// module enforced at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds every tunable enumerated in the monitoring engine spec.
type Config struct {
	SchedulerEnabled     bool
	SchedulerInterval    int // seconds, 10-300
	HealthCheckInterval  int // seconds
	WorkerCount          int // 1-50
	HTTPTimeout          int // seconds, 5-120
	RetryDelay           int // seconds
	FailureThreshold     int
	SuccessThreshold     int
	QueueOverwhelmedSize int
	QueueWarningSize     int
	CacheWarningSize     int

	DatabaseURL string
	RedisURL    string
	CacheTTL    int // seconds

	StatusAddr string

	LogLevel string
	LogJSON  bool

	EmailAPIURL   string
	EmailAPIKey   string
	EmailSender   string
	EmailFromName string
	EmailTestMode bool
}

// Load reads Config from the environment, applying spec defaults and
// rejecting out-of-range values.
func Load() (*Config, error) {
	cfg := &Config{
		SchedulerEnabled:     getBool("SCHEDULER_ENABLED", true),
		SchedulerInterval:    getInt("SCHEDULER_INTERVAL", 30),
		HealthCheckInterval:  getInt("HEALTH_CHECK_INTERVAL", 120),
		WorkerCount:          getInt("WORKER_COUNT", 12),
		HTTPTimeout:          getInt("HTTP_TIMEOUT", 20),
		RetryDelay:           getInt("RETRY_DELAY", 10),
		FailureThreshold:     getInt("FAILURE_THRESHOLD", 3),
		SuccessThreshold:     getInt("SUCCESS_THRESHOLD", 3),
		QueueOverwhelmedSize: getInt("QUEUE_OVERWHELMED_SIZE", 1000),
		QueueWarningSize:     getInt("QUEUE_WARNING_SIZE", 500),
		CacheWarningSize:     getInt("CACHE_WARNING_SIZE", 5000),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             getString("REDIS_URL", "localhost:6379"),
		CacheTTL:             getInt("CACHE_TTL", 300),
		StatusAddr:           getString("STATUS_ADDR", ":8090"),
		LogLevel:             getString("LOG_LEVEL", "info"),
		LogJSON:              getBool("LOG_JSON", false),
		EmailAPIURL:          getString("EMAIL_API_URL", "https://api.brevo.com/v3/smtp/email"),
		EmailAPIKey:          os.Getenv("EMAIL_API_KEY"),
		EmailSender:          getString("EMAIL_SENDER", "alerts@lookout.example"),
		EmailFromName:        getString("EMAIL_FROM_NAME", "LookOut Monitor"),
		EmailTestMode:        getBool("EMAIL_TEST_MODE", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.WorkerCount < 1 || c.WorkerCount > 50 {
		return fmt.Errorf("config: WORKER_COUNT must be between 1 and 50, got %d", c.WorkerCount)
	}
	if c.SchedulerInterval < 10 || c.SchedulerInterval > 300 {
		return fmt.Errorf("config: SCHEDULER_INTERVAL must be between 10 and 300 seconds, got %d", c.SchedulerInterval)
	}
	if c.HTTPTimeout < 5 || c.HTTPTimeout > 120 {
		return fmt.Errorf("config: HTTP_TIMEOUT must be between 5 and 120 seconds, got %d", c.HTTPTimeout)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}
