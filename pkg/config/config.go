package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Redis      RedisConfig      `json:"redis"`
	Resilience ResilienceConfig `json:"resilience"`
	Gate       GateConfig       `json:"gate"`
	Logging    LoggingConfig    `json:"logging"`
	Tracing    TracingConfig    `json:"tracing"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

// RedisConfig contains Redis connection configuration for the overflow sink
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	Enabled  bool   `json:"enabled"`
}

// ResilienceConfig contains failure-handling configuration
type ResilienceConfig struct {
	BreakerThreshold   int           `json:"breaker_threshold"`
	BreakerCooldown    time.Duration `json:"breaker_cooldown"`
	MaxRetries         int           `json:"max_retries"`
	RetryBaseDelay     time.Duration `json:"retry_base_delay"`
	RetryMaxDelay      time.Duration `json:"retry_max_delay"`
	RetryMultiplier    float64       `json:"retry_multiplier"`
	SweepInterval      time.Duration `json:"sweep_interval"`
	CleanupInterval    time.Duration `json:"cleanup_interval"`
	ResolvedRetention  time.Duration `json:"resolved_retention"`
	BufferCapacity     int           `json:"buffer_capacity"`
	MemoryLimitMB      int           `json:"memory_limit_mb"`
}

// GateConfig contains gate run configuration
type GateConfig struct {
	CheckTimeout  time.Duration `json:"check_timeout"`
	RunBudget     time.Duration `json:"run_budget"`
	Parallel      bool          `json:"parallel"`
	StrictMode    bool          `json:"strict_mode"`
	FailOnWarning bool          `json:"fail_on_warning"`
	Environment   string        `json:"environment"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// TracingConfig contains distributed tracing configuration
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	JaegerEndpoint string  `json:"jaeger_endpoint"`
	SamplingRate   float64 `json:"sampling_rate"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8090),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnvString("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
			Enabled:  getEnvBool("REDIS_SINK_ENABLED", false),
		},
		Resilience: ResilienceConfig{
			BreakerThreshold:  getEnvInt("BREAKER_THRESHOLD", 5),
			BreakerCooldown:   getEnvDuration("BREAKER_COOLDOWN", 60*time.Second),
			MaxRetries:        getEnvInt("RECOVERY_MAX_RETRIES", 5),
			RetryBaseDelay:    getEnvDuration("RECOVERY_RETRY_BASE_DELAY", time.Second),
			RetryMaxDelay:     getEnvDuration("RECOVERY_RETRY_MAX_DELAY", 30*time.Second),
			RetryMultiplier:   getEnvFloat("RECOVERY_RETRY_MULTIPLIER", 2.0),
			SweepInterval:     getEnvDuration("HEALTH_SWEEP_INTERVAL", 30*time.Second),
			CleanupInterval:   getEnvDuration("FAILURE_CLEANUP_INTERVAL", 5*time.Minute),
			ResolvedRetention: getEnvDuration("RESOLVED_RETENTION", 10*time.Minute),
			BufferCapacity:    getEnvInt("EVENT_BUFFER_CAPACITY", 1000),
			MemoryLimitMB:     getEnvInt("MEMORY_LIMIT_MB", 512),
		},
		Gate: GateConfig{
			CheckTimeout:  getEnvDuration("GATE_CHECK_TIMEOUT", 10*time.Second),
			RunBudget:     getEnvDuration("GATE_RUN_BUDGET", 2*time.Minute),
			Parallel:      getEnvBool("GATE_PARALLEL", true),
			StrictMode:    getEnvBool("GATE_STRICT_MODE", false),
			FailOnWarning: getEnvBool("GATE_FAIL_ON_WARNING", false),
			Environment:   getEnvString("ENVIRONMENT", "development"),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Tracing: TracingConfig{
			Enabled:        getEnvBool("TRACING_ENABLED", false),
			JaegerEndpoint: getEnvString("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			SamplingRate:   getEnvFloat("TRACING_SAMPLING_RATE", 1.0),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Resilience.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker threshold must be positive, got %d", c.Resilience.BreakerThreshold)
	}
	if c.Resilience.BreakerCooldown <= 0 {
		return fmt.Errorf("breaker cooldown must be positive, got %v", c.Resilience.BreakerCooldown)
	}
	if c.Resilience.RetryMultiplier < 1.0 {
		return fmt.Errorf("retry multiplier must be >= 1.0, got %f", c.Resilience.RetryMultiplier)
	}
	if c.Resilience.BufferCapacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", c.Resilience.BufferCapacity)
	}
	if c.Gate.CheckTimeout <= 0 {
		return fmt.Errorf("gate check timeout must be positive, got %v", c.Gate.CheckTimeout)
	}
	return nil
}

// Helper functions for reading environment variables

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
