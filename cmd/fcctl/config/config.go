package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Socket  string
	Timeout time.Duration

	// Client-side request limiter. Zero capacity disables it.
	RateLimitCapacity int
	RateLimitRefill   int
	RateLimitInterval time.Duration
	RateLimitMode     string

	// RetryMaxTries counts the first attempt. Values of one or less mean a
	// single attempt; negative values are rejected when the policy is built.
	RetryMaxTries int

	LogLevel  string
	LogFormat string

	OtelEnabled     bool
	OtelEndpoint    string
	OtelServiceName string
	OtelInsecure    bool

	Version string
	Env     string
}

// Load loads configuration from environment variables
// Automatically loads .env file if present
func Load() *Config {
	// Try to load .env file (fail silently if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Socket:            getEnv("FCCTL_SOCKET", "/run/firecracker.socket"),
		Timeout:           getEnvDuration("FCCTL_TIMEOUT", 10*time.Second),
		RateLimitCapacity: getEnvInt("FCCTL_RATE_LIMIT_CAPACITY", 0),
		RateLimitRefill:   getEnvInt("FCCTL_RATE_LIMIT_REFILL", 10),
		RateLimitInterval: getEnvDuration("FCCTL_RATE_LIMIT_INTERVAL", time.Second),
		RateLimitMode:     getEnv("FCCTL_RATE_LIMIT_MODE", "wait"),
		RetryMaxTries:     getEnvInt("FCCTL_RETRY_MAX_TRIES", 1),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "json"),
		OtelEnabled:       getEnvBool("OTEL_ENABLED", false),
		OtelEndpoint:      getEnv("OTEL_ENDPOINT", "127.0.0.1:4317"),
		OtelServiceName:   getEnv("OTEL_SERVICE_NAME", "fcctl"),
		OtelInsecure:      getEnvBool("OTEL_INSECURE", true),
		Version:           getEnv("VERSION", "dev"),
		Env:               getEnv("ENV", "unset"),
	}

	return cfg
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
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
