package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration
type Config struct {
	Port    string
	DataDir string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool

	// Debug log sink (disabled unless a directory is configured)
	DebugLogDir string

	// Pairing
	PairTokenTTL time.Duration

	// Persistence
	SaveDebounce time.Duration

	// Tracing
	OtelEnabled       bool
	OtelCollectorAddr string

	// Rate Limits
	RateLimitWsIp  string
	RateLimitLogIp string
}

// ValidateEnv validates all environment variables and returns a Config
// object. Returns an error if any variable is invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: PORT (defaults to 8080)
	cfg.Port = getEnvOrDefault("PORT", "8080")
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: DATA_DIR (defaults to data/rooms)
	cfg.DataDir = getEnvOrDefault("DATA_DIR", "data/rooms")

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	// Optional: REALTIME_DEBUG_LOGS ("true" enables the client log sink,
	// writing per-app files next to the room snapshots)
	if os.Getenv("REALTIME_DEBUG_LOGS") == "true" {
		cfg.DebugLogDir = filepath.Join(cfg.DataDir, "logs")
	}

	// Optional: PAIR_TOKEN_TTL_SECONDS (defaults to 120)
	ttlSeconds, err := getEnvIntOrDefault("PAIR_TOKEN_TTL_SECONDS", 120)
	if err != nil || ttlSeconds < 1 {
		errors = append(errors, fmt.Sprintf("PAIR_TOKEN_TTL_SECONDS must be a positive integer (got '%s')", os.Getenv("PAIR_TOKEN_TTL_SECONDS")))
	}
	cfg.PairTokenTTL = time.Duration(ttlSeconds) * time.Second

	// Optional: SAVE_DEBOUNCE_MS (defaults to 250)
	debounceMs, err := getEnvIntOrDefault("SAVE_DEBOUNCE_MS", 250)
	if err != nil || debounceMs < 1 {
		errors = append(errors, fmt.Sprintf("SAVE_DEBOUNCE_MS must be a positive integer (got '%s')", os.Getenv("SAVE_DEBOUNCE_MS")))
	}
	cfg.SaveDebounce = time.Duration(debounceMs) * time.Millisecond

	// Conditional: OTEL_COLLECTOR_ADDR (required if OTEL_ENABLED=true)
	cfg.OtelEnabled = os.Getenv("OTEL_ENABLED") == "true"
	if cfg.OtelEnabled {
		cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
		if cfg.OtelCollectorAddr == "" {
			cfg.OtelCollectorAddr = "localhost:4317"
			slog.Warn("OTEL_COLLECTOR_ADDR not set, using default", "addr", cfg.OtelCollectorAddr)
		} else if !isValidHostPort(cfg.OtelCollectorAddr) {
			errors = append(errors, fmt.Sprintf("OTEL_COLLECTOR_ADDR must be in format 'host:port' (got '%s')", cfg.OtelCollectorAddr))
		}
	}

	// Rate Limits (M = Minute, H = Hour)
	cfg.RateLimitWsIp = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")
	cfg.RateLimitLogIp = getEnvOrDefault("RATE_LIMIT_LOG_IP", "300-M")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	slog.Info("Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"debug_log_dir", cfg.DebugLogDir,
		"pair_token_ttl", cfg.PairTokenTTL,
		"save_debounce", cfg.SaveDebounce,
		"otel_enabled", cfg.OtelEnabled,
		"rate_limit_ws_ip", cfg.RateLimitWsIp,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault parses an integer environment variable, falling back
// to the default when unset.
func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
