// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "dev-change-me"

type Config struct {
	// HTTP Server
	Port           string
	AppEnv         string
	LogLevel       string
	CORSOrigins    []string
	MaxUploadBytes int64

	// Session tables
	StoreBackend string
	SQLitePath   string

	// Access gate
	AccessPassword     string
	AccessPasswordHash string
	JWTSecret          string
	TokenTTL           time.Duration

	// Outbound mail
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// DefaultCORSOrigins are the local dev front ends.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AppEnv:         getEnv("APP_ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CORSOrigins:    getEnvList("CORS_ORIGINS", DefaultCORSOrigins),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		SQLitePath:   getEnv("SQLITE_PATH", ":memory:"),

		AccessPassword:     getEnv("ACCESS_PASSWORD", ""),
		AccessPasswordHash: getEnv("ACCESS_PASSWORD_HASH", ""),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           getEnvDuration("TOKEN_TTL", 8*time.Hour),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", ""),
	}

	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = devJWTSecret
	}
	return cfg
}

// IsDevelopment reports whether APP_ENV is development.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	if c.MaxUploadBytes < 1 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d: must be at least 1 byte", c.MaxUploadBytes))
	}

	// Validate store backend
	validBackends := []string{"memory", "sqlite"}
	if !contains(validBackends, c.StoreBackend) {
		errors = append(errors, fmt.Sprintf("invalid store backend '%s': must be one of %v", c.StoreBackend, validBackends))
	}
	if c.StoreBackend == "sqlite" {
		if c.SQLitePath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else if c.SQLitePath != ":memory:" {
			dir := filepath.Dir(c.SQLitePath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	// Validate access gate
	if c.AccessPassword == "" && c.AccessPasswordHash == "" {
		errors = append(errors, "either ACCESS_PASSWORD or ACCESS_PASSWORD_HASH must be provided")
	}
	if c.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required outside development")
	} else if c.JWTSecret == devJWTSecret && !c.IsDevelopment() {
		errors = append(errors, "JWT_SECRET must be changed outside development")
	}
	if c.TokenTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.TokenTTL))
	} else if c.TokenTTL > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid token TTL %v: must be at most 7 days", c.TokenTTL))
	}

	// Validate SMTP if configured
	if c.SMTPHost != "" {
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			errors = append(errors, fmt.Sprintf("invalid SMTP port %d: must be between 1 and 65535", c.SMTPPort))
		}
		if c.SMTPFrom == "" {
			errors = append(errors, "SMTP_FROM is required when SMTP_HOST is provided")
		} else if _, err := mail.ParseAddress(c.SMTPFrom); err != nil {
			errors = append(errors, fmt.Sprintf("invalid SMTP_FROM '%s': %v", c.SMTPFrom, err))
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
