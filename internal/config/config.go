// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/svdesai/fraudscope/internal/fraud"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing

	// Rule thresholds
	HighValueThreshold   float64
	VelocityCount        int
	VelocityWindowMin    int
	GeoDistanceKM        float64
	WindowCapacity       int
	SuspiciousCategories []string
}

// Defaults
const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		HighValueThreshold:   getEnvFloat("HIGH_VALUE_THRESHOLD", fraud.DefaultHighValueThreshold),
		VelocityCount:        getEnvInt("VELOCITY_COUNT", fraud.DefaultVelocityCount),
		VelocityWindowMin:    getEnvInt("VELOCITY_WINDOW_MINUTES", int(fraud.DefaultVelocityWindow/time.Minute)),
		GeoDistanceKM:        getEnvFloat("GEO_DISTANCE_KM", fraud.DefaultGeoDistanceKM),
		WindowCapacity:       getEnvInt("WINDOW_CAPACITY", fraud.DefaultWindowCapacity),
		SuspiciousCategories: getEnvList("SUSPICIOUS_CATEGORIES", []string{"Gambling", "Crypto"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.HighValueThreshold <= 0 {
		return fmt.Errorf("HIGH_VALUE_THRESHOLD must be positive, got %v", c.HighValueThreshold)
	}
	if c.VelocityCount < 2 {
		return fmt.Errorf("VELOCITY_COUNT must be at least 2, got %d", c.VelocityCount)
	}
	if c.VelocityWindowMin <= 0 {
		return fmt.Errorf("VELOCITY_WINDOW_MINUTES must be positive, got %d", c.VelocityWindowMin)
	}
	if c.GeoDistanceKM <= 0 {
		return fmt.Errorf("GEO_DISTANCE_KM must be positive, got %v", c.GeoDistanceKM)
	}
	if c.WindowCapacity <= 0 {
		return fmt.Errorf("WINDOW_CAPACITY must be positive, got %d", c.WindowCapacity)
	}
	return nil
}

// RuleConfig converts the configured thresholds into the engine's rule config.
func (c *Config) RuleConfig() fraud.RuleConfig {
	categories := make(map[string]bool, len(c.SuspiciousCategories))
	for _, cat := range c.SuspiciousCategories {
		categories[cat] = true
	}
	return fraud.RuleConfig{
		HighValueThreshold:   c.HighValueThreshold,
		VelocityCount:        c.VelocityCount,
		VelocityWindow:       time.Duration(c.VelocityWindowMin) * time.Minute,
		GeoDistanceKM:        c.GeoDistanceKM,
		WindowCapacity:       c.WindowCapacity,
		SuspiciousCategories: categories,
	}
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
