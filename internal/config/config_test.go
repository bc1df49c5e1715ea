package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "HIGH_VALUE_THRESHOLD", "VELOCITY_COUNT",
		"VELOCITY_WINDOW_MINUTES", "GEO_DISTANCE_KM", "WINDOW_CAPACITY",
		"SUSPICIOUS_CATEGORIES",
	} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, float64(1_000_000), cfg.HighValueThreshold)
	assert.Equal(t, 3, cfg.VelocityCount)
	assert.Equal(t, 10, cfg.VelocityWindowMin)
	assert.Equal(t, float64(500), cfg.GeoDistanceKM)
	assert.Equal(t, 10, cfg.WindowCapacity)
	assert.Equal(t, []string{"Gambling", "Crypto"}, cfg.SuspiciousCategories)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "HIGH_VALUE_THRESHOLD", "100000")
	setEnv(t, "VELOCITY_COUNT", "5")
	setEnv(t, "VELOCITY_WINDOW_MINUTES", "60")
	setEnv(t, "SUSPICIOUS_CATEGORIES", "Gambling, Crypto ,Casino")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, float64(100_000), cfg.HighValueThreshold)
	assert.Equal(t, 5, cfg.VelocityCount)
	assert.Equal(t, 60, cfg.VelocityWindowMin)
	assert.Equal(t, []string{"Gambling", "Crypto", "Casino"}, cfg.SuspiciousCategories)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		HighValueThreshold: 1_000_000,
		VelocityCount:      3,
		VelocityWindowMin:  10,
		GeoDistanceKM:      500,
		WindowCapacity:     10,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero threshold", func(c *Config) { c.HighValueThreshold = 0 }, "HIGH_VALUE_THRESHOLD"},
		{"velocity count too low", func(c *Config) { c.VelocityCount = 1 }, "VELOCITY_COUNT"},
		{"zero velocity window", func(c *Config) { c.VelocityWindowMin = 0 }, "VELOCITY_WINDOW_MINUTES"},
		{"negative geo distance", func(c *Config) { c.GeoDistanceKM = -1 }, "GEO_DISTANCE_KM"},
		{"zero window capacity", func(c *Config) { c.WindowCapacity = 0 }, "WINDOW_CAPACITY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_RuleConfig(t *testing.T) {
	cfg := Config{
		HighValueThreshold:   100_000,
		VelocityCount:        4,
		VelocityWindowMin:    60,
		GeoDistanceKM:        300,
		WindowCapacity:       20,
		SuspiciousCategories: []string{"Gambling", "Casino"},
	}

	rc := cfg.RuleConfig()
	assert.Equal(t, float64(100_000), rc.HighValueThreshold)
	assert.Equal(t, 4, rc.VelocityCount)
	assert.Equal(t, time.Hour, rc.VelocityWindow)
	assert.Equal(t, float64(300), rc.GeoDistanceKM)
	assert.Equal(t, 20, rc.WindowCapacity)
	assert.True(t, rc.SuspiciousCategories["Casino"])
	assert.False(t, rc.SuspiciousCategories["Crypto"])
}

func TestConfig_IsProduction(t *testing.T) {
	assert.True(t, (&Config{Env: "production"}).IsProduction())
	assert.False(t, (&Config{Env: "development"}).IsProduction())
}
