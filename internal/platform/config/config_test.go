package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/hrms")
	t.Setenv("TAX_MIN_YEAR", "2010")
	t.Setenv("TAX_MAX_YEAR", "2040")
	t.Setenv("SETTINGS_WARM_INTERVAL", "1m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("METRICS_ENABLED", "not-a-bool")

	cfg := Load()
	assert.Equal(t, 2010, cfg.TaxMinYear)
	assert.Equal(t, 2040, cfg.TaxMaxYear)
	assert.Equal(t, time.Minute, cfg.SettingsWarmInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.MetricsEnabled, "unparseable values fall back")
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	base := Config{
		DatabaseURL:  "postgres://localhost/hrms",
		MaxBodyBytes: 4096,
		TaxMinYear:   2000,
		TaxMaxYear:   2100,
	}
	require.NoError(t, base.Validate())

	tests := map[string]func(c *Config){
		"missing database":    func(c *Config) { c.DatabaseURL = "" },
		"weak prod secret":    func(c *Config) { c.Environment = "production"; c.JWTSecret = "short" },
		"tiny body limit":     func(c *Config) { c.MaxBodyBytes = 10 },
		"inverted year range": func(c *Config) { c.TaxMinYear = 2050; c.TaxMaxYear = 2040 },
		"seed without file":   func(c *Config) { c.RunSeed = true },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
