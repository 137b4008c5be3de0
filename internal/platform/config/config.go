package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr                 string
	DatabaseURL          string
	JWTSecret            string
	Environment          string
	RunMigrations        bool
	RunSeed              bool
	MigrationsDir        string
	SeedSettingsFile     string
	MaxBodyBytes         int64
	TaxMinYear           int
	TaxMaxYear           int
	SettingsWarmInterval time.Duration
	MetricsEnabled       bool
	LogLevel             slog.Level
}

func Load() Config {
	return Config{
		Addr:                 getEnv("APP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		Environment:          getEnv("APP_ENV", "development"),
		RunMigrations:        getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:              getEnvBool("RUN_SEED", false),
		MigrationsDir:        getEnv("MIGRATIONS_DIR", "migrations"),
		SeedSettingsFile:     getEnv("SEED_SETTINGS_FILE", "configs/tax_settings.yaml"),
		MaxBodyBytes:         int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		TaxMinYear:           getEnvInt("TAX_MIN_YEAR", 2000),
		TaxMaxYear:           getEnvInt("TAX_MAX_YEAR", 2100),
		SettingsWarmInterval: getEnvDuration("SETTINGS_WARM_INTERVAL", 15*time.Minute),
		MetricsEnabled:       getEnvBool("METRICS_ENABLED", true),
		LogLevel:             getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return fallback
	}
	return level
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Environment == "production" && len(strings.TrimSpace(c.JWTSecret)) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.TaxMinYear <= 0 || c.TaxMaxYear < c.TaxMinYear {
		return fmt.Errorf("TAX_MIN_YEAR and TAX_MAX_YEAR must form a valid range")
	}
	if c.SettingsWarmInterval < 0 {
		return fmt.Errorf("SETTINGS_WARM_INTERVAL must not be negative")
	}
	if c.RunSeed && strings.TrimSpace(c.SeedSettingsFile) == "" {
		return fmt.Errorf("SEED_SETTINGS_FILE must be set when RUN_SEED is true")
	}
	return nil
}
