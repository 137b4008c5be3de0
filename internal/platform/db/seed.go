package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"hrms/internal/domain/tax"
	"hrms/internal/platform/config"
)

// Seed loads the settings fixture named by SEED_SETTINGS_FILE. Settings are
// upserted by key and year, and each listed year's brackets are replaced, so
// running it again converges on the file's contents.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	fixture, err := tax.ReadFixtureFile(cfg.SeedSettingsFile)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	if err := fixture.Apply(ctx, tax.NewStore(pool)); err != nil {
		return fmt.Errorf("apply seed file: %w", err)
	}
	slog.Info("tax settings seeded", "file", cfg.SeedSettingsFile, "years", len(fixture.Years), "employees", len(fixture.Employees))
	return nil
}
