package tax_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrms/internal/domain/tax"
	"hrms/internal/platform/config"
	"hrms/internal/platform/db"
)

const integrationYear = 2091

func newIntegrationStore(t *testing.T) *tax.Store {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if strings.TrimSpace(dbURL) == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, config.Config{DatabaseURL: dbURL})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool, "../../../migrations"))

	_, err = pool.Exec(ctx, "DELETE FROM tax_settings WHERE effective_year IN ($1, $2)", integrationYear, integrationYear+1)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "DELETE FROM tax_brackets WHERE effective_year = $1", integrationYear)
	require.NoError(t, err)
	return tax.NewStore(pool)
}

func TestStoreRoundTrip(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	d := decimal.RequireFromString

	upper := d("150000")
	require.NoError(t, store.ReplaceBrackets(ctx, integrationYear, []tax.Bracket{
		{LowerBound: d("0"), UpperBound: &upper, Rate: d("0")},
		{LowerBound: d("150000"), Rate: d("10")},
	}))
	brackets, err := store.ListBrackets(ctx, integrationYear)
	require.NoError(t, err)
	require.Len(t, brackets, 2)
	assert.Nil(t, brackets[1].UpperBound)

	saved, err := store.UpsertSettings(ctx, integrationYear, []tax.Setting{
		{Key: tax.KeyPersonalAllowance, Value: d("60000"), Kind: tax.KindDeduction, EffectiveYear: integrationYear, Enabled: true},
		{Key: "spouse_allowance", Value: d("12000"), Kind: tax.KindDeduction, EffectiveYear: integrationYear, Enabled: true},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	_, err = store.CreateSetting(ctx, tax.Setting{Key: "spouse_allowance", Value: d("1"), Kind: tax.KindDeduction, EffectiveYear: integrationYear})
	require.ErrorIs(t, err, tax.ErrValidation)

	toggled, err := store.ToggleSetting(ctx, saved[1].ID)
	require.NoError(t, err)
	assert.False(t, toggled.Enabled)

	enabled, err := store.ListEnabledSettings(ctx, integrationYear)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	moved := saved[0]
	moved.EffectiveYear = integrationYear + 1
	updated, oldYear, err := store.UpdateSetting(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, integrationYear, oldYear)
	assert.Equal(t, integrationYear+1, updated.EffectiveYear)

	_, err = store.DeleteSetting(ctx, updated.ID)
	require.NoError(t, err)
	_, err = store.GetSetting(ctx, updated.ID)
	require.ErrorIs(t, err, tax.ErrNotFound)
}
