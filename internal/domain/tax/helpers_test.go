package tax

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testYear = 2024

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bound(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// standardBrackets: 0% to 150k, 5% to 300k, 10% above.
func standardBrackets() []Bracket {
	return []Bracket{
		{LowerBound: dec("0"), UpperBound: bound("150000"), Rate: dec("0")},
		{LowerBound: dec("150000"), UpperBound: bound("300000"), Rate: dec("5")},
		{LowerBound: dec("300000"), Rate: dec("10")},
	}
}

func standardTable() BracketTable {
	return BracketTable{Year: testYear, Granularity: Annual, Brackets: standardBrackets()}
}

func standardSettings() []Setting {
	return []Setting{
		{Key: KeyPersonalAllowance, Value: dec("60000"), Kind: KindDeduction, EffectiveYear: testYear, Enabled: true},
		{Key: KeyStandardDeductionCap, Value: dec("24000"), Kind: KindLimit, EffectiveYear: testYear, Enabled: true},
		{Key: KeySocialSecurityRate, Value: dec("5"), Kind: KindRate, EffectiveYear: testYear, Enabled: true},
		{Key: KeySocialSecurityWageCap, Value: dec("15000"), Kind: KindLimit, EffectiveYear: testYear, Enabled: true},
		{Key: "spouse_allowance", Value: dec("12000"), Kind: KindDeduction, EffectiveYear: testYear, Enabled: true},
	}
}

func newSeededStore(t *testing.T) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.UpsertEmployee(ctx, "E001"))
	_, err := store.UpsertSettings(ctx, testYear, standardSettings())
	require.NoError(t, err)
	require.NoError(t, store.ReplaceBrackets(ctx, testYear, standardBrackets()))
	return store
}

func fixedClock() time.Time {
	return time.Date(testYear, time.June, 15, 0, 0, 0, 0, time.UTC)
}

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := newSeededStore(t)
	return NewService(store, store, Options{Now: fixedClock}), store
}

func settingID(t *testing.T, store *MemoryStore, key string) string {
	t.Helper()
	settings, _, err := store.ListSettings(context.Background(), SettingFilter{Year: testYear})
	require.NoError(t, err)
	for _, s := range settings {
		if s.Key == key {
			return s.ID
		}
	}
	t.Fatalf("setting %s not found", key)
	return ""
}

// countingStore counts reads that reach the underlying store.
type countingStore struct {
	SettingStore
	reads atomic.Int32
}

func (c *countingStore) ListEnabledSettings(ctx context.Context, year int) ([]Setting, error) {
	c.reads.Add(1)
	return c.SettingStore.ListEnabledSettings(ctx, year)
}

// gatedStore blocks the first settings read until release is closed.
type gatedStore struct {
	SettingStore
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListEnabledSettings(ctx context.Context, year int) ([]Setting, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.SettingStore.ListEnabledSettings(ctx, year)
}

// cancelAwareStore blocks the first settings read until release is closed
// and fails it if its context was cancelled in the meantime.
type cancelAwareStore struct {
	SettingStore
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (c *cancelAwareStore) ListEnabledSettings(ctx context.Context, year int) ([]Setting, error) {
	if c.calls.Add(1) == 1 {
		close(c.entered)
		select {
		case <-c.release:
		case <-ctx.Done():
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return c.SettingStore.ListEnabledSettings(ctx, year)
}

var errStoreDown = errors.New("connection refused")

// downStore fails every call.
type downStore struct {
	*MemoryStore
}

func (downStore) ListEnabledSettings(context.Context, int) ([]Setting, error) {
	return nil, errStoreDown
}

func (downStore) EmployeeExists(context.Context, string) (bool, error) {
	return false, errStoreDown
}
