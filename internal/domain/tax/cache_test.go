package tax

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigCacheMemoizes(t *testing.T) {
	store := &countingStore{SettingStore: newSeededStore(t)}
	cache := NewConfigCache(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cfg, err := cache.Get(ctx, testYear)
		require.NoError(t, err)
		assert.Equal(t, testYear, cfg.Year)
	}
	assert.EqualValues(t, 1, store.reads.Load())

	cache.Invalidate(testYear)
	_, err := cache.Get(ctx, testYear)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.reads.Load())

	stats := cache.Stats()
	assert.EqualValues(t, 2, stats.Hits)
	assert.EqualValues(t, 2, stats.Misses)
	assert.EqualValues(t, 1, stats.Invalidations)
}

func TestConfigCacheDoesNotStoreFailures(t *testing.T) {
	base := NewMemoryStore()
	store := &countingStore{SettingStore: base}
	cache := NewConfigCache(store)
	ctx := context.Background()

	_, err := cache.Get(ctx, testYear)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = base.UpsertSettings(ctx, testYear, standardSettings())
	require.NoError(t, err)
	require.NoError(t, base.ReplaceBrackets(ctx, testYear, standardBrackets()))

	_, err = cache.Get(ctx, testYear)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.reads.Load())
}

func TestConfigCacheDropsLoadStartedBeforeInvalidate(t *testing.T) {
	store := &gatedStore{
		SettingStore: newSeededStore(t),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	cache := NewConfigCache(store)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := cache.Get(ctx, testYear)
		done <- err
	}()
	<-store.entered
	cache.Invalidate(testYear)
	close(store.release)
	require.NoError(t, <-done)

	_, err := cache.Get(ctx, testYear)
	require.NoError(t, err)
	assert.EqualValues(t, 2, store.calls.Load(), "stale load must not be cached")
}

func TestConfigCacheSharedLoadOutlivesFirstCaller(t *testing.T) {
	store := &cancelAwareStore{
		SettingStore: newSeededStore(t),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	cache := NewConfigCache(store)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cache.Get(firstCtx, testYear)
		first <- err
	}()
	<-store.entered

	second := make(chan error, 1)
	go func() {
		_, err := cache.Get(context.Background(), testYear)
		second <- err
	}()
	require.Eventually(t, func() bool { return cache.Stats().Misses == 2 }, time.Second, time.Millisecond)

	cancelFirst()
	close(store.release)

	require.NoError(t, <-first)
	require.NoError(t, <-second)
	_, err := cache.Get(context.Background(), testYear)
	require.NoError(t, err)
}

func TestConfigCacheYearsAreIndependent(t *testing.T) {
	store := &countingStore{SettingStore: newSeededStore(t)}
	cache := NewConfigCache(store)
	ctx := context.Background()

	_, err := cache.Get(ctx, testYear)
	require.NoError(t, err)
	cache.Invalidate(testYear + 1)
	_, err = cache.Get(ctx, testYear)
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.reads.Load())
}

func TestConcurrentCalculationsAndToggles(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	id := settingID(t, store, "spouse_allowance")
	req := PayrollRequest{EmployeeID: "E001", GrossSalary: dec("50000")}

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.CalculatePayroll(ctx, req)
			if err != nil {
				errs <- err
				return
			}
			// Either snapshot is acceptable, a blend of the two is not.
			net := res.NetSalary.String()
			if net != "39000" && net != "39900" {
				t.Errorf("unexpected net salary %s", net)
			}
		}()
	}
	for i := 0; i < 11; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ToggleSetting(ctx, id); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Odd number of toggles leaves the allowance disabled.
	res, err := svc.CalculatePayroll(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "39900", res.NetSalary.String())
}
