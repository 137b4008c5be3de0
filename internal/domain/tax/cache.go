package tax

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds a shared load, which no longer follows any one
// caller's cancellation.
const loadTimeout = 10 * time.Second

// YearConfig is everything a calculation reads for one tax year. It is
// shared between goroutines and must be treated as read-only.
type YearConfig struct {
	Year       int
	Deductions DeductionSet
	Brackets   BracketTable
}

type YearConfigSource interface {
	Get(ctx context.Context, year int) (YearConfig, error)
}

// LoadYearConfig reads and resolves a year straight from the store.
func LoadYearConfig(ctx context.Context, store SettingStore, year int) (YearConfig, error) {
	deductions, err := NewDeductionAssembler(store).ComputeDeductions(ctx, year)
	if err != nil {
		return YearConfig{}, err
	}
	brackets, err := store.ListBrackets(ctx, year)
	if err != nil {
		return YearConfig{}, infraError("list tax brackets", err)
	}
	table := BracketTable{Year: year, Granularity: Annual, Brackets: brackets}
	if err := table.Validate(); err != nil {
		return YearConfig{}, err
	}
	return YearConfig{Year: year, Deductions: deductions, Brackets: table}, nil
}

type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// ConfigCache memoizes YearConfig per year. Invalidate bumps the year's
// generation: a load that began before the bump is never stored, and a Get
// after the bump never joins an older in-flight load.
type ConfigCache struct {
	store SettingStore

	mu      sync.RWMutex
	entries map[int]YearConfig
	gens    map[int]uint64
	group   singleflight.Group

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

func NewConfigCache(store SettingStore) *ConfigCache {
	return &ConfigCache{
		store:   store,
		entries: map[int]YearConfig{},
		gens:    map[int]uint64{},
	}
}

func (c *ConfigCache) Get(ctx context.Context, year int) (YearConfig, error) {
	c.mu.RLock()
	cfg, ok := c.entries[year]
	gen := c.gens[year]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return cfg, nil
	}
	c.misses.Add(1)

	key := strconv.Itoa(year) + "/" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Callers that join this load must not fail because the first one
		// went away.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		loaded, err := LoadYearConfig(loadCtx, c.store, year)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gens[year] == gen {
			c.entries[year] = loaded
		}
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return YearConfig{}, err
	}
	return v.(YearConfig), nil
}

func (c *ConfigCache) Invalidate(year int) {
	c.mu.Lock()
	delete(c.entries, year)
	c.gens[year]++
	c.mu.Unlock()
	c.invalidations.Add(1)
}

func (c *ConfigCache) Stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
