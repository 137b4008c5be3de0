package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Calculation outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeInvalid       = "invalid"
	OutcomeConfiguration = "configuration_error"
	OutcomeNotFound      = "not_found"
	OutcomeUnavailable   = "unavailable"
)

// CacheStats is the shape the collector reports for the settings cache.
type CacheStats struct {
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

type Collector struct {
	totalRequests   uint64
	errorRequests   uint64
	clientErrors    uint64
	totalDurationMs uint64

	mu           sync.Mutex
	calculations map[string]map[string]uint64
	cacheStats   func() CacheStats
}

func New() *Collector {
	return &Collector{calculations: map[string]map[string]uint64{}}
}

func (c *Collector) Record(status int, duration time.Duration) {
	atomic.AddUint64(&c.totalRequests, 1)
	if status >= 500 {
		atomic.AddUint64(&c.errorRequests, 1)
	} else if status >= 400 {
		atomic.AddUint64(&c.clientErrors, 1)
	}
	atomic.AddUint64(&c.totalDurationMs, uint64(duration.Milliseconds()))
}

// RecordCalculation counts one calculation of op ending with outcome.
func (c *Collector) RecordCalculation(op, outcome string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	byOutcome, ok := c.calculations[op]
	if !ok {
		byOutcome = map[string]uint64{}
		c.calculations[op] = byOutcome
	}
	byOutcome[outcome]++
}

// ObserveCache registers the source of cache statistics for snapshots.
func (c *Collector) ObserveCache(source func() CacheStats) {
	c.mu.Lock()
	c.cacheStats = source
	c.mu.Unlock()
}

func (c *Collector) Snapshot() map[string]any {
	total := atomic.LoadUint64(&c.totalRequests)
	errs := atomic.LoadUint64(&c.errorRequests)
	clientErrs := atomic.LoadUint64(&c.clientErrors)
	totalMs := atomic.LoadUint64(&c.totalDurationMs)
	avg := float64(0)
	if total > 0 {
		avg = float64(totalMs) / float64(total)
	}

	c.mu.Lock()
	calculations := make(map[string]map[string]uint64, len(c.calculations))
	for op, byOutcome := range c.calculations {
		cp := make(map[string]uint64, len(byOutcome))
		for outcome, n := range byOutcome {
			cp[outcome] = n
		}
		calculations[op] = cp
	}
	cacheStats := c.cacheStats
	c.mu.Unlock()

	snap := map[string]any{
		"requestsTotal":     total,
		"errorsTotal":       errs,
		"clientErrorsTotal": clientErrs,
		"avgDurationMs":     avg,
		"totalDurationMs":   totalMs,
		"calculations":      calculations,
	}
	if cacheStats != nil {
		snap["settingsCache"] = cacheStats()
	}
	return snap
}
