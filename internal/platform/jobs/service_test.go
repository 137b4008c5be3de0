package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hrms/internal/domain/tax"
)

type fakeWarmer struct {
	mu     sync.Mutex
	year   int
	errs   map[int]error
	warmed []int
}

func (f *fakeWarmer) CurrentYear() int { return f.year }

func (f *fakeWarmer) Warm(_ context.Context, year int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmed = append(f.warmed, year)
	return f.errs[year]
}

func (f *fakeWarmer) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.warmed...)
}

type memRecorder struct {
	mu       sync.Mutex
	statuses map[string]string
	next     int
}

func (m *memRecorder) Begin(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := string(rune('a' + m.next))
	m.statuses[id] = "running"
	return id, nil
}

func (m *memRecorder) Finish(_ context.Context, runID, status string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[runID] = status
	return nil
}

func TestWarmYearsToleratesUnconfiguredNextYear(t *testing.T) {
	w := &fakeWarmer{year: 2024, errs: map[int]error{
		2025: &tax.ConfigurationError{Year: 2025, Reason: "no tax brackets configured"},
	}}
	s := New(w, nil, 0)

	details, err := s.WarmYears(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2024": "warm", "2025": "not configured"}, details)
	assert.Equal(t, []int{2024, 2025}, w.calls())
}

func TestWarmYearsFailsOnCurrentYear(t *testing.T) {
	w := &fakeWarmer{year: 2024, errs: map[int]error{2024: errors.New("store down")}}
	s := New(w, nil, 0)

	_, err := s.WarmYears(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int{2024}, w.calls())
}

func TestRunNowRecordsStatus(t *testing.T) {
	rec := &memRecorder{statuses: map[string]string{}}
	s := New(&fakeWarmer{year: 2024}, rec, 0)

	_, err := s.RunNow(context.Background(), "ok", func(context.Context) (any, error) { return nil, nil })
	require.NoError(t, err)
	_, err = s.RunNow(context.Background(), "bad", func(context.Context) (any, error) { return nil, errors.New("boom") })
	require.Error(t, err)

	assert.ElementsMatch(t, []string{"completed", "failed"}, []string{rec.statuses["b"], rec.statuses["c"]})
}

func TestStartWarmsImmediately(t *testing.T) {
	w := &fakeWarmer{year: 2024}
	s := New(w, nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx)
	require.Eventually(t, func() bool { return len(w.calls()) == 2 }, time.Second, 10*time.Millisecond)
}
