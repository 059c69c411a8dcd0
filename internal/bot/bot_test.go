package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/clock/fake"
	"github.com/JakeFAU/wii-build-monitor/internal/monitor"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeUpdater struct {
	mu       sync.Mutex
	clock    *fake.Clock
	batches  [][]telegram.Update
	offsets  []int64
	failures int
}

func (f *fakeUpdater) GetUpdates(_ context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("network down")
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		return batch, nil
	}
	// An empty long poll consumes its whole window.
	f.clock.Advance(timeout)
	return nil, nil
}

type recordingHandler struct {
	mu  sync.Mutex
	ids []int64
}

func (h *recordingHandler) Handle(_ context.Context, u telegram.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids = append(h.ids, u.UpdateID)
}

type fakeChecker struct {
	mu      sync.Mutex
	clock   *fake.Clock
	initial bool
	checkAt []time.Time
	stopAt  int
	cancel  context.CancelFunc
}

func (c *fakeChecker) Check(_ context.Context, force bool) (monitor.Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if force {
		return monitor.OutcomeFailed, errors.New("bot never forces")
	}
	c.checkAt = append(c.checkAt, c.clock.Now())
	if len(c.checkAt) >= c.stopAt {
		c.cancel()
	}
	return monitor.OutcomeUnchanged, nil
}

func (c *fakeChecker) NeedsInitialCheck(context.Context) (bool, error) {
	return c.initial, nil
}

func newStore(t *testing.T) *settings.MemoryStore {
	t.Helper()
	store := settings.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	return store
}

func TestRunChecksAtSlotBoundaries(t *testing.T) {
	start := time.Date(2025, time.January, 6, 10, 7, 0, 0, time.UTC)
	clk := fake.New(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updater := &fakeUpdater{clock: clk, batches: [][]telegram.Update{
		{{UpdateID: 5}, {UpdateID: 6}},
		{{UpdateID: 7}},
	}}
	handler := &recordingHandler{}
	checker := &fakeChecker{clock: clk, stopAt: 2, cancel: cancel}

	b := New(updater, handler, checker, newStore(t), zap.NewNop(), WithClock(clk))
	require.NoError(t, b.Run(ctx))

	require.Len(t, checker.checkAt, 2)
	assert.Equal(t, time.Date(2025, time.January, 6, 10, 30, 0, 0, time.UTC), checker.checkAt[0])
	assert.Equal(t, time.Date(2025, time.January, 6, 11, 0, 0, 0, time.UTC), checker.checkAt[1])
	assert.Equal(t, []int64{5, 6, 7}, handler.ids)
	assert.Equal(t, int64(8), b.Offset())
	assert.Equal(t, []int64{0, 7}, updater.offsets[:2])
}

func TestRunPerformsInitialCheckWhenCacheMissing(t *testing.T) {
	start := time.Date(2025, time.January, 6, 10, 7, 0, 0, time.UTC)
	clk := fake.New(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := &fakeChecker{clock: clk, initial: true, stopAt: 1, cancel: cancel}
	b := New(&fakeUpdater{clock: clk}, &recordingHandler{}, checker, newStore(t), zap.NewNop(), WithClock(clk))
	require.NoError(t, b.Run(ctx))

	require.Len(t, checker.checkAt, 1)
	assert.Equal(t, start, checker.checkAt[0])
}

func TestRunUsesConfiguredInterval(t *testing.T) {
	start := time.Date(2025, time.January, 6, 10, 7, 0, 0, time.UTC)
	clk := fake.New(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStore(t)
	require.NoError(t, store.Update(ctx, settings.KeyCheckInterval, "600"))
	checker := &fakeChecker{clock: clk, stopAt: 1, cancel: cancel}
	b := New(&fakeUpdater{clock: clk}, &recordingHandler{}, checker, store, zap.NewNop(), WithClock(clk))
	require.NoError(t, b.Run(ctx))

	assert.Equal(t, time.Date(2025, time.January, 6, 10, 10, 0, 0, time.UTC), checker.checkAt[0])
}

func TestRunSurvivesPollErrors(t *testing.T) {
	start := time.Date(2025, time.January, 6, 10, 29, 0, 0, time.UTC)
	clk := fake.New(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := &fakeChecker{clock: clk, stopAt: 1, cancel: cancel}
	updater := &fakeUpdater{clock: clk, failures: 3}
	b := New(updater, &recordingHandler{}, checker, newStore(t), zap.NewNop(), WithClock(clk))
	require.NoError(t, b.Run(ctx))

	assert.Equal(t, time.Date(2025, time.January, 6, 10, 30, 0, 0, time.UTC), checker.checkAt[0])
	assert.Contains(t, clk.Waits(), errorBackoff)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	clk := fake.New(time.Date(2025, time.January, 6, 10, 7, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := &fakeChecker{clock: clk, initial: true, stopAt: 100, cancel: cancel}
	b := New(&fakeUpdater{clock: clk}, &recordingHandler{}, checker, newStore(t), zap.NewNop(), WithClock(clk))
	require.NoError(t, b.Run(ctx))
	assert.Empty(t, checker.checkAt)
}

func TestNextSlot(t *testing.T) {
	t.Parallel()

	at := func(h, m, s int) time.Time { return time.Date(2025, time.January, 6, h, m, s, 0, time.UTC) }
	cases := []struct {
		name     string
		now      time.Time
		interval time.Duration
		want     time.Time
	}{
		{"first half", at(10, 7, 0), 30 * time.Minute, at(10, 30, 0)},
		{"second half", at(10, 31, 0), 30 * time.Minute, at(11, 0, 0)},
		{"on boundary", at(10, 30, 0), 30 * time.Minute, at(11, 0, 0)},
		{"top of hour", at(10, 0, 0), 30 * time.Minute, at(10, 30, 0)},
		{"ten minutes", at(10, 7, 0), 10 * time.Minute, at(10, 10, 0)},
		{"hourly", at(10, 59, 59), time.Hour, at(11, 0, 0)},
		{"six hours", at(10, 7, 0), 6 * time.Hour, at(12, 0, 0)},
		{"zero falls back", at(10, 7, 0), 0, at(10, 30, 0)},
		{"uneven from now", at(10, 7, 0), 45 * time.Minute, at(10, 52, 0)},
		{"uneven past an hour", at(10, 7, 0), 90 * time.Minute, at(11, 37, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, NextSlot(tc.now, tc.interval))
		})
	}
}

func TestNextSlotEvenSpacing(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, time.January, 6, 11, 5, 0, 0, time.UTC)
	for _, interval := range []time.Duration{15 * time.Minute, 45 * time.Minute, 2 * time.Hour} {
		prev := NextSlot(start, interval)
		for range 6 {
			next := NextSlot(prev, interval)
			assert.Equal(t, interval, next.Sub(prev), "interval %v after %v", interval, prev)
			prev = next
		}
	}
}
