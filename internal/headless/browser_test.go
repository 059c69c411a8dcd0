package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/render"
)

func TestNewManagerValidation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(Config{}, nil)
	require.Error(t, err)

	m, err := NewManager(Config{MaxConcurrency: 2, RPS: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cap(m.sem))
	assert.Equal(t, 60*time.Second, m.cfg.NavTimeout)
	require.NotNil(t, m.limiter)
	assert.Equal(t, 1, m.limiter.Burst())
}

func TestNormalizeViewport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   render.Viewport
		want render.Viewport
	}{
		{render.Viewport{}, render.Viewport{Width: 1280, Height: 720, Quality: 80}},
		{render.Viewport{Width: 800, Height: 600, Quality: 50}, render.Viewport{Width: 800, Height: 600, Quality: 50}},
		{render.Viewport{Width: 800, Height: 600, Quality: 150}, render.Viewport{Width: 800, Height: 600, Quality: 100}},
		{render.Viewport{Width: -1, Height: 600, Quality: -3}, render.Viewport{Width: 1280, Height: 600, Quality: 1}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeViewport(tt.in), fmt.Sprintf("%+v", tt.in))
	}
}

func TestStatusBeforeLaunch(t *testing.T) {
	t.Parallel()

	m, err := NewManager(Config{MaxConcurrency: 3}, zap.NewNop())
	require.NoError(t, err)
	st := m.Status()
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 3, st.MaxInFlight)
	assert.Zero(t, st.BrowserPages)

	require.NoError(t, m.Close())
	assert.Equal(t, "closed", m.Status().Status)
	_, err = m.Render(context.Background(), render.Request{URL: "http://localhost"}, false)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAcquireSlotHonorsContext(t *testing.T) {
	t.Parallel()

	m, err := NewManager(Config{MaxConcurrency: 1}, nil)
	require.NoError(t, err)
	release, err := m.acquireSlot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Status().InFlight)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.acquireSlot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Zero(t, m.Status().InFlight)
}

func TestRetireReason(t *testing.T) {
	t.Parallel()

	m, err := NewManager(Config{MaxConcurrency: 1, MaxPages: 2, BrowserTTL: time.Hour}, nil)
	require.NoError(t, err)

	live, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := &browser{ctx: live, started: time.Now(), pages: 1}
	assert.Empty(t, m.retireReason(b))

	b.pages = 2
	assert.Equal(t, "max_pages", m.retireReason(b))

	b.pages = 0
	b.started = time.Now().Add(-2 * time.Hour)
	assert.Equal(t, "ttl", m.retireReason(b))

	dead, cancelDead := context.WithCancel(context.Background())
	cancelDead()
	assert.Equal(t, "crashed", m.retireReason(&browser{ctx: dead, started: time.Now()}))
}

func TestRetiredBrowserWaitsForLastLease(t *testing.T) {
	t.Parallel()

	m, err := NewManager(Config{MaxConcurrency: 1}, nil)
	require.NoError(t, err)

	var shut int
	b := &browser{
		allocCancel:   func() { shut++ },
		browserCancel: func() {},
		refs:          1,
	}
	m.mu.Lock()
	m.retire(b)
	m.mu.Unlock()
	assert.Zero(t, shut)

	m.unlease(b)
	assert.Equal(t, 1, shut)
}

func TestRenderAgainstLocalPage(t *testing.T) {
	if testing.Short() {
		t.Skip("browser render disabled in short mode")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>Generated on: Mon Jan 6 10:00:00 UTC 2025</body></html>"))
	}))
	defer srv.Close()

	m, err := NewManager(Config{MaxConcurrency: 1, NavTimeout: 20 * time.Second}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	page, err := m.Render(ctx, render.Request{URL: srv.URL, Viewport: render.Viewport{Width: 640, Height: 480}}, true)
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	assert.Contains(t, page.Content, "Generated on:")
	assert.NotEmpty(t, page.Screenshot)
	assert.Equal(t, int64(1), m.Status().PagesRendered)
}
