// Package headless drives a shared headless Chrome through chromedp to
// render pages into HTML and JPEG screenshots.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/wii-build-monitor/internal/metrics"
	"github.com/JakeFAU/wii-build-monitor/internal/render"
)

// Defaults applied to zero-valued request viewports.
const (
	DefaultWidth   = 1280
	DefaultHeight  = 720
	DefaultQuality = 80
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("headless: browser manager closed")

// Config controls the browser manager.
type Config struct {
	MaxConcurrency int
	MaxPages       int
	BrowserTTL     time.Duration
	NavTimeout     time.Duration
	SettleDelay    time.Duration
	RPS            float64
	Burst          int
	BlockResources []string
	UserAgent      string
	ExecPath       string
}

// Manager owns one browser process, reused across requests and replaced when
// it gets too old or has served too many pages.
type Manager struct {
	cfg     Config
	logger  *zap.Logger
	sem     chan struct{}
	limiter *rate.Limiter
	blocked map[network.ResourceType]struct{}
	started time.Time

	mu      sync.Mutex
	current *browser
	closed  bool

	rendered atomic.Int64
	restarts atomic.Int64
	inFlight atomic.Int64
}

// browser is one Chrome process. It is canceled when retired and no tab is
// still using it.
type browser struct {
	allocCancel   context.CancelFunc
	ctx           context.Context
	browserCancel context.CancelFunc
	started       time.Time
	pages         int
	refs          int
	retired       bool
}

// NewManager validates cfg and prepares the manager. Chrome is launched
// lazily on the first render.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be > 0")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	blocked := make(map[network.ResourceType]struct{}, len(cfg.BlockResources))
	for _, t := range cfg.BlockResources {
		blocked[network.ResourceType(t)] = struct{}{}
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		sem:     make(chan struct{}, cfg.MaxConcurrency),
		limiter: limiter,
		blocked: blocked,
		started: time.Now(),
	}, nil
}

// Render loads req.URL and captures a JPEG of the viewport. The outer HTML
// is returned too when withContent is set.
func (m *Manager) Render(ctx context.Context, req render.Request, withContent bool) (render.Page, error) {
	release, err := m.acquireSlot(ctx)
	if err != nil {
		return render.Page{}, err
	}
	defer release()

	if err := m.waitBudget(ctx); err != nil {
		return render.Page{}, err
	}

	b, err := m.lease()
	if err != nil {
		return render.Page{}, err
	}
	defer m.unlease(b)

	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()
	taskCtx, cancelTask := context.WithTimeout(tabCtx, m.cfg.NavTimeout)
	defer cancelTask()
	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	if len(m.blocked) > 0 {
		m.interceptRequests(tabCtx)
	}

	vp := NormalizeViewport(req.Viewport)
	var (
		html string
		shot []byte
	)
	tasks := chromedp.Tasks{
		m.setupAction(vp),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(m.cfg.SettleDelay),
	}
	if withContent {
		tasks = append(tasks, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	}
	tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
		buf, err := page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(vp.Quality)).
			Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		shot = buf
		return nil
	}))

	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return render.Page{}, fmt.Errorf("chromedp run: %w", err)
	}
	m.rendered.Add(1)
	return render.Page{Content: html, Screenshot: shot}, nil
}

func (m *Manager) setupAction(vp render.Viewport) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(m.blocked) > 0 {
			patterns := make([]*fetch.RequestPattern, 0, len(m.blocked))
			for t := range m.blocked {
				patterns = append(patterns, &fetch.RequestPattern{URLPattern: "*", ResourceType: t})
			}
			if err := fetch.Enable().WithPatterns(patterns).Do(ctx); err != nil {
				return fmt.Errorf("enable request interception: %w", err)
			}
		}
		if err := emulation.SetDeviceMetricsOverride(int64(vp.Width), int64(vp.Height), 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if m.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(m.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// interceptRequests fails every paused request; only blocked resource types
// are paused.
func (m *Manager) interceptRequests(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		paused, ok := ev.(*fetch.EventRequestPaused)
		if !ok {
			return
		}
		go func() {
			c := chromedp.FromContext(tabCtx)
			if c == nil || c.Target == nil {
				return
			}
			exec := cdp.WithExecutor(tabCtx, c.Target)
			if err := fetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(exec); err != nil {
				m.logger.Debug("fail blocked request", zap.Error(err))
			}
		}()
	})
}

func (m *Manager) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case m.sem <- struct{}{}:
		m.inFlight.Add(1)
		metrics.IncInFlight()
		return func() {
			m.inFlight.Add(-1)
			metrics.DecInFlight()
			<-m.sem
		}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (m *Manager) waitBudget(ctx context.Context) error {
	if m.limiter == nil {
		return nil
	}
	start := time.Now()
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("render rate limit: %w", err)
	}
	metrics.ObserveRateLimitDelay(time.Since(start))
	return nil
}

// lease returns the current browser, starting or replacing it as needed.
func (m *Manager) lease() (*browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	if b := m.current; b != nil {
		reason := m.retireReason(b)
		if reason == "" {
			b.pages++
			b.refs++
			return b, nil
		}
		m.logger.Info("restarting browser",
			zap.String("reason", reason),
			zap.Int("pages", b.pages),
			zap.Duration("age", time.Since(b.started)),
		)
		metrics.ObserveBrowserRestart(reason)
		m.restarts.Add(1)
		m.retire(b)
		m.current = nil
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.current = b
	b.pages++
	b.refs++
	return b, nil
}

func (m *Manager) unlease(b *browser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.refs--
	if b.retired && b.refs == 0 {
		b.shutdown()
	}
}

func (m *Manager) retireReason(b *browser) string {
	switch {
	case m.cfg.BrowserTTL > 0 && time.Since(b.started) >= m.cfg.BrowserTTL:
		return "ttl"
	case m.cfg.MaxPages > 0 && b.pages >= m.cfg.MaxPages:
		return "max_pages"
	case b.ctx.Err() != nil:
		return "crashed"
	default:
		return ""
	}
}

// retire must be called with m.mu held.
func (m *Manager) retire(b *browser) {
	b.retired = true
	if b.refs == 0 {
		b.shutdown()
	}
}

func (m *Manager) launch() (*browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoSandbox,
	)
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	m.logger.Info("browser launched")
	return &browser{
		allocCancel:   allocCancel,
		ctx:           browserCtx,
		browserCancel: browserCancel,
		started:       time.Now(),
	}, nil
}

func (b *browser) shutdown() {
	b.browserCancel()
	b.allocCancel()
}

// Close stops the browser. Renders still running are allowed to finish.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.current != nil {
		m.retire(m.current)
		m.current = nil
	}
	return nil
}

// Status reports manager counters for the /status endpoint.
func (m *Manager) Status() render.ServiceStatus {
	st := render.ServiceStatus{
		Status:        "ok",
		Uptime:        time.Since(m.started),
		PagesRendered: m.rendered.Load(),
		Restarts:      m.restarts.Load(),
		InFlight:      m.inFlight.Load(),
		MaxInFlight:   cap(m.sem),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		st.Status = "closed"
	}
	if b := m.current; b != nil {
		st.BrowserPages = b.pages
		st.BrowserAge = time.Since(b.started)
	}
	return st
}

// NormalizeViewport fills zero fields with defaults and clamps quality to
// 1..100.
func NormalizeViewport(vp render.Viewport) render.Viewport {
	if vp.Width <= 0 {
		vp.Width = DefaultWidth
	}
	if vp.Height <= 0 {
		vp.Height = DefaultHeight
	}
	switch {
	case vp.Quality == 0:
		vp.Quality = DefaultQuality
	case vp.Quality < 1:
		vp.Quality = 1
	case vp.Quality > 100:
		vp.Quality = 100
	}
	return vp
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
