// Package monitor decides whether the build status page shows a new build
// and, if so, delivers the screenshot to the notification chat.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/clock"
	"github.com/JakeFAU/wii-build-monitor/internal/clock/system"
	"github.com/JakeFAU/wii-build-monitor/internal/metrics"
	"github.com/JakeFAU/wii-build-monitor/internal/render"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/storage"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
	"github.com/JakeFAU/wii-build-monitor/internal/timestamp"
)

// Outcome classifies a finished check.
type Outcome string

// Check outcomes.
const (
	// OutcomeNotified means a photo was delivered for a new timestamp.
	OutcomeNotified Outcome = "notified"
	// OutcomeUnchanged means the page still shows the cached timestamp.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeStale means the page timestamp is new but too old to announce;
	// the next cycle tries again.
	OutcomeStale Outcome = "stale"
	// OutcomeFailed means the check could not complete.
	OutcomeFailed Outcome = "failed"
)

// OK reports whether the outcome counts as a successful check.
func (o Outcome) OK() bool {
	return o == OutcomeNotified || o == OutcomeUnchanged
}

const (
	defaultRecentWindow       = 30 * time.Minute
	defaultIncompleteAttempts = 3
	defaultIncompleteDelay    = time.Minute
	photoFilename             = "screenshot.jpg"
	captionFormat             = "New NetBSD Wii build:\nUTC: %s\nLocal: %s"
)

var (
	// ErrTimestampNotFound is returned when the page has no generated-on stamp.
	ErrTimestampNotFound = errors.New("monitor: generated timestamp not found")
	// ErrIncompletePage is returned when the page never finished rendering.
	ErrIncompletePage = errors.New("monitor: page did not finish rendering")
)

// Renderer fetches the rendered page and screenshot.
type Renderer interface {
	Combined(ctx context.Context, server, target string, vp render.Viewport) (render.Page, error)
}

// PhotoSender delivers a screenshot to a chat.
type PhotoSender interface {
	SendPhoto(ctx context.Context, chatID int64, filename string, photo []byte, caption string) (telegram.Message, error)
}

// Monitor runs build checks.
type Monitor struct {
	settings           settings.Reader
	renderer           Renderer
	sender             PhotoSender
	archive            storage.BlobStore
	clock              clock.Clock
	logger             *zap.Logger
	recentWindow       time.Duration
	incompleteAttempts int
	incompleteDelay    time.Duration
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithArchive stores every delivered screenshot.
func WithArchive(store storage.BlobStore) Option {
	return func(m *Monitor) {
		if store != nil {
			m.archive = store
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(m *Monitor) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithIncompleteRetry sets how often a half-rendered page is re-fetched and
// how long to wait in between.
func WithIncompleteRetry(attempts int, delay time.Duration) Option {
	return func(m *Monitor) {
		if attempts > 0 {
			m.incompleteAttempts = attempts
		}
		if delay >= 0 {
			m.incompleteDelay = delay
		}
	}
}

// WithRecentWindow sets how old a new timestamp may be and still be announced.
func WithRecentWindow(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.recentWindow = d
		}
	}
}

// New wires a Monitor.
func New(store settings.Reader, renderer Renderer, sender PhotoSender, logger *zap.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		settings:           store,
		renderer:           renderer,
		sender:             sender,
		archive:            storage.NoOpStore{},
		clock:              system.New(),
		logger:             logger,
		recentWindow:       defaultRecentWindow,
		incompleteAttempts: defaultIncompleteAttempts,
		incompleteDelay:    defaultIncompleteDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check fetches the status page and notifies the chat when it shows a new
// build. force skips the recency and cache comparisons.
func (m *Monitor) Check(ctx context.Context, force bool) (Outcome, error) {
	outcome, err := m.check(ctx, force)
	metrics.ObserveCheck(string(outcome))
	if err != nil {
		m.logger.Error("check failed", zap.Bool("force", force), zap.Error(err))
	} else {
		m.logger.Info("check finished", zap.Bool("force", force), zap.String("outcome", string(outcome)))
	}
	return outcome, err
}

func (m *Monitor) check(ctx context.Context, force bool) (Outcome, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return OutcomeFailed, err
	}

	page, err := m.Fetch(ctx, snap)
	if err != nil {
		return OutcomeFailed, err
	}

	ts, ok := timestamp.Extract(page.Content)
	if !ok {
		return OutcomeFailed, ErrTimestampNotFound
	}

	cached, err := ReadCache(snap.CacheFile)
	if err != nil {
		return OutcomeFailed, err
	}

	if !force && ts != cached && !timestamp.IsRecent(m.clock.Now(), ts, m.recentWindow, snap.SourceTZ) {
		m.logger.Info("timestamp is not recent, retrying next cycle",
			zap.String("timestamp", ts),
			zap.String("cached", cached),
		)
		return OutcomeStale, nil
	}
	if !force && ts == cached {
		return OutcomeUnchanged, nil
	}

	if err := WriteCache(snap.CacheFile, ts); err != nil {
		return OutcomeFailed, err
	}

	local := timestamp.Convert(ts, snap.SourceTZ, snap.TargetTZ)
	m.archiveScreenshot(ctx, page.Screenshot, "build")

	_, err = m.sender.SendPhoto(ctx, snap.ChatID, photoFilename, page.Screenshot, Caption(ts, local))
	metrics.ObserveNotification("build", err == nil)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("send notification: %w", err)
	}
	return OutcomeNotified, nil
}

// Snapshot loads the current settings, logging values that fell back to
// defaults.
func (m *Monitor) Snapshot(ctx context.Context) (settings.Snapshot, error) {
	snap, err := settings.LoadSnapshot(ctx, m.settings)
	if err != nil {
		return settings.Snapshot{}, err
	}
	for _, w := range snap.Warnings {
		m.logger.Warn("invalid setting", zap.String("detail", w))
	}
	return snap, nil
}

// Fetch renders the check URL, re-rendering while the page is incomplete.
// The last incomplete page is returned together with ErrIncompletePage.
func (m *Monitor) Fetch(ctx context.Context, snap settings.Snapshot) (render.Page, error) {
	for attempt := 1; ; attempt++ {
		page, err := m.renderer.Combined(ctx, snap.RenderServer, snap.CheckURL, snap.Viewport)
		if err != nil {
			return render.Page{}, fmt.Errorf("render %s: %w", snap.CheckURL, err)
		}
		if timestamp.Complete(page.Content) {
			return page, nil
		}
		if attempt >= m.incompleteAttempts {
			return page, ErrIncompletePage
		}
		m.logger.Warn("page incomplete, waiting before re-render",
			zap.Int("attempt", attempt),
			zap.Duration("delay", m.incompleteDelay),
		)
		select {
		case <-ctx.Done():
			return render.Page{}, ctx.Err()
		case <-m.clock.After(m.incompleteDelay):
		}
	}
}

// NeedsInitialCheck reports whether no build has been recorded yet.
func (m *Monitor) NeedsInitialCheck(ctx context.Context) (bool, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	exists, err := CacheExists(snap.CacheFile)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// archiveScreenshot stores a delivered screenshot; failures are only logged.
func (m *Monitor) archiveScreenshot(ctx context.Context, shot []byte, kind string) {
	if len(shot) == 0 {
		return
	}
	path := storage.ScreenshotPath(m.clock.Now(), kind)
	uri, err := m.archive.PutObject(ctx, path, "image/jpeg", bytes.NewReader(shot))
	if err != nil {
		m.logger.Warn("archive screenshot failed", zap.String("path", path), zap.Error(err))
		return
	}
	if uri != "" {
		m.logger.Debug("screenshot archived", zap.String("uri", uri))
	}
}

// Caption formats the notification caption.
func Caption(utc, local string) string {
	return fmt.Sprintf(captionFormat, utc, local)
}
