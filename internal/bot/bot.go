// Package bot runs the main loop: it long-polls Telegram for admin commands
// between scheduled checks, and runs a check at every slot boundary.
package bot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/clock"
	"github.com/JakeFAU/wii-build-monitor/internal/clock/system"
	"github.com/JakeFAU/wii-build-monitor/internal/monitor"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
)

const (
	defaultInterval    = 30 * time.Minute
	defaultPollTimeout = 30 * time.Second
	idlePause          = time.Second
	errorBackoff       = 5 * time.Second
)

// Updater long-polls for inbound updates.
type Updater interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// Handler processes one inbound update.
type Handler interface {
	Handle(ctx context.Context, update telegram.Update)
}

// Checker runs build checks.
type Checker interface {
	Check(ctx context.Context, force bool) (monitor.Outcome, error)
	NeedsInitialCheck(ctx context.Context) (bool, error)
}

// Bot alternates between draining updates and scheduled checks.
type Bot struct {
	updates     Updater
	handler     Handler
	checker     Checker
	settings    settings.Reader
	clock       clock.Clock
	logger      *zap.Logger
	pollTimeout time.Duration
	offset      int64
}

// Option customizes a Bot.
type Option func(*Bot)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(b *Bot) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithPollTimeout sets the getUpdates long-poll window.
func WithPollTimeout(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.pollTimeout = d
		}
	}
}

// New wires a Bot.
func New(updates Updater, handler Handler, checker Checker, store settings.Reader, logger *zap.Logger, opts ...Option) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bot{
		updates:     updates,
		handler:     handler,
		checker:     checker,
		settings:    store,
		clock:       system.New(),
		logger:      logger,
		pollTimeout: defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run blocks until ctx is canceled. A check runs immediately when no build
// has been recorded yet.
func (b *Bot) Run(ctx context.Context) error {
	needed, err := b.checker.NeedsInitialCheck(ctx)
	if err != nil {
		b.logger.Warn("could not inspect cache, skipping initial check", zap.Error(err))
	}
	if needed {
		b.logger.Info("no cached build, running initial check")
		b.runCheck(ctx)
	}

	for ctx.Err() == nil {
		if _, err := b.poll(ctx, b.pollTimeout); err != nil && ctx.Err() == nil {
			b.logger.Warn("getUpdates failed", zap.Error(err))
		}

		next := NextSlot(b.clock.Now(), b.interval(ctx))
		b.logger.Debug("waiting for next check", zap.Time("at", next))
		if !b.waitUntil(ctx, next) {
			break
		}
		b.runCheck(ctx)
	}
	b.logger.Info("bot loop stopped")
	return nil
}

// waitUntil keeps serving updates until deadline. It returns false when ctx
// ends first.
func (b *Bot) waitUntil(ctx context.Context, deadline time.Time) bool {
	for {
		if ctx.Err() != nil {
			return false
		}
		remaining := deadline.Sub(b.clock.Now())
		if remaining <= 0 {
			return true
		}

		timeout := min(b.pollTimeout, remaining).Truncate(time.Second)
		n, err := b.poll(ctx, timeout)
		var pause time.Duration
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return false
			}
			b.logger.Warn("getUpdates failed", zap.Error(err))
			pause = errorBackoff
		case n == 0:
			pause = idlePause
		default:
			continue
		}

		remaining = deadline.Sub(b.clock.Now())
		if remaining <= 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-b.clock.After(min(pause, remaining)):
		}
	}
}

// poll fetches one batch of updates and dispatches them in order.
func (b *Bot) poll(ctx context.Context, timeout time.Duration) (int, error) {
	updates, err := b.updates.GetUpdates(ctx, b.offset, timeout)
	if err != nil {
		return 0, err
	}
	for _, u := range updates {
		if u.UpdateID >= b.offset {
			b.offset = u.UpdateID + 1
		}
		b.handler.Handle(ctx, u)
	}
	return len(updates), nil
}

func (b *Bot) runCheck(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	// Outcomes and errors are logged by the checker.
	_, _ = b.checker.Check(ctx, false)
}

func (b *Bot) interval(ctx context.Context) time.Duration {
	snap, err := settings.LoadSnapshot(ctx, b.settings)
	if err != nil {
		b.logger.Warn("load settings for schedule", zap.Error(err))
		return defaultInterval
	}
	if snap.CheckInterval <= 0 {
		return defaultInterval
	}
	return snap.CheckInterval
}

// Offset returns the next update id the bot will ask for.
func (b *Bot) Offset() int64 {
	return b.offset
}

// NextSlot returns the first slot boundary strictly after now. Slots are
// multiples of interval counted from the top of the hour, or from midnight
// UTC when interval exceeds an hour. An interval that does not divide that
// period is measured from now instead, so checks stay evenly spaced.
func NextSlot(now time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		interval = defaultInterval
	}
	period := time.Hour
	anchor := now.Truncate(time.Hour)
	if interval > time.Hour {
		period = 24 * time.Hour
		y, m, d := now.UTC().Date()
		anchor = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	if period%interval != 0 {
		return now.Add(interval)
	}
	elapsed := now.Sub(anchor)
	return anchor.Add((elapsed/interval + 1) * interval)
}
