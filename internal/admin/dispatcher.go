// Package admin maps messages from allow-listed users to admin panel actions:
// showing and editing settings, forcing a check, and running the diagnostic
// test.
package admin

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/clock"
	"github.com/JakeFAU/wii-build-monitor/internal/clock/system"
	"github.com/JakeFAU/wii-build-monitor/internal/diagnostic"
	"github.com/JakeFAU/wii-build-monitor/internal/monitor"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
)

// Sender sends text replies.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.ReplyKeyboard) (telegram.Message, error)
}

// Checker runs a build check.
type Checker interface {
	Check(ctx context.Context, force bool) (monitor.Outcome, error)
}

// Tester runs the diagnostic test.
type Tester interface {
	Run(ctx context.Context, chatID int64) diagnostic.Result
}

// Dispatcher handles updates for the admin panel.
type Dispatcher struct {
	admins   map[int64]struct{}
	store    settings.Store
	sender   Sender
	checker  Checker
	tester   Tester
	sessions *Sessions
	logger   *zap.Logger
}

// Option customizes a Dispatcher.
type Option func(*dispatcherOptions)

type dispatcherOptions struct {
	clock clock.Clock
	ttl   time.Duration
}

// WithSessionClock replaces the clock used for session expiry.
func WithSessionClock(c clock.Clock) Option {
	return func(o *dispatcherOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithSessionTTL sets how long a pending edit stays open.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *dispatcherOptions) {
		o.ttl = ttl
	}
}

// New wires a Dispatcher. admins is the allow-list of Telegram user ids.
func New(
	admins map[int64]struct{},
	store settings.Store,
	sender Sender,
	checker Checker,
	tester Tester,
	logger *zap.Logger,
	opts ...Option,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := dispatcherOptions{clock: system.New(), ttl: DefaultSessionTTL}
	for _, opt := range opts {
		opt(&o)
	}
	return &Dispatcher{
		admins:   admins,
		store:    store,
		sender:   sender,
		checker:  checker,
		tester:   tester,
		sessions: NewSessions(o.ttl, o.clock),
		logger:   logger,
	}
}

// Handle processes one update. Updates without a text message are ignored.
func (d *Dispatcher) Handle(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	d.sessions.Sweep()

	chatID, userID := msg.Chat.ID, msg.From.ID
	text := strings.TrimSpace(msg.Text)
	log := d.logger.With(zap.Int64("user_id", userID), zap.Int64("chat_id", chatID))

	if !d.isAdmin(userID) {
		log.Warn("message from non-admin user", zap.String("username", msg.From.Username))
		reply := TextNoAccess
		if text == "/start" {
			reply = TextAccessDenied
		}
		d.reply(ctx, chatID, reply, nil)
		return
	}

	log.Debug("admin command", zap.String("text", text))
	switch text {
	case "/start":
		d.reply(ctx, chatID, TextWelcomeAdmin, MainKeyboard())
	case ButtonShowSettings:
		d.showSettings(ctx, chatID)
	case ButtonEditSetting:
		d.selectSetting(ctx, chatID)
	case ButtonTest:
		d.runTest(ctx, chatID)
	case ButtonForceCheck:
		d.forceCheck(ctx, chatID)
	case ButtonScreenshotSettings:
		d.showScreenshotSettings(ctx, chatID)
	case ButtonSetWidth:
		d.beginEdit(ctx, chatID, userID, settings.KeyViewportWidth)
	case ButtonSetHeight:
		d.beginEdit(ctx, chatID, userID, settings.KeyViewportHeight)
	case ButtonSetQuality:
		d.beginEdit(ctx, chatID, userID, settings.KeyImageQuality)
	case ButtonBackToMenu:
		d.sessions.Clear(userID)
		d.reply(ctx, chatID, TextBackToMenu, MainKeyboard())
	default:
		d.handleText(ctx, chatID, userID, text)
	}
}

func (d *Dispatcher) isAdmin(userID int64) bool {
	_, ok := d.admins[userID]
	return ok
}

func (d *Dispatcher) showSettings(ctx context.Context, chatID int64) {
	rows, err := d.store.All(ctx)
	if err != nil {
		d.logger.Error("load settings", zap.Error(err))
		d.reply(ctx, chatID, TextSettingsLoadFailed, nil)
		return
	}
	var b strings.Builder
	b.WriteString(TextCurrentSettings)
	for _, row := range rows {
		fmt.Fprintf(&b, TextSettingLine,
			html.EscapeString(row.Key), html.EscapeString(row.Value), html.EscapeString(row.Description))
	}
	d.reply(ctx, chatID, b.String(), nil)
}

func (d *Dispatcher) selectSetting(ctx context.Context, chatID int64) {
	rows, err := d.store.All(ctx)
	if err != nil {
		d.logger.Error("load settings", zap.Error(err))
		d.reply(ctx, chatID, TextSettingsLoadFailed, nil)
		return
	}
	d.reply(ctx, chatID, TextSelectSetting, SettingsKeyboard(rows))
}

func (d *Dispatcher) runTest(ctx context.Context, chatID int64) {
	res := d.tester.Run(ctx, chatID)
	if !res.Live {
		d.reply(ctx, chatID, TextFallbackTest+"\n\n"+res.Text, nil)
	}
}

func (d *Dispatcher) forceCheck(ctx context.Context, chatID int64) {
	outcome, err := d.checker.Check(ctx, true)
	if err != nil || !outcome.OK() {
		d.reply(ctx, chatID, TextCheckFailed, nil)
		return
	}
	d.reply(ctx, chatID, TextCheckCompleted, nil)
}

func (d *Dispatcher) showScreenshotSettings(ctx context.Context, chatID int64) {
	values := make([]any, 0, 3)
	for _, key := range []string{settings.KeyViewportWidth, settings.KeyViewportHeight, settings.KeyImageQuality} {
		v, err := d.store.Get(ctx, key)
		if err != nil {
			d.logger.Warn("load setting", zap.String("key", key), zap.Error(err))
			v, _ = settings.DefaultValue(key)
		}
		values = append(values, html.EscapeString(v))
	}
	d.reply(ctx, chatID, fmt.Sprintf(TextScreenshotSettings, values...), ScreenshotKeyboard())
}

// beginEdit opens a session for key and prompts for the new value.
func (d *Dispatcher) beginEdit(ctx context.Context, chatID, userID int64, key string) {
	rows, err := d.store.All(ctx)
	if err != nil {
		d.logger.Error("load settings", zap.Error(err))
		d.reply(ctx, chatID, TextSettingsLoadFailed, nil)
		return
	}
	for _, row := range rows {
		if row.Key == key {
			d.promptEdit(ctx, chatID, userID, row)
			return
		}
	}
	d.reply(ctx, chatID, TextSettingsLoadFailed, nil)
}

func (d *Dispatcher) promptEdit(ctx context.Context, chatID, userID int64, row settings.Setting) {
	d.sessions.Start(userID, row.Key)
	d.reply(ctx, chatID, fmt.Sprintf(TextEnterValue,
		html.EscapeString(row.Key), html.EscapeString(row.Value), html.EscapeString(row.Description)), nil)
}

// handleText treats text as a setting key to edit, or as the value for the
// pending edit.
func (d *Dispatcher) handleText(ctx context.Context, chatID, userID int64, text string) {
	rows, err := d.store.All(ctx)
	if err != nil {
		d.logger.Error("load settings", zap.Error(err))
		d.reply(ctx, chatID, TextSettingsLoadFailed, nil)
		return
	}
	for _, row := range rows {
		if row.Key == text {
			d.promptEdit(ctx, chatID, userID, row)
			return
		}
	}

	key, ok := d.sessions.Pending(userID)
	if !ok {
		d.reply(ctx, chatID, TextSelectAction, MainKeyboard())
		return
	}
	d.applyEdit(ctx, chatID, userID, key, text)
}

func (d *Dispatcher) applyEdit(ctx context.Context, chatID, userID int64, key, value string) {
	if err := settings.Validate(key, value); err != nil {
		d.logger.Info("rejected setting value", zap.String("key", key), zap.Error(err))
		d.reply(ctx, chatID, fmt.Sprintf(TextInvalidValue, html.EscapeString(err.Error()), ButtonBackToMenu), nil)
		return
	}
	if err := d.store.Update(ctx, key, value); err != nil {
		d.logger.Error("update setting", zap.String("key", key), zap.Error(err))
		if errors.Is(err, settings.ErrNotFound) {
			d.sessions.Clear(userID)
		}
		d.reply(ctx, chatID, fmt.Sprintf(TextUpdateFailed, html.EscapeString(key)), MainKeyboard())
		return
	}
	d.sessions.Clear(userID)
	d.logger.Info("setting updated", zap.Int64("user_id", userID), zap.String("key", key))
	d.reply(ctx, chatID, fmt.Sprintf(TextSettingUpdated, html.EscapeString(key), html.EscapeString(value)), MainKeyboard())
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string, markup *telegram.ReplyKeyboard) {
	if _, err := d.sender.SendMessage(ctx, chatID, text, markup); err != nil {
		d.logger.Warn("send reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
