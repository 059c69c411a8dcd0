// Package diagnostic runs the admin "Test" flow: check the render service,
// render the status page, extract and convert the timestamp, and send a test
// photo, reporting each stage by editing a single progress message in place.
package diagnostic

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/metrics"
	"github.com/JakeFAU/wii-build-monitor/internal/render"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
	"github.com/JakeFAU/wii-build-monitor/internal/timestamp"
)

// Texts shown while the test runs.
const (
	TextStarting            = "⚙️ Starting test. Please wait…"
	TextHeader              = "📋 <b>Test Results:</b>\n\n"
	TextRenderUp            = "✅ Render service is up."
	TextRenderUpStats       = "✅ Render service is up (%d pages rendered, %d browser restarts)."
	TextRenderDown          = "❌ Render service is not responding."
	TextPageAccessible      = "✅ Page is accessible."
	TextPageNotAccessible   = "❌ Page is not accessible."
	TextTimestampFound      = "✅ Generated timestamp found: %s"
	TextTimestampNotFound   = "❌ Generated timestamp not found."
	TextConversionFailed    = "❌ Timezone conversion failed. Result: %s"
	TextScreenshotCaptured  = "✅ Screenshot captured."
	TextScreenshotFailed    = "❌ Failed to capture screenshot."
	TextNotificationSent    = "✅ Test notification sent successfully."
	TextNotificationFailed  = "❌ Failed to send test notification."
	TestNotificationCaption = "Test Notification"
)

const testPhotoFilename = "test_screenshot.jpg"

// Messenger is the slice of the Bot API the test needs.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.ReplyKeyboard) (telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, filename string, photo []byte, caption string) (telegram.Message, error)
}

// Renderer fetches the page and screenshot and reports on the service.
type Renderer interface {
	Health(ctx context.Context, server string) error
	Status(ctx context.Context, server string) (render.ServiceStatus, error)
	Combined(ctx context.Context, server, target string, vp render.Viewport) (render.Page, error)
}

// Runner executes diagnostic tests.
type Runner struct {
	settings  settings.Reader
	renderer  Renderer
	messenger Messenger
	logger    *zap.Logger
}

// New wires a Runner.
func New(store settings.Reader, renderer Renderer, messenger Messenger, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{settings: store, renderer: renderer, messenger: messenger, logger: logger}
}

// Result is the outcome of a diagnostic run.
type Result struct {
	// Text is the final report, header included.
	Text string
	// Live is true when progress was shown by editing a message in chatID.
	// When false the caller should deliver Text itself.
	Live bool
}

// progress accumulates status lines and mirrors them to a Telegram message
// when one could be sent.
type progress struct {
	ctx       context.Context
	runner    *Runner
	chatID    int64
	messageID int64
	live      bool
	lines     []string
}

func (p *progress) add(line string) {
	p.lines = append(p.lines, line)
	if !p.live {
		return
	}
	if err := p.runner.messenger.EditMessageText(p.ctx, p.chatID, p.messageID, p.text()); err != nil {
		p.runner.logger.Warn("update test progress", zap.Error(err))
	}
}

func (p *progress) text() string {
	return TextHeader + strings.Join(p.lines, "\n")
}

// Run performs the test for the admin in chatID.
func (r *Runner) Run(ctx context.Context, chatID int64) Result {
	p := &progress{ctx: ctx, runner: r, chatID: chatID}
	msg, err := r.messenger.SendMessage(ctx, chatID, TextStarting, nil)
	if err != nil {
		r.logger.Warn("initial test message failed, running without live updates",
			zap.Int64("chat_id", chatID), zap.Error(err))
	} else {
		p.live = true
		p.messageID = msg.MessageID
	}

	r.run(ctx, p)
	return Result{Text: p.text(), Live: p.live}
}

func (r *Runner) run(ctx context.Context, p *progress) {
	snap, err := settings.LoadSnapshot(ctx, r.settings)
	if err != nil {
		r.logger.Error("load settings", zap.Error(err))
		p.add(TextPageNotAccessible)
		return
	}

	if err := r.renderer.Health(ctx, snap.RenderServer); err != nil {
		r.logger.Warn("render service health check failed", zap.String("server", snap.RenderServer), zap.Error(err))
		p.add(TextRenderDown)
		return
	}
	if st, err := r.renderer.Status(ctx, snap.RenderServer); err != nil {
		r.logger.Debug("render service status unavailable", zap.Error(err))
		p.add(TextRenderUp)
	} else {
		p.add(fmt.Sprintf(TextRenderUpStats, st.PagesRendered, st.Restarts))
	}

	page, err := r.renderer.Combined(ctx, snap.RenderServer, snap.CheckURL, snap.Viewport)
	if err != nil {
		r.logger.Warn("test render failed", zap.Error(err))
		p.add(TextPageNotAccessible)
		return
	}
	p.add(TextPageAccessible)

	if ts, ok := timestamp.Extract(page.Content); ok {
		p.add(fmt.Sprintf(TextTimestampFound, html.EscapeString(ts)))
		converted := timestamp.Convert(ts, snap.SourceTZ, snap.TargetTZ)
		if conversionSucceeded(ts, converted) {
			p.add(fmt.Sprintf(TextTimestampFound, html.EscapeString(converted)))
		} else {
			p.add(fmt.Sprintf(TextConversionFailed, html.EscapeString(converted)))
		}
	} else {
		p.add(TextTimestampNotFound)
	}

	if len(page.Screenshot) == 0 {
		p.add(TextScreenshotFailed)
		return
	}
	p.add(TextScreenshotCaptured)

	_, err = r.messenger.SendPhoto(ctx, snap.ChatID, testPhotoFilename, page.Screenshot, TestNotificationCaption)
	metrics.ObserveNotification("test", err == nil)
	if err != nil {
		r.logger.Warn("test notification failed", zap.Int64("chat_id", snap.ChatID), zap.Error(err))
		p.add(TextNotificationFailed)
		return
	}
	p.add(TextNotificationSent)
}

func conversionSucceeded(raw, converted string) bool {
	return converted != raw &&
		!strings.Contains(converted, "conversion error") &&
		!strings.Contains(converted, "conversion failed")
}
