package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/clock/fake"
	"github.com/JakeFAU/wii-build-monitor/internal/diagnostic"
	"github.com/JakeFAU/wii-build-monitor/internal/monitor"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
)

const (
	adminID    int64 = 1001
	strangerID int64 = 2002
	chatID     int64 = 555
)

type sentMessage struct {
	chatID int64
	text   string
	markup *telegram.ReplyKeyboard
}

type fakeSender struct {
	sent []sentMessage
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, markup *telegram.ReplyKeyboard) (telegram.Message, error) {
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, markup: markup})
	return telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeSender) last(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

type fakeChecker struct {
	outcome monitor.Outcome
	err     error
	forced  []bool
}

func (f *fakeChecker) Check(_ context.Context, force bool) (monitor.Outcome, error) {
	f.forced = append(f.forced, force)
	return f.outcome, f.err
}

type fakeTester struct {
	result diagnostic.Result
	chats  []int64
}

func (f *fakeTester) Run(_ context.Context, chatID int64) diagnostic.Result {
	f.chats = append(f.chats, chatID)
	return f.result
}

type harness struct {
	store   *settings.MemoryStore
	sender  *fakeSender
	checker *fakeChecker
	tester  *fakeTester
	clock   *fake.Clock
	d       *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := settings.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	h := &harness{
		store:   store,
		sender:  &fakeSender{},
		checker: &fakeChecker{outcome: monitor.OutcomeNotified},
		tester:  &fakeTester{result: diagnostic.Result{Text: "report", Live: true}},
		clock:   fake.New(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)),
	}
	h.d = New(map[int64]struct{}{adminID: {}}, store, h.sender, h.checker, h.tester, zap.NewNop(),
		WithSessionClock(h.clock))
	return h
}

func (h *harness) say(from int64, text string) {
	h.d.Handle(context.Background(), telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			From: &telegram.User{ID: from},
			Chat: telegram.Chat{ID: chatID},
			Text: text,
		},
	})
}

func TestNonAdminIsRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(strangerID, "/start")
	assert.Equal(t, TextAccessDenied, h.sender.last(t).text)

	h.say(strangerID, ButtonForceCheck)
	assert.Equal(t, TextNoAccess, h.sender.last(t).text)
	assert.Empty(t, h.checker.forced)
}

func TestStartShowsMainKeyboard(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, "/start")
	msg := h.sender.last(t)
	assert.Equal(t, TextWelcomeAdmin, msg.text)
	assert.Equal(t, chatID, msg.chatID)
	require.NotNil(t, msg.markup)
	assert.Equal(t, ButtonTest, msg.markup.Keyboard[2][0].Text)
	assert.Equal(t, ButtonForceCheck, msg.markup.Keyboard[2][1].Text)
}

func TestShowSettingsListsEveryRow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonShowSettings)
	text := h.sender.last(t).text
	assert.Contains(t, text, TextCurrentSettings)
	for _, def := range settings.Defaults {
		assert.Contains(t, text, "<b>"+def.Key+"</b>")
	}
}

func TestEditSettingFlow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonEditSetting)
	kb := h.sender.last(t).markup
	require.NotNil(t, kb)
	assert.Len(t, kb.Keyboard, 6, "ten keys two per row plus back")
	assert.Equal(t, ButtonBackToMenu, kb.Keyboard[5][0].Text)

	h.say(adminID, settings.KeyTargetTimezone)
	assert.Contains(t, h.sender.last(t).text, "Current value: <code>Europe/Kiev</code>")

	h.say(adminID, "Europe/Berlin")
	assert.Contains(t, h.sender.last(t).text, "updated successfully")
	got, err := h.store.Get(context.Background(), settings.KeyTargetTimezone)
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", got)

	h.say(adminID, "Europe/Paris")
	assert.Equal(t, TextSelectAction, h.sender.last(t).text, "session is closed after a successful update")
}

func TestInvalidValueKeepsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonSetQuality)
	h.say(adminID, "150")
	assert.Contains(t, h.sender.last(t).text, "must be between 1 and 100")

	h.say(adminID, "60")
	got, err := h.store.Get(context.Background(), settings.KeyImageQuality)
	require.NoError(t, err)
	assert.Equal(t, "60", got)
}

func TestSessionExpires(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonSetWidth)
	h.clock.Advance(DefaultSessionTTL + time.Second)
	h.say(adminID, "1024")

	assert.Equal(t, TextSelectAction, h.sender.last(t).text)
	got, err := h.store.Get(context.Background(), settings.KeyViewportWidth)
	require.NoError(t, err)
	assert.Equal(t, "1280", got)
}

func TestBackToMenuClearsSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonSetHeight)
	h.say(adminID, ButtonBackToMenu)
	assert.Equal(t, TextBackToMenu, h.sender.last(t).text)

	h.say(adminID, "900")
	assert.Equal(t, TextSelectAction, h.sender.last(t).text)
}

func TestScreenshotSettings(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonScreenshotSettings)
	msg := h.sender.last(t)
	assert.Equal(t, "📸 <b>Screenshot Settings</b>\n\nWidth: 1280px\nHeight: 720px\nQuality: 80%", msg.text)
	require.NotNil(t, msg.markup)
	assert.Equal(t, ButtonSetWidth, msg.markup.Keyboard[0][0].Text)
}

func TestForceCheck(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonForceCheck)
	assert.Equal(t, []bool{true}, h.checker.forced)
	assert.Equal(t, TextCheckCompleted, h.sender.last(t).text)

	h.checker.err = errors.New("render down")
	h.checker.outcome = monitor.OutcomeFailed
	h.say(adminID, ButtonForceCheck)
	assert.Equal(t, TextCheckFailed, h.sender.last(t).text)
}

func TestRunTest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, ButtonTest)
	assert.Equal(t, []int64{chatID}, h.tester.chats)
	assert.Empty(t, h.sender.sent, "live test reports through its own message")

	h.tester.result = diagnostic.Result{Text: "final report", Live: false}
	h.say(adminID, ButtonTest)
	assert.Contains(t, h.sender.last(t).text, "final report")
	assert.Contains(t, h.sender.last(t).text, TextFallbackTest)
}

func TestUnknownTextWithoutSession(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.say(adminID, "hello")
	msg := h.sender.last(t)
	assert.Equal(t, TextSelectAction, msg.text)
	assert.NotNil(t, msg.markup)
}

func TestUpdatesWithoutMessageAreIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.d.Handle(context.Background(), telegram.Update{UpdateID: 3})
	assert.Empty(t, h.sender.sent)
}

func TestSessionsSweep(t *testing.T) {
	t.Parallel()

	clk := fake.New(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC))
	s := NewSessions(time.Minute, clk)
	s.Start(1, "a")
	s.Start(2, "b")
	clk.Advance(30 * time.Second)
	s.Start(2, "c")
	clk.Advance(45 * time.Second)

	assert.Equal(t, 1, s.Sweep())
	key, ok := s.Pending(2)
	assert.True(t, ok)
	assert.Equal(t, "c", key)
	_, ok = s.Pending(1)
	assert.False(t, ok)
}
