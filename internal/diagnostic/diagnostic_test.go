package diagnostic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/wii-build-monitor/internal/render"
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
)

type stubRenderer struct {
	page      render.Page
	err       error
	healthErr error
	statusErr error
}

func (s stubRenderer) Health(context.Context, string) error { return s.healthErr }

func (s stubRenderer) Status(context.Context, string) (render.ServiceStatus, error) {
	if s.statusErr != nil {
		return render.ServiceStatus{}, s.statusErr
	}
	return render.ServiceStatus{Status: "ok", PagesRendered: 12, Restarts: 1}, nil
}

func (s stubRenderer) Combined(context.Context, string, string, render.Viewport) (render.Page, error) {
	return s.page, s.err
}

type edit struct {
	messageID int64
	text      string
}

type fakeMessenger struct {
	sendErr  error
	photoErr error
	sent     []string
	edits    []edit
	photos   []int64
}

func (f *fakeMessenger) SendMessage(_ context.Context, _ int64, text string, _ *telegram.ReplyKeyboard) (telegram.Message, error) {
	if f.sendErr != nil {
		return telegram.Message{}, f.sendErr
	}
	f.sent = append(f.sent, text)
	return telegram.Message{MessageID: 99}, nil
}

func (f *fakeMessenger) EditMessageText(_ context.Context, _, messageID int64, text string) error {
	f.edits = append(f.edits, edit{messageID: messageID, text: text})
	return nil
}

func (f *fakeMessenger) SendPhoto(_ context.Context, chatID int64, _ string, _ []byte, caption string) (telegram.Message, error) {
	if f.photoErr != nil {
		return telegram.Message{}, f.photoErr
	}
	if caption != TestNotificationCaption {
		return telegram.Message{}, errors.New("unexpected caption " + caption)
	}
	f.photos = append(f.photos, chatID)
	return telegram.Message{MessageID: 100}, nil
}

func newStore(t *testing.T) *settings.MemoryStore {
	t.Helper()
	store := settings.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	require.NoError(t, store.Update(context.Background(), settings.KeyChatID, "-100"))
	return store
}

var goodPage = render.Page{
	Content:    "Generated on: Mon Jan 6 10:00:00 UTC 2025\n=== top ===\nload averages: 1\n",
	Screenshot: []byte("jpeg"),
}

func TestRunReportsEachStageLive(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	res := New(newStore(t), stubRenderer{page: goodPage}, msgr, zap.NewNop()).Run(context.Background(), 7)

	assert.True(t, res.Live)
	assert.Equal(t, []string{TextStarting}, msgr.sent)
	require.Len(t, msgr.edits, 6)
	for _, e := range msgr.edits {
		assert.Equal(t, int64(99), e.messageID)
		assert.True(t, strings.HasPrefix(e.text, TextHeader))
	}
	assert.Equal(t, res.Text, msgr.edits[len(msgr.edits)-1].text)
	assert.Equal(t, []int64{-100}, msgr.photos)

	want := TextHeader + strings.Join([]string{
		"✅ Render service is up (12 pages rendered, 1 browser restarts).",
		TextPageAccessible,
		"✅ Generated timestamp found: Mon Jan 6 10:00:00 UTC 2025",
		"✅ Generated timestamp found: 2025-01-06 12:00:00 (Europe/Kiev)",
		TextScreenshotCaptured,
		TextNotificationSent,
	}, "\n")
	assert.Equal(t, want, res.Text)
}

func TestRunFallsBackWhenInitialMessageFails(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{sendErr: errors.New("blocked")}
	res := New(newStore(t), stubRenderer{page: goodPage}, msgr, zap.NewNop()).Run(context.Background(), 7)

	assert.False(t, res.Live)
	assert.Empty(t, msgr.edits)
	assert.Contains(t, res.Text, TextNotificationSent)
	assert.Len(t, msgr.photos, 1)
}

func TestRunPageNotAccessible(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	res := New(newStore(t), stubRenderer{err: errors.New("refused")}, msgr, zap.NewNop()).Run(context.Background(), 7)

	assert.Contains(t, res.Text, TextPageNotAccessible)
	assert.Empty(t, msgr.photos)
}

func TestRunStopsWhenRenderServiceDown(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	renderer := stubRenderer{page: goodPage, healthErr: errors.New("connection refused")}
	res := New(newStore(t), renderer, msgr, zap.NewNop()).Run(context.Background(), 7)

	assert.Equal(t, TextHeader+TextRenderDown, res.Text)
	assert.Empty(t, msgr.photos)
}

func TestRunContinuesWithoutStatus(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	renderer := stubRenderer{page: goodPage, statusErr: errors.New("404")}
	res := New(newStore(t), renderer, msgr, zap.NewNop()).Run(context.Background(), 7)

	assert.True(t, strings.HasPrefix(res.Text, TextHeader+TextRenderUp+"\n"+TextPageAccessible))
	assert.Contains(t, res.Text, TextNotificationSent)
}

func TestRunMissingTimestampAndScreenshot(t *testing.T) {
	t.Parallel()

	msgr := &fakeMessenger{}
	page := render.Page{Content: "<html>no stamp</html>"}
	res := New(newStore(t), stubRenderer{page: page}, msgr, zap.NewNop()).Run(context.Background(), 7)

	assert.Contains(t, res.Text, TextTimestampNotFound)
	assert.Contains(t, res.Text, TextScreenshotFailed)
	assert.NotContains(t, res.Text, TextScreenshotCaptured)
	assert.Empty(t, msgr.photos)
}

func TestRunConversionAndNotificationFailures(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	page := render.Page{Content: "Generated on: sometime soon\n", Screenshot: []byte("jpeg")}
	msgr := &fakeMessenger{photoErr: errors.New("chat not found")}
	res := New(store, stubRenderer{page: page}, msgr, zap.NewNop()).Run(context.Background(), 7)

	assert.Contains(t, res.Text, "❌ Timezone conversion failed. Result: sometime soon (conversion failed)")
	assert.Contains(t, res.Text, TextNotificationFailed)
}
