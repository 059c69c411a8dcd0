package admin

import (
	"github.com/JakeFAU/wii-build-monitor/internal/settings"
	"github.com/JakeFAU/wii-build-monitor/internal/telegram"
)

// MainKeyboard is the admin panel menu.
func MainKeyboard() *telegram.ReplyKeyboard {
	return telegram.NewKeyboard(
		[]string{ButtonShowSettings},
		[]string{ButtonEditSetting},
		[]string{ButtonTest, ButtonForceCheck},
		[]string{ButtonScreenshotSettings},
	)
}

// ScreenshotKeyboard offers the viewport shortcuts.
func ScreenshotKeyboard() *telegram.ReplyKeyboard {
	return telegram.NewKeyboard(
		[]string{ButtonSetWidth, ButtonSetHeight},
		[]string{ButtonSetQuality},
		[]string{ButtonBackToMenu},
	)
}

// SettingsKeyboard lists every setting key, two per row, plus a back button.
func SettingsKeyboard(rows []settings.Setting) *telegram.ReplyKeyboard {
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.Key)
	}
	return telegram.GridKeyboard(keys, 2, []string{ButtonBackToMenu})
}
