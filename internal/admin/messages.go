package admin

// Button labels. They double as the commands the dispatcher matches.
const (
	ButtonShowSettings       = "📊 Show Settings"
	ButtonEditSetting        = "⚙️ Edit Setting"
	ButtonTest               = "📱 Test"
	ButtonForceCheck         = "📡 Force Check"
	ButtonScreenshotSettings = "📸 Screenshot Settings"
	ButtonSetWidth           = "🖼️ Set Width"
	ButtonSetHeight          = "🖼️ Set Height"
	ButtonSetQuality         = "🎚️ Set Quality"
	ButtonBackToMenu         = "◀️ Back to Menu"
)

// Reply texts.
const (
	TextWelcomeAdmin       = "Welcome to the bot admin panel! Please select an action:"
	TextAccessDenied       = "This is an administrative bot. You do not have access."
	TextNoAccess           = "You do not have access to this bot."
	TextCurrentSettings    = "📋 <b>Current Settings:</b>\n\n"
	TextSettingLine        = "<b>%s</b>: %s\n<i>%s</i>\n\n"
	TextSelectSetting      = "Select a setting to edit:"
	TextEnterValue         = "Enter a new value for %s:\n\nCurrent value: <code>%s</code>\nDescription: <i>%s</i>"
	TextSettingUpdated     = "✅ Setting <b>%s</b> updated successfully.\n\nNew value: <code>%s</code>"
	TextInvalidValue       = "❌ %s\n\nPlease send another value or press %s."
	TextUpdateFailed       = "❌ Could not save <b>%s</b>. Please try again later."
	TextBackToMenu         = "Back to main menu:"
	TextCheckCompleted     = "✅ Check completed successfully!"
	TextCheckFailed        = "❌ Check failed."
	TextScreenshotSettings = "📸 <b>Screenshot Settings</b>\n\nWidth: %spx\nHeight: %spx\nQuality: %s%%"
	TextSelectAction       = "Please select an action:"
	TextSettingsLoadFailed = "❌ Could not load settings."
	TextFallbackTest       = "Failed to send initial message. Test completed without live updates."
)
