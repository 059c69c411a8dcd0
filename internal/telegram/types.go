// Package telegram is a small Bot API client covering the methods the monitor
// needs: sendMessage, sendPhoto, editMessageText and getUpdates.
package telegram

import "fmt"

// Update is one entry from getUpdates.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is the subset of the Bot API message object the bot reads.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Date      int64  `json:"date"`
	Text      string `json:"text,omitempty"`
}

// User identifies the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// KeyboardButton is a single custom keyboard key.
type KeyboardButton struct {
	Text string `json:"text"`
}

// ReplyKeyboard is a custom reply keyboard.
type ReplyKeyboard struct {
	Keyboard       [][]KeyboardButton `json:"keyboard"`
	ResizeKeyboard bool               `json:"resize_keyboard"`
}

// NewKeyboard builds a resizable keyboard, one row per argument.
func NewKeyboard(rows ...[]string) *ReplyKeyboard {
	kb := &ReplyKeyboard{ResizeKeyboard: true}
	for _, row := range rows {
		buttons := make([]KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, KeyboardButton{Text: label})
		}
		kb.Keyboard = append(kb.Keyboard, buttons)
	}
	return kb
}

// GridKeyboard lays labels out perRow keys per row and appends footer rows.
func GridKeyboard(labels []string, perRow int, footer ...[]string) *ReplyKeyboard {
	if perRow <= 0 {
		perRow = 1
	}
	rows := make([][]string, 0, len(labels)/perRow+len(footer)+1)
	for i := 0; i < len(labels); i += perRow {
		end := min(i+perRow, len(labels))
		rows = append(rows, labels[i:end])
	}
	rows = append(rows, footer...)
	return NewKeyboard(rows...)
}

// APIError is returned when the Bot API answers with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}
