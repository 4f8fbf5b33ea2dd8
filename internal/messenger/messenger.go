// Package messenger is the transport-neutral surface the bot talks through.
package messenger

import "context"

// Button is one inline button; Data is the callback payload
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard laid out in rows
type Keyboard struct {
	Rows [][]Button
}

// Row builds a keyboard row
func Row(buttons ...Button) []Button {
	return buttons
}

// NewKeyboard builds a keyboard from rows
func NewKeyboard(rows ...[]Button) *Keyboard {
	return &Keyboard{Rows: rows}
}

// Messenger delivers messages to chats and to channels inside the operator
// group. threadID 0 addresses the chat itself.
type Messenger interface {
	Send(ctx context.Context, chatID int64, threadID int, text string, kb *Keyboard) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
	Delete(ctx context.Context, chatID int64, messageID int) error
	// Copy re-sends a message preserving its content and formatting
	Copy(ctx context.Context, toChatID int64, toThreadID int, fromChatID int64, messageID int, kb *Keyboard) (int, error)
	CreateChannel(ctx context.Context, chatID int64, title string) (int, error)
	RenameChannel(ctx context.Context, chatID int64, channelID int, title string) error
}
