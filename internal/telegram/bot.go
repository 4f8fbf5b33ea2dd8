// Package telegram adapts the Telegram Bot API to the messenger and routes
// inbound updates to the conversation engine, the relay and admin commands.
package telegram

import (
	"context"
	"fmt"

	"crypto-exchange-bot/internal/logger"
	"crypto-exchange-bot/internal/messenger"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// NewBot creates the API client. Every update goes to handle on the polling
// goroutine, so handle must not block and owns any concurrency.
func NewBot(token string, handle func(ctx context.Context, update *models.Update)) (*bot.Bot, error) {
	b, err := bot.New(token,
		bot.WithDefaultHandler(func(ctx context.Context, _ *bot.Bot, update *models.Update) {
			handle(ctx, update)
		}),
		bot.WithNotAsyncHandlers(),
		bot.WithErrorsHandler(func(err error) {
			logger.Log.Warn("telegram polling error", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return b, nil
}

// Messenger implements messenger.Messenger over the Bot API. Channels are
// forum topics of the operator supergroup.
type Messenger struct {
	api *bot.Bot
}

func NewMessenger(api *bot.Bot) *Messenger {
	return &Messenger{api: api}
}

func markup(kb *messenger.Keyboard) models.ReplyMarkup {
	if kb == nil || len(kb.Rows) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, 0, len(kb.Rows))
	for _, r := range kb.Rows {
		row := make([]models.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			row = append(row, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		rows = append(rows, row)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (m *Messenger) Send(ctx context.Context, chatID int64, threadID int, text string, kb *messenger.Keyboard) (int, error) {
	msg, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          chatID,
		MessageThreadID: threadID,
		Text:            text,
		ParseMode:       models.ParseModeHTML,
		ReplyMarkup:     markup(kb),
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

func (m *Messenger) Edit(ctx context.Context, chatID int64, messageID int, text string, kb *messenger.Keyboard) error {
	_, err := m.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: markup(kb),
	})
	return err
}

func (m *Messenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	_, err := m.api.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	return err
}

func (m *Messenger) Copy(ctx context.Context, toChatID int64, toThreadID int, fromChatID int64, messageID int, kb *messenger.Keyboard) (int, error) {
	id, err := m.api.CopyMessage(ctx, &bot.CopyMessageParams{
		ChatID:          toChatID,
		MessageThreadID: toThreadID,
		FromChatID:      fromChatID,
		MessageID:       messageID,
		ReplyMarkup:     markup(kb),
	})
	if err != nil {
		return 0, err
	}
	return id.ID, nil
}

func (m *Messenger) CreateChannel(ctx context.Context, chatID int64, title string) (int, error) {
	topic, err := m.api.CreateForumTopic(ctx, &bot.CreateForumTopicParams{ChatID: chatID, Name: title})
	if err != nil {
		return 0, err
	}
	return topic.MessageThreadID, nil
}

func (m *Messenger) RenameChannel(ctx context.Context, chatID int64, channelID int, title string) error {
	_, err := m.api.EditForumTopic(ctx, &bot.EditForumTopicParams{
		ChatID:          chatID,
		MessageThreadID: channelID,
		Name:            title,
	})
	return err
}

// AnswerCallback acknowledges a button press, optionally with a toast
func (m *Messenger) AnswerCallback(ctx context.Context, callbackID, text string) error {
	_, err := m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	return err
}
