// Package telegram adapts the Telegram Bot API to the bot's transport-neutral
// events and prompts.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerorich/rating-bot/internal/domain"
)

// API is the subset of *tgbotapi.BotAPI used by this package.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Telegram answers this when an edit would leave the message unchanged.
const errNotModified = "message is not modified"

// Transport writes prompts and notifications through the Bot API.
type Transport struct {
	api API
}

// NewTransport creates a Transport on top of api.
func NewTransport(api API) (*Transport, error) {
	if api == nil {
		return nil, errors.New("telegram: api must not be nil")
	}
	return &Transport{api: api}, nil
}

// Reply edits the menu message the user pressed, or sends a new message
// when there is none. An edit that Telegram refuses falls back to a new message.
func (t *Transport) Reply(ctx context.Context, to domain.ReplyTarget, p domain.Prompt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	markup := keyboard(p.Choices)

	if to.MessageID != 0 {
		edit := tgbotapi.NewEditMessageText(to.ChatID, to.MessageID, p.Text)
		edit.ReplyMarkup = markup
		_, err := t.api.Request(edit)
		if err == nil || strings.Contains(err.Error(), errNotModified) {
			return nil
		}
	}

	msg := tgbotapi.NewMessage(to.ChatID, p.Text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send to chat %d: %w", to.ChatID, err)
	}
	return nil
}

// Deliver sends a plain notification to a user's private chat. It fails
// when the user never started the bot or blocked it.
func (t *Transport) Deliver(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(userID, text)); err != nil {
		return fmt.Errorf("telegram: deliver to user %d: %w", userID, err)
	}
	return nil
}

// Acknowledge stops the client-side spinner of a pressed button.
func (t *Transport) Acknowledge(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, "")); err != nil {
		return fmt.Errorf("telegram: answer callback: %w", err)
	}
	return nil
}

func keyboard(rows [][]domain.Choice) *tgbotapi.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, c := range row {
			if c.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(c.Label, c.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Data))
		}
		out = append(out, buttons)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(out...)
	return &markup
}
