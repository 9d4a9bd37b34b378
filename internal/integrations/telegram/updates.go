package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zerorich/rating-bot/internal/domain"
)

// EventFromUpdate converts an update into a bot event. Updates the bot does
// not react to (channel posts, stickers, edits) report false.
func EventFromUpdate(u tgbotapi.Update) (domain.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		return eventFromCallback(u.CallbackQuery)
	case u.Message != nil:
		return eventFromMessage(u.Message)
	}
	return domain.Event{}, false
}

func eventFromCallback(q *tgbotapi.CallbackQuery) (domain.Event, bool) {
	if q.From == nil || q.Data == "" {
		return domain.Event{}, false
	}
	ev := domain.Event{
		Kind:       domain.EventChoice,
		ChatID:     q.From.ID,
		SenderID:   q.From.ID,
		SenderName: q.From.UserName,
		Data:       q.Data,
	}
	if q.Message != nil {
		ev.MessageID = q.Message.MessageID
		if q.Message.Chat != nil {
			ev.ChatID = q.Message.Chat.ID
		}
	}
	return ev, true
}

func eventFromMessage(m *tgbotapi.Message) (domain.Event, bool) {
	if m.From == nil || m.Chat == nil {
		return domain.Event{}, false
	}
	ev := domain.Event{
		ChatID:     m.Chat.ID,
		SenderID:   m.From.ID,
		SenderName: m.From.UserName,
	}
	switch {
	case m.IsCommand():
		ev.Kind = domain.EventCommand
		ev.Command = m.Command()
		ev.Argument = m.CommandArguments()
	case m.Text != "":
		ev.Kind = domain.EventText
		ev.Text = m.Text
	default:
		return domain.Event{}, false
	}
	return ev, true
}

// chatOf returns the chat an update belongs to, or 0 when it has none.
func chatOf(u tgbotapi.Update) int64 {
	if ev, ok := EventFromUpdate(u); ok {
		return ev.ChatID
	}
	if u.Message != nil && u.Message.Chat != nil {
		return u.Message.Chat.ID
	}
	return 0
}
