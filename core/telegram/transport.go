package telegram

import (
	"context"
	"strconv"

	tele "gopkg.in/telebot.v4"
)

// BotTransport adapts a telebot bot to the message transport the menu
// machine drives. Menu texts are rendered in HTML parse mode.
type BotTransport struct {
	bot *tele.Bot
}

// NewBotTransport wraps a running bot.
func NewBotTransport(bot *tele.Bot) *BotTransport {
	return &BotTransport{bot: bot}
}

// Send delivers a new message and returns its id.
func (t *BotTransport) Send(_ context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (int, error) {
	msg, err := t.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: markup,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Edit replaces the text and keyboard of an existing message.
func (t *BotTransport) Edit(_ context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) error {
	ref := &tele.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    chatID,
	}
	_, err := t.bot.Edit(ref, text, &tele.SendOptions{
		ParseMode:   tele.ModeHTML,
		ReplyMarkup: markup,
	})
	return err
}
