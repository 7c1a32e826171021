package help

import (
	"context"

	"github.com/alexnikon/wgbot/pkg/parser"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func Handler() bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		text, button := parser.GetMessage("help", nil)

		if update.CallbackQuery != nil {
			b.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:      update.CallbackQuery.Message.Message.Chat.ID,
				MessageID:   update.CallbackQuery.Message.Message.ID,
				Text:        text,
				ReplyMarkup: button,
			})
			return
		}

		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      update.Message.Chat.ID,
			Text:        text,
			ReplyMarkup: button,
		})
	}
}
