package start

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/internal/utils"
	"github.com/alexnikon/wgbot/pkg/parser"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// TariffList renders the catalog block shown in the greeting.
func TariffList() string {
	var sb strings.Builder
	for _, t := range subscription.Tariffs {
		sb.WriteString(fmt.Sprintf("⭐ %s - %d Stars\n", t.Title, t.StarsPrice))
		sb.WriteString(fmt.Sprintf("💳 %s - %d руб.\n\n", t.Title, t.KopeksPrice/100))
	}
	return sb.String()
}

func Handler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		from := utils.FromUser(update)
		if from == nil {
			return
		}

		text, button := parser.GetMessage("start", map[string]string{
			"firstName":  utils.RemoveHTMLTags(from.FirstName),
			"tariffList": TariffList(),
		})

		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      update.Message.Chat.ID,
			Text:        text,
			ReplyMarkup: button,
		})
	}
}

// MenuHandler redraws the main menu in place for the "main" callback.
func MenuHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		text, button := parser.GetMessage("start", map[string]string{
			"firstName":  utils.RemoveHTMLTags(update.CallbackQuery.From.FirstName),
			"tariffList": TariffList(),
		})

		b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      update.CallbackQuery.Message.Message.Chat.ID,
			MessageID:   update.CallbackQuery.Message.Message.ID,
			Text:        text,
			ReplyMarkup: button,
		})
	}
}
