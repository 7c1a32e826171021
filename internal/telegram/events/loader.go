package events

import (
	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/telegram/events/payments"
	"github.com/alexnikon/wgbot/internal/telegram/notify"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

func LoadEvents(b *bot.Bot, c *container.AppContainer, n *notify.Notifier) {
	b.RegisterHandlerMatchFunc(matchPreCheckout, payments.PreCheckoutHandler(c))
	b.RegisterHandlerMatchFunc(matchSuccessfulPayment, payments.SuccessfulPaymentHandler(c, n))
}

func matchPreCheckout(update *models.Update) bool {
	return update.PreCheckoutQuery != nil
}

func matchSuccessfulPayment(update *models.Update) bool {
	return update.Message != nil && update.Message.SuccessfulPayment != nil
}
