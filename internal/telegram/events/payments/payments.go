// Package payments handles the Telegram Stars rail: pre-checkout validation
// and settled payment confirmation.
package payments

import (
	"context"
	"errors"

	"github.com/alexnikon/wgbot/internal/cache"
	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/database/repositories"
	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/internal/telegram/notify"
	"github.com/alexnikon/wgbot/pkg/parser"
	"github.com/go-telegram/bot"
	tgbotModels "github.com/go-telegram/bot/models"
)

// PreCheckoutHandler is the last gate before Telegram charges the user: the
// invoice target must still exist, belong to the payer and cover the
// adjusted price.
func PreCheckoutHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		q := update.PreCheckoutQuery
		answer := func(ok bool, message string) {
			b.AnswerPreCheckoutQuery(ctx, &bot.AnswerPreCheckoutQueryParams{
				PreCheckoutQueryID: q.ID,
				OK:                 ok,
				ErrorMessage:       message,
			})
		}

		intent, err := c.IntentService.GetIntent(ctx, q.From.ID)
		if err != nil && !errors.Is(err, cache.ErrNoIntent) {
			c.Log.Warn("intent cache read failed", "user", q.From.ID, "error", err)
		}
		if staleInvoice(intent, q.InvoicePayload) {
			answer(false, "Счет устарел, начни покупку заново.")
			return
		}

		sub, err := c.SubscriptionRepo.GetByPeerName(ctx, q.InvoicePayload)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				answer(false, "Счет устарел, начни покупку заново.")
				return
			}
			c.Log.Error("pre-checkout lookup failed", "payload", q.InvoicePayload, "error", err)
			answer(false, "Временная ошибка, попробуй еще раз.")
			return
		}
		if sub.OwnerID != q.From.ID {
			answer(false, "Этот счет выставлен другому пользователю.")
			return
		}

		tariff, ok := subscription.TariffByKey(sub.Tariff)
		if !ok {
			answer(false, "Тариф больше не доступен, начни покупку заново.")
			return
		}
		due := c.Overrides.ResolvePrice(sub.OwnerID, tariff, subscription.CurrencyStars)
		if int64(q.TotalAmount) < due {
			answer(false, "Сумма счета устарела, начни покупку заново.")
			return
		}

		answer(true, "")
	}
}

// staleInvoice reports whether the user's cached purchase intent contradicts
// the invoice target. They drift when the user starts a newer purchase while
// an old invoice is still open. A missing intent proves nothing, the row
// checks stay authoritative.
func staleInvoice(intent *cache.PurchaseIntent, payload string) bool {
	return intent != nil && intent.PeerName != payload
}

// SuccessfulPaymentHandler confirms a settled Stars charge. The charge id is
// the idempotency key, so a redelivered update is a no-op.
func SuccessfulPaymentHandler(c *container.AppContainer, n *notify.Notifier) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		payment := update.Message.SuccessfulPayment
		payerID := update.Message.From.ID

		ev, err := subscription.NewPointsPayment(
			payment.TelegramPaymentChargeID,
			payment.InvoicePayload,
			payerID,
			int64(payment.TotalAmount),
		)
		if err != nil {
			c.Log.Error("unusable stars payment", "payer", payerID, "error", err)
			return
		}

		outcome, err := c.Reconciler.Confirm(ctx, ev)
		if errors.Is(err, subscription.ErrDuplicatePayment) {
			return
		}
		if err != nil {
			// Money is settled in the ledger; the sweep keeps retrying the
			// provisioning side.
			c.Log.Error("stars payment confirmation failed", "ref", ev.Ref(), "error", err)
			text, _ := parser.GetMessage("error-generic", nil)
			b.SendMessage(ctx, &bot.SendMessageParams{ChatID: update.Message.Chat.ID, Text: text})
			return
		}

		if err := c.IntentService.DeleteIntent(ctx, payerID); err != nil {
			c.Log.Warn("intent cleanup failed", "user", payerID, "error", err)
		}
		if err := n.PaymentApplied(ctx, payerID, ev.PeerName(), outcome == subscription.OutcomeCreated); err != nil {
			c.Log.Error("payment notice failed", "peer", ev.PeerName(), "error", err)
		}
	}
}
