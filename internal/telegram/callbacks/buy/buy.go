// Package buy implements the purchase flow: tariff selection, payment method
// selection and invoice creation for both payment rails.
package buy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/alexnikon/wgbot/internal/cache"
	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/pkg/parser"
	"github.com/go-telegram/bot"
	tgbotModels "github.com/go-telegram/bot/models"
)

// MenuHandler shows the tariff keyboard. Registered for /buy, /extend and
// the matching callbacks; buying and extending are the same flow, the engine
// decides between create and renew when the money arrives.
func MenuHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		text, _ := parser.GetMessage("tariff-menu", nil)

		var rows [][]parser.Button
		for _, t := range subscription.Tariffs {
			rows = append(rows, []parser.Button{{
				Text:         fmt.Sprintf("%s — %d⭐ / %d руб.", t.Title, t.StarsPrice, t.KopeksPrice/100),
				CallbackData: "buy:" + t.Key,
			}})
		}
		rows = append(rows, []parser.Button{{Text: "⬅️ Назад", CallbackData: "main"}})
		keyboard := parser.BuildInlineKeyboard(rows)

		if update.CallbackQuery != nil {
			b.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:      update.CallbackQuery.Message.Message.Chat.ID,
				MessageID:   update.CallbackQuery.Message.Message.ID,
				Text:        text,
				ReplyMarkup: keyboard,
			})
			return
		}
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      update.Message.Chat.ID,
			Text:        text,
			ReplyMarkup: keyboard,
		})
	}
}

// MethodHandler shows the payment method menu for a chosen tariff, with the
// user's adjusted prices.
func MethodHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		key := strings.TrimPrefix(update.CallbackQuery.Data, "buy:")
		tariff, ok := subscription.TariffByKey(key)
		if !ok {
			return
		}
		userID := update.CallbackQuery.From.ID

		stars := c.Overrides.ResolvePrice(userID, tariff, subscription.CurrencyStars)
		kopeks := c.Overrides.ResolvePrice(userID, tariff, subscription.CurrencyRUB)

		text, button := parser.GetMessage("buy-method", map[string]string{
			"tariff":      tariff.Key,
			"tariffTitle": tariff.Title,
			"starsPrice":  strconv.FormatInt(stars, 10),
			"rubPrice":    strconv.FormatInt(kopeks/100, 10),
		})
		b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      update.CallbackQuery.Message.Message.Chat.ID,
			MessageID:   update.CallbackQuery.Message.Message.ID,
			Text:        text,
			ReplyMarkup: button,
		})
	}
}

// PayStarsHandler sends a Telegram Stars invoice for the chosen tariff.
func PayStarsHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		key := strings.TrimPrefix(update.CallbackQuery.Data, "pay:stars:")
		tariff, ok := subscription.TariffByKey(key)
		if !ok {
			return
		}
		from := update.CallbackQuery.From
		chatID := update.CallbackQuery.Message.Message.Chat.ID

		peerName, renewal, err := resolveTarget(ctx, c, from.ID, from.Username, tariff.Key, models.MethodStars)
		if err != nil {
			c.Log.Error("purchase target resolution failed", "user", from.ID, "error", err)
			sendError(ctx, b, chatID)
			return
		}

		stars := c.Overrides.ResolvePrice(from.ID, tariff, subscription.CurrencyStars)
		title := fmt.Sprintf("VPN доступ на %s", tariff.Title)
		if renewal {
			title = fmt.Sprintf("Продление VPN доступа на %s", tariff.Title)
		}

		_, err = b.SendInvoice(ctx, &bot.SendInvoiceParams{
			ChatID:      chatID,
			Title:       title,
			Description: fmt.Sprintf("VPN доступ %s", tariff.Title),
			Payload:     peerName,
			Currency:    string(subscription.CurrencyStars),
			Prices: []tgbotModels.LabeledPrice{
				{Label: title, Amount: int(stars)},
			},
		})
		if err != nil {
			c.Log.Error("stars invoice failed", "user", from.ID, "error", err)
			sendError(ctx, b, chatID)
		}
	}
}

// PayCardHandler creates a gateway payment and hands the user the redirect
// link.
func PayCardHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		key := strings.TrimPrefix(update.CallbackQuery.Data, "pay:card:")
		tariff, ok := subscription.TariffByKey(key)
		if !ok {
			return
		}
		from := update.CallbackQuery.From
		chatID := update.CallbackQuery.Message.Message.Chat.ID

		if c.Gateway == nil {
			text, button := parser.GetMessage("card-disabled", nil)
			b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: button})
			return
		}

		peerName, _, err := resolveTarget(ctx, c, from.ID, from.Username, tariff.Key, models.MethodYooKassa)
		if err != nil {
			c.Log.Error("purchase target resolution failed", "user", from.ID, "error", err)
			sendError(ctx, b, chatID)
			return
		}

		kopeks := c.Overrides.ResolvePrice(from.ID, tariff, subscription.CurrencyRUB)
		payment, err := c.Gateway.CreatePayment(ctx, kopeks,
			fmt.Sprintf("VPN доступ на %s", tariff.Title),
			map[string]string{
				"user_id":   strconv.FormatInt(from.ID, 10),
				"peer_name": peerName,
				"tariff":    tariff.Key,
			})
		if err != nil {
			c.Log.Error("gateway payment creation failed", "user", from.ID, "error", err)
			sendError(ctx, b, chatID)
			return
		}
		if payment.Confirmation == nil || payment.Confirmation.ConfirmationURL == "" {
			c.Log.Error("gateway payment without confirmation url", "payment", payment.ID)
			sendError(ctx, b, chatID)
			return
		}

		text, button := parser.GetMessage("card-payment-link", map[string]string{
			"tariffTitle": tariff.Title,
			"rubPrice":    strconv.FormatInt(kopeks/100, 10),
			"paymentUrl":  payment.Confirmation.ConfirmationURL,
		})
		b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:      chatID,
			Text:        text,
			ReplyMarkup: button,
		})
	}
}

// resolveTarget decides which peer name the invoice is about. An owner with
// an already-provisioned row renews it under the same name; otherwise a
// pending intent reserves a fresh one.
func resolveTarget(ctx context.Context, c *container.AppContainer, ownerID int64, username, tariffKey, method string) (string, bool, error) {
	subs, err := c.SubscriptionRepo.FindByOwner(ctx, ownerID)
	if err != nil {
		return "", false, err
	}

	var target *models.Subscription
	for i := range subs {
		sub := &subs[i]
		if sub.Status == models.StatusPendingPayment {
			continue
		}
		if target == nil || sub.Status == models.StatusActive || sub.Status == models.StatusGrace {
			target = sub
		}
	}

	var peerName string
	renewal := target != nil
	if renewal {
		peerName = target.PeerName
		if target.Tariff != tariffKey {
			if _, err := c.SubscriptionRepo.SetTariff(ctx, peerName, tariffKey); err != nil {
				return "", false, err
			}
		}
	} else {
		peerName, err = c.Reconciler.RecordIntent(ctx, ownerID, username, tariffKey, method)
		if err != nil {
			return "", false, err
		}
	}

	err = c.IntentService.SaveIntent(ctx, ownerID, cache.PurchaseIntent{
		PeerName: peerName,
		Tariff:   tariffKey,
		Method:   method,
		Renewal:  renewal,
	})
	if err != nil {
		c.Log.Warn("intent cache write failed", "user", ownerID, "error", err)
	}
	return peerName, renewal, nil
}

func sendError(ctx context.Context, b *bot.Bot, chatID int64) {
	text, _ := parser.GetMessage("error-generic", nil)
	b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
}
