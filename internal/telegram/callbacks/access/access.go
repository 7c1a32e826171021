// Package access serves the owner-facing views of an existing subscription:
// config download and status.
package access

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/internal/utils"
	"github.com/alexnikon/wgbot/pkg/parser"
	"github.com/go-telegram/bot"
	tgbotModels "github.com/go-telegram/bot/models"
)

const expiryDisplayLayout = "02.01.2006 15:04"

var statusTitles = map[string]string{
	models.StatusPendingPayment: "⏳ ожидает оплаты",
	models.StatusActive:         "✅ активен",
	models.StatusGrace:          "⚠️ скоро истекает",
	models.StatusExpired:        "❌ истек",
	models.StatusRevoked:        "❌ отключен",
}

// ConfigHandler sends the config file of the owner's live subscription.
func ConfigHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		from := utils.FromUser(update)
		chatID := utils.ChatID(update)
		if from == nil || chatID == 0 {
			return
		}

		live, err := findLive(ctx, c, from.ID)
		if err != nil {
			c.Log.Error("subscription lookup failed", "user", from.ID, "error", err)
			return
		}
		if live == nil {
			text, button := parser.GetMessage("config-unavailable", nil)
			b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: button})
			return
		}

		blob, err := c.Lifecycle.FetchConfig(ctx, live.PeerName)
		if err != nil {
			if errors.Is(err, subscription.ErrNotProvisioned) {
				text, button := parser.GetMessage("config-unavailable", nil)
				b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: button})
				return
			}
			c.Log.Error("config fetch failed", "peer", live.PeerName, "error", err)
			text, _ := parser.GetMessage("config-error", nil)
			b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
			return
		}

		caption, _ := parser.GetMessage("config-caption", nil)
		b.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: chatID,
			Document: &tgbotModels.InputFileUpload{
				Filename: live.PeerName + ".conf",
				Data:     bytes.NewReader(blob),
			},
			Caption: caption,
		})
	}
}

// StatusHandler shows every subscription the owner has, with expiry dates.
func StatusHandler(c *container.AppContainer) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
		from := utils.FromUser(update)
		chatID := utils.ChatID(update)
		if from == nil || chatID == 0 {
			return
		}

		subs, err := c.SubscriptionRepo.FindByOwner(ctx, from.ID)
		if err != nil {
			c.Log.Error("subscription lookup failed", "user", from.ID, "error", err)
			return
		}

		shown := statusList(subs)
		if extra := c.Overrides.AdditionalPeers(from.ID); len(extra) > 0 {
			var sb strings.Builder
			sb.WriteString(shown)
			for _, peer := range extra {
				sb.WriteString(fmt.Sprintf("🔑 %s: выдан вручную\n\n", peer))
			}
			shown = sb.String()
		}

		var key string
		vars := map[string]string{}
		if shown == "" {
			key = "status-empty"
		} else {
			key = "status"
			vars["statusList"] = shown
		}

		text, button := parser.GetMessage(key, vars)
		if update.CallbackQuery != nil {
			b.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:      update.CallbackQuery.Message.Message.Chat.ID,
				MessageID:   update.CallbackQuery.Message.Message.ID,
				Text:        text,
				ReplyMarkup: button,
			})
			return
		}
		b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: button})
	}
}

func statusList(subs []models.Subscription) string {
	var sb strings.Builder
	for i := range subs {
		sub := &subs[i]
		if sub.Status == models.StatusPendingPayment {
			continue
		}
		title, ok := statusTitles[sub.Status]
		if !ok {
			title = sub.Status
		}
		sb.WriteString(fmt.Sprintf("🔑 %s: %s\n", sub.PeerName, title))
		if sub.Status != models.StatusRevoked {
			sb.WriteString(fmt.Sprintf("⏰ Доступ закончится: %s\n", sub.ExpiresAt.Format(expiryDisplayLayout)))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func findLive(ctx context.Context, c *container.AppContainer, ownerID int64) (*models.Subscription, error) {
	subs, err := c.SubscriptionRepo.FindByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].Status == models.StatusActive || subs[i].Status == models.StatusGrace {
			return &subs[i], nil
		}
	}
	return nil, nil
}
