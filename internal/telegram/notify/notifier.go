// Package notify delivers lifecycle notifications to owners over the bot.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/alexnikon/wgbot/internal/database/repositories"
	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/pkg/parser"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const expiryDisplayLayout = "02.01.2006 15:04"

// Notifier sends the sweep's and webhook's owner notifications as chat
// messages.
type Notifier struct {
	bot  *bot.Bot
	subs *repositories.SubscriptionRepository
	life *subscription.Lifecycle
	log  *slog.Logger
}

func New(b *bot.Bot, subs *repositories.SubscriptionRepository, life *subscription.Lifecycle, log *slog.Logger) *Notifier {
	return &Notifier{bot: b, subs: subs, life: life, log: log}
}

func (n *Notifier) Notify(ctx context.Context, ownerID int64, kind, peerName string) error {
	var key string
	switch kind {
	case subscription.NotifyPreExpiry:
		key = "pre-expiry-warning"
	case subscription.NotifyPostExpiry:
		key = "post-expiry-notice"
	case subscription.NotifyPaymentCanceled:
		key = "payment-canceled"
	case subscription.NotifyRefund:
		key = "refund-notice"
	case subscription.NotifyPaymentApplied:
		return n.PaymentApplied(ctx, ownerID, peerName, false)
	default:
		return fmt.Errorf("unknown notification kind %q", kind)
	}

	text, button := parser.GetMessage(key, map[string]string{"peerName": peerName})
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      ownerID,
		Text:        text,
		ReplyMarkup: button,
	})
	if err != nil {
		return fmt.Errorf("notify %s to %d: %w", kind, ownerID, err)
	}
	n.log.Info("owner notified", "owner", ownerID, "kind", kind, "peer", peerName)
	return nil
}

// PaymentApplied reports a settled and applied payment to the payer. A first
// purchase also gets the config file; a renewal keeps its existing config.
func (n *Notifier) PaymentApplied(ctx context.Context, ownerID int64, peerName string, created bool) error {
	sub, err := n.subs.GetByPeerName(ctx, peerName)
	if err != nil {
		return err
	}

	key := "payment-success-renewal"
	if created {
		key = "payment-success-new"
	}
	tariff, _ := subscription.TariffByKey(sub.Tariff)
	text, button := parser.GetMessage(key, map[string]string{
		"peerName":  peerName,
		"expiresAt": sub.ExpiresAt.Format(expiryDisplayLayout),
		"days":      strconv.Itoa(tariff.Days),
	})
	if _, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      ownerID,
		Text:        text,
		ReplyMarkup: button,
	}); err != nil {
		return fmt.Errorf("payment notice to %d: %w", ownerID, err)
	}

	if !created {
		return nil
	}
	return n.SendConfig(ctx, ownerID, peerName)
}

// SendConfig uploads the peer's config file to the owner's chat.
func (n *Notifier) SendConfig(ctx context.Context, ownerID int64, peerName string) error {
	blob, err := n.life.FetchConfig(ctx, peerName)
	if err != nil {
		return fmt.Errorf("fetch config for %s: %w", peerName, err)
	}
	caption, _ := parser.GetMessage("config-caption", nil)
	_, err = n.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID: ownerID,
		Document: &models.InputFileUpload{
			Filename: peerName + ".conf",
			Data:     bytes.NewReader(blob),
		},
		Caption: caption,
	})
	if err != nil {
		return fmt.Errorf("send config to %d: %w", ownerID, err)
	}
	return nil
}

