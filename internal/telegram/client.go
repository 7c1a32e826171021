package telegram

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexnikon/wgbot/internal/cache"
	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/middleware"
	"github.com/alexnikon/wgbot/internal/subscription"
	"github.com/alexnikon/wgbot/internal/telegram/callbacks"
	"github.com/alexnikon/wgbot/internal/telegram/commands"
	"github.com/alexnikon/wgbot/internal/telegram/events"
	"github.com/alexnikon/wgbot/internal/telegram/notify"
	"github.com/alexnikon/wgbot/internal/webhook"
	"github.com/alexnikon/wgbot/pkg/config"
	"github.com/go-telegram/bot"
	"gorm.io/gorm"
)

// StartBot wires the whole application around the bot: handlers, the sweep
// loop and the gateway webhook server, then blocks until shutdown.
func StartBot(cfg *config.Config, db *gorm.DB, log *slog.Logger) error {
	if _, err := cache.InitRedis(cfg.RedisAddr); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := container.NewAppContainer(cfg, db, log)

	opts := []bot.Option{
		bot.WithMiddlewares(
			middleware.SaveUserMiddleware(db, log),
		),
	}

	b, err := bot.New(cfg.TelegramBotToken, opts...)
	if err != nil {
		return err
	}

	notifier := notify.New(b, app.SubscriptionRepo, app.Lifecycle, log)

	commands.LoadCommandHandlers(b, app)
	callbacks.LoadCallbacksHandlers(b, app)
	events.LoadEvents(b, app, notifier)

	if err := app.Lifecycle.ReconcileStartup(ctx); err != nil {
		log.Error("startup reconciliation failed", "error", err)
	}

	sweeper := subscription.NewSweeper(
		app.SubscriptionRepo, app.PaymentRepo, app.Lifecycle, app.Reconciler,
		notifier, log, cfg.SweepInterval, cfg.PreExpiryWindow, cfg.PendingPaymentTTL,
	)
	go sweeper.Run(ctx)

	if cfg.YooKassaEnabled() {
		server := webhook.NewServer(app.Reconciler, notifier, notifier, cfg.YooKassaSecretKey, log)
		go func() {
			if err := server.Run(ctx, cfg.WebhookListenAddr); err != nil {
				log.Error("webhook server stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		if err := cache.CloseRedis(); err != nil {
			log.Error("redis close failed", "error", err)
		}
	}()

	log.Info("bot started")
	b.Start(ctx)
	return nil
}
