package callbacks

import (
	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/telegram/callbacks/access"
	"github.com/alexnikon/wgbot/internal/telegram/callbacks/buy"
	"github.com/alexnikon/wgbot/internal/telegram/commands/help"
	"github.com/alexnikon/wgbot/internal/telegram/commands/start"
	"github.com/go-telegram/bot"
)

func LoadCallbacksHandlers(b *bot.Bot, c *container.AppContainer) {
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "main", bot.MatchTypeExact, start.MenuHandler(c))
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "help", bot.MatchTypeExact, help.Handler())

	// ## PURCHASE FLOW ## \\
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "buy", bot.MatchTypeExact, buy.MenuHandler(c))
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "extend", bot.MatchTypeExact, buy.MenuHandler(c))
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "buy:", bot.MatchTypePrefix, buy.MethodHandler(c))
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "pay:stars:", bot.MatchTypePrefix, buy.PayStarsHandler(c))
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "pay:card:", bot.MatchTypePrefix, buy.PayCardHandler(c))

	// ## ACCESS ## \\
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "getconfig", bot.MatchTypeExact, access.ConfigHandler(c))
	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "status", bot.MatchTypeExact, access.StatusHandler(c))
}
