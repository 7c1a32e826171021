package commands

import (
	"github.com/alexnikon/wgbot/internal/container"
	"github.com/alexnikon/wgbot/internal/telegram/callbacks/access"
	"github.com/alexnikon/wgbot/internal/telegram/callbacks/buy"
	"github.com/alexnikon/wgbot/internal/telegram/commands/help"
	"github.com/alexnikon/wgbot/internal/telegram/commands/start"
	"github.com/go-telegram/bot"
)

func LoadCommandHandlers(b *bot.Bot, c *container.AppContainer) {
	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, start.Handler(c))
	b.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, help.Handler())
	b.RegisterHandler(bot.HandlerTypeMessageText, "/buy", bot.MatchTypeExact, buy.MenuHandler(c))
	b.RegisterHandler(bot.HandlerTypeMessageText, "/extend", bot.MatchTypeExact, buy.MenuHandler(c))
	b.RegisterHandler(bot.HandlerTypeMessageText, "/status", bot.MatchTypeExact, access.StatusHandler(c))
	b.RegisterHandler(bot.HandlerTypeMessageText, "/connect", bot.MatchTypeExact, access.ConfigHandler(c))
}
