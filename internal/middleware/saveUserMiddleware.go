package middleware

import (
	"context"
	"log/slog"

	"github.com/alexnikon/wgbot/internal/database/models"
	"github.com/alexnikon/wgbot/internal/database/repositories"
	"github.com/go-telegram/bot"
	tgbotModels "github.com/go-telegram/bot/models"
	"gorm.io/gorm"
)

func SaveUserMiddleware(db *gorm.DB, log *slog.Logger) bot.Middleware {
	userRepo := repositories.NewUserRepository(db)

	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *tgbotModels.Update) {
			var from *tgbotModels.User

			if update.Message != nil && update.Message.From != nil {
				from = update.Message.From
			} else if update.CallbackQuery != nil {
				from = &update.CallbackQuery.From
			} else if update.PreCheckoutQuery != nil {
				from = update.PreCheckoutQuery.From
			}

			if from != nil && from.ID != 0 {
				user := &models.User{
					UserID:    from.ID,
					Username:  from.Username,
					FirstName: from.FirstName,
				}
				if err := userRepo.UpsertUser(ctx, user); err != nil {
					log.Error("user upsert failed", "user", from.ID, "error", err)
				}
			}

			next(ctx, b, update)
		}
	}
}
