package utils

import (
	"regexp"

	"github.com/go-telegram/bot/models"
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

func RemoveHTMLTags(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}

// ChatID resolves the chat a reply should go to, for both message and
// callback updates.
func ChatID(update *models.Update) int64 {
	if update.Message != nil {
		return update.Message.Chat.ID
	}
	if update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil {
		return update.CallbackQuery.Message.Message.Chat.ID
	}
	return 0
}

// FromUser resolves the acting user of an update.
func FromUser(update *models.Update) *models.User {
	if update.Message != nil {
		return update.Message.From
	}
	if update.CallbackQuery != nil {
		return &update.CallbackQuery.From
	}
	if update.PreCheckoutQuery != nil {
		return update.PreCheckoutQuery.From
	}
	return nil
}
