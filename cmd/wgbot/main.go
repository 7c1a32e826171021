package main

import (
	"log/slog"
	"os"

	"github.com/alexnikon/wgbot/internal/database"
	"github.com/alexnikon/wgbot/internal/telegram"
	"github.com/alexnikon/wgbot/pkg/config"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	db, err := database.InitDB(cfg.DatabaseFile)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	if err := telegram.StartBot(cfg, db, log); err != nil {
		log.Error("bot stopped", "error", err)
		os.Exit(1)
	}
}
